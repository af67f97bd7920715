package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodOfAprilStart(t *testing.T) {
	cal := MustCalendar(4)
	require.Equal(t, Period{FiscalYear: 2024, Month: 1}, cal.PeriodOf(date(2025, time.January, 15)))
	require.Equal(t, Period{FiscalYear: 2025, Month: 4}, cal.PeriodOf(date(2025, time.April, 1)))
	require.Equal(t, Period{FiscalYear: 2024, Month: 3}, cal.PeriodOf(date(2025, time.March, 31)))
}

func TestRangeUsesCalendarYear(t *testing.T) {
	cal := MustCalendar(4)
	from, to := cal.Range(Period{FiscalYear: 2024, Month: 2})
	require.Equal(t, date(2025, time.February, 1), from)
	require.Equal(t, date(2025, time.February, 28), to)

	from, to = cal.YearRange(2024)
	require.Equal(t, date(2024, time.April, 1), from)
	require.Equal(t, date(2025, time.March, 31), to)
}

func TestPreviousAndNextCrossFiscalYear(t *testing.T) {
	cal := MustCalendar(4)
	require.Equal(t, Period{FiscalYear: 2024, Month: 3}, cal.Previous(Period{FiscalYear: 2025, Month: 4}))
	require.Equal(t, Period{FiscalYear: 2025, Month: 4}, cal.Next(Period{FiscalYear: 2024, Month: 3}))
	require.Equal(t, Period{FiscalYear: 2024, Month: 12}, cal.Previous(Period{FiscalYear: 2024, Month: 1}))
	require.Equal(t, 3, cal.LastMonth())

	jan := MustCalendar(1)
	require.Equal(t, Period{FiscalYear: 2024, Month: 12}, jan.Previous(Period{FiscalYear: 2025, Month: 1}))
	require.Equal(t, 12, jan.LastMonth())
}

func TestMonthsInFiscalOrder(t *testing.T) {
	cal := MustCalendar(4)
	months, err := cal.Months(2024, 11, 2)
	require.NoError(t, err)
	require.Equal(t, []Period{
		{FiscalYear: 2024, Month: 11},
		{FiscalYear: 2024, Month: 12},
		{FiscalYear: 2024, Month: 1},
		{FiscalYear: 2024, Month: 2},
	}, months)

	_, err = cal.Months(2024, 2, 11)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNewCalendarRejectsBadMonth(t *testing.T) {
	_, err := NewCalendar(13)
	require.ErrorIs(t, err, shared.ErrValidation)
}
