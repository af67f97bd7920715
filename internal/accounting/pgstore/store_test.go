package pgstore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	d, err := parseDecimal("")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	d, err = parseDecimal("1250.50")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.RequireFromString("1250.5")))

	_, err = parseDecimal("abc")
	require.Error(t, err)
}

func TestParseDecimalsFillsTargets(t *testing.T) {
	var debit, credit decimal.Decimal
	require.NoError(t, parseDecimals([]string{"10", "2.5"}, &debit, &credit))
	require.True(t, debit.Equal(decimal.NewFromInt(10)))
	require.True(t, credit.Equal(decimal.RequireFromString("2.5")))
}

func TestDateParamTreatsZeroAsNull(t *testing.T) {
	require.False(t, dateParam(time.Time{}).Valid)
	require.False(t, dueDateParam(nil).Valid)

	day := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	p := dueDateParam(&day)
	require.True(t, p.Valid)
	require.True(t, p.Time.Equal(day))
}
