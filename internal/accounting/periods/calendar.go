package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Period identifies one month of a fiscal year. Month is the calendar month number.
type Period struct {
	FiscalYear int
	Month      int
}

func (p Period) String() string {
	return fmt.Sprintf("%d-%02d", p.FiscalYear, p.Month)
}

// Calendar maps dates to fiscal periods for a fiscal year starting in StartMonth.
type Calendar struct {
	startMonth int
}

// NewCalendar validates the start month.
func NewCalendar(startMonth int) (Calendar, error) {
	if startMonth < 1 || startMonth > 12 {
		return Calendar{}, shared.Invalid("fiscal_start_month", "must be between 1 and 12")
	}
	return Calendar{startMonth: startMonth}, nil
}

// MustCalendar is NewCalendar for static configuration.
func MustCalendar(startMonth int) Calendar {
	c, err := NewCalendar(startMonth)
	if err != nil {
		panic(err)
	}
	return c
}

// StartMonth returns the first calendar month of every fiscal year.
func (c Calendar) StartMonth() int {
	if c.startMonth == 0 {
		return 1
	}
	return c.startMonth
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PeriodOf returns the fiscal period containing date.
func (c Calendar) PeriodOf(date time.Time) Period {
	month := int(date.Month())
	year := date.Year()
	if month < c.StartMonth() {
		year--
	}
	return Period{FiscalYear: year, Month: month}
}

// ValidMonth checks a calendar month number.
func ValidMonth(month int) error {
	if month < 1 || month > 12 {
		return shared.Invalid("month", fmt.Sprintf("%d is not between 1 and 12", month))
	}
	return nil
}

// Range returns the first and last date of p.
func (c Calendar) Range(p Period) (time.Time, time.Time) {
	year := p.FiscalYear
	if p.Month < c.StartMonth() {
		year++
	}
	from := time.Date(year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, -1)
}

// YearRange returns the first and last date of a fiscal year.
func (c Calendar) YearRange(fiscalYear int) (time.Time, time.Time) {
	from, _ := c.Range(Period{FiscalYear: fiscalYear, Month: c.StartMonth()})
	return from, from.AddDate(1, 0, -1)
}

// Previous returns the period before p, crossing into the prior fiscal year when needed.
func (c Calendar) Previous(p Period) Period {
	month := p.Month - 1
	if month == 0 {
		month = 12
	}
	year := p.FiscalYear
	if p.Month == c.StartMonth() {
		year--
	}
	return Period{FiscalYear: year, Month: month}
}

// Next returns the period after p.
func (c Calendar) Next(p Period) Period {
	month := p.Month%12 + 1
	year := p.FiscalYear
	if month == c.StartMonth() {
		year++
	}
	return Period{FiscalYear: year, Month: month}
}

// LastMonth returns the closing month of every fiscal year.
func (c Calendar) LastMonth() int {
	return c.Previous(Period{Month: c.StartMonth()}).Month
}

// Index returns the zero-based position of month within the fiscal year.
func (c Calendar) Index(month int) int {
	return (month - c.StartMonth() + 12) % 12
}

// Months lists the periods from fromMonth through toMonth in fiscal order.
func (c Calendar) Months(fiscalYear, fromMonth, toMonth int) ([]Period, error) {
	if err := ValidMonth(fromMonth); err != nil {
		return nil, err
	}
	if err := ValidMonth(toMonth); err != nil {
		return nil, err
	}
	if c.Index(fromMonth) > c.Index(toMonth) {
		return nil, shared.Invalid("month", fmt.Sprintf("%d comes after %d in the fiscal year", fromMonth, toMonth))
	}
	out := make([]Period, 0, c.Index(toMonth)-c.Index(fromMonth)+1)
	p := Period{FiscalYear: fiscalYear, Month: fromMonth}
	for {
		out = append(out, p)
		if p.Month == toMonth {
			return out, nil
		}
		p = c.Next(p)
	}
}
