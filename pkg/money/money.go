// Package money holds the decimal and calendar helpers shared by the credit
// ledger. Amounts are shopspring decimals; dates are civil dates carried as
// time.Time at UTC midnight.
package money

import (
	"time"

	"github.com/shopspring/decimal"
)

// Places is the scale every stored amount is rounded to.
const Places = 2

const day = 24 * time.Hour

// Round rounds d to cents, half away from zero. Ledger amounts are never
// negative when rounded, so this is round-half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// Date drops the clock part of t, keeping the calendar day as seen in t's
// location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns day 1 of the month that is months after t's month.
func FirstOfMonth(t time.Time, months int) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from from to to.
// The result is negative when to is earlier than from.
func DaysBetween(from, to time.Time) int64 {
	return int64(Date(to).Sub(Date(from)) / day)
}

// PayableCutoff is the exclusive upper bound on due dates that may be paid
// on today: the first day of the month three months from now.
func PayableCutoff(today time.Time) time.Time {
	return FirstOfMonth(today, 3)
}
