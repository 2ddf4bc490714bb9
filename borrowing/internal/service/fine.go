package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// FineCalculator prices overdue returns. The multiplier is a penalty
// coefficient applied on top of the book's daily fee.
type FineCalculator struct {
	multiplier decimal.Decimal
}

func NewFineCalculator(multiplier int64) FineCalculator {
	return FineCalculator{multiplier: decimal.NewFromInt(multiplier)}
}

// Fine returns zero when actual <= expected, otherwise
// daysOverdue * dailyFee * multiplier. Pure, date-granular.
func (f FineCalculator) Fine(dailyFee decimal.Decimal, expected, actual time.Time) decimal.Decimal {
	days := daysOverdue(expected, actual)
	if days == 0 {
		return decimal.Zero
	}
	return dailyFee.Mul(decimal.NewFromInt(int64(days))).Mul(f.multiplier)
}

func daysOverdue(expected, actual time.Time) int {
	e := toDate(expected)
	a := toDate(actual)
	if !a.After(e) {
		return 0
	}
	return int(a.Sub(e) / (24 * time.Hour))
}

func toDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
