package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFineCalculator_Fine(t *testing.T) {
	t.Parallel()
	calc := NewFineCalculator(2)

	tests := []struct {
		name     string
		dailyFee string
		expected string
		actual   string
		want     string
	}{
		{
			name:     "on time",
			dailyFee: "1.99",
			expected: "2024-12-01",
			actual:   "2024-12-01",
			want:     "0",
		},
		{
			name:     "early return",
			dailyFee: "1.99",
			expected: "2024-12-01",
			actual:   "2024-11-28",
			want:     "0",
		},
		{
			name:     "one day late",
			dailyFee: "1.99",
			expected: "2024-12-01",
			actual:   "2024-12-02",
			want:     "3.98",
		},
		{
			name:     "three days late fractional fee",
			dailyFee: "1.99",
			expected: "2024-12-01",
			actual:   "2024-12-04",
			want:     "11.94",
		},
		{
			name:     "five days late",
			dailyFee: "5.00",
			expected: "2024-12-10",
			actual:   "2024-12-15",
			want:     "50.00",
		},
		{
			name:     "across month boundary",
			dailyFee: "2.50",
			expected: "2024-11-29",
			actual:   "2024-12-02",
			want:     "15.00",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fee := decimal.RequireFromString(tt.dailyFee)
			want := decimal.RequireFromString(tt.want)
			got := calc.Fine(fee, date(tt.expected), date(tt.actual))
			require.True(t, want.Equal(got), "want %s got %s", want, got)
		})
	}
}

func TestFineCalculator_TimeOfDayIgnored(t *testing.T) {
	t.Parallel()
	calc := NewFineCalculator(2)
	expected := time.Date(2024, 12, 1, 23, 59, 0, 0, time.UTC)
	actual := time.Date(2024, 12, 2, 0, 1, 0, 0, time.UTC)

	got := calc.Fine(decimal.NewFromInt(1), expected, actual)
	require.True(t, decimal.NewFromInt(2).Equal(got), "got %s", got)
}
