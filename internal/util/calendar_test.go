package util

import (
	"testing"
	"time"
)

func TestLastTradingDay(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"weekday stays",
			time.Date(2024, 3, 6, 15, 30, 0, 0, time.UTC), // Wednesday
			time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		},
		{
			"saturday rolls back to friday",
			time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			"sunday rolls back to friday",
			time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC),
			time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := LastTradingDay(tc.in); !got.Equal(tc.want) {
				t.Errorf("LastTradingDay(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
