package timeoff_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/timeoff"
)

func TestTotalDays_HalfDayBoundaries(t *testing.T) {
	// GIVEN: Leave from 2024-08-01 afternoon to 2024-08-03 morning
	// WHEN: Counting days
	// THEN: 3 calendar days minus two halves = 2
	days, err := timeoff.TotalDays(generic.MustParseDate("2024-08-01"), generic.MustParseDate("2024-08-03"),
		timeoff.DayAfternoon, timeoff.DayMorning)
	require.NoError(t, err)
	assert.True(t, days.Equal(decimal.NewFromInt(2)), "got %s", days)
}

func TestTotalDays(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		startPart  timeoff.DayPart
		endPart    timeoff.DayPart
		want       string
	}{
		{"single full day", "2024-08-01", "2024-08-01", timeoff.DayFull, timeoff.DayFull, "1"},
		{"unset parts count as full", "2024-08-01", "2024-08-05", "", "", "5"},
		{"morning only", "2024-08-01", "2024-08-01", timeoff.DayFull, timeoff.DayMorning, "0.5"},
		{"afternoon only", "2024-08-01", "2024-08-01", timeoff.DayAfternoon, timeoff.DayFull, "0.5"},
		{"starts afternoon", "2024-08-01", "2024-08-02", timeoff.DayAfternoon, timeoff.DayFull, "1.5"},
		{"ends morning", "2024-08-01", "2024-08-02", timeoff.DayFull, timeoff.DayMorning, "1.5"},
		{"across february in a leap year", "2024-02-28", "2024-03-01", timeoff.DayFull, timeoff.DayFull, "3"},
		// Only an afternoon start or a morning end removes a half.
		{"morning start is a full first day", "2024-08-01", "2024-08-02", timeoff.DayMorning, timeoff.DayFull, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, err := timeoff.TotalDays(generic.MustParseDate(tt.start), generic.MustParseDate(tt.end), tt.startPart, tt.endPart)
			require.NoError(t, err)
			assert.True(t, days.Equal(generic.MustParseDecimal(tt.want)), "got %s, want %s", days, tt.want)
		})
	}
}

func TestTotalDays_Rejects(t *testing.T) {
	d := generic.MustParseDate

	tests := []struct {
		name       string
		start, end generic.Date
		startPart  timeoff.DayPart
		endPart    timeoff.DayPart
	}{
		{"end before start", d("2024-08-02"), d("2024-08-01"), timeoff.DayFull, timeoff.DayFull},
		{"afternoon to morning of one day", d("2024-08-01"), d("2024-08-01"), timeoff.DayAfternoon, timeoff.DayMorning},
		{"unknown part", d("2024-08-01"), d("2024-08-02"), "evening", timeoff.DayFull},
		{"missing start", generic.Date{}, d("2024-08-02"), timeoff.DayFull, timeoff.DayFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := timeoff.TotalDays(tt.start, tt.end, tt.startPart, tt.endPart)
			assert.ErrorIs(t, err, generic.ErrInvalidInput)
		})
	}
}
