package timeoff

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/hr-ledger/generic"
)

// TotalDays counts calendar days from start to end inclusive, minus half a
// day when the leave starts in the afternoon and half a day when it ends in
// the morning.
//
//	2024-08-01 afternoon .. 2024-08-03 morning = 3 - 0.5 - 0.5 = 2
//	2024-08-01 afternoon .. 2024-08-01 morning = 0, rejected
//
// An unset part counts as a full day.
func TotalDays(start, end generic.Date, startPart, endPart DayPart) (decimal.Decimal, error) {
	if err := generic.NewDateRange(start, end).Validate(); err != nil {
		return decimal.Zero, err
	}
	startPart, endPart = startPart.orFull(), endPart.orFull()
	if !startPart.Valid() || !endPart.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown day part %q/%q", generic.ErrInvalidInput, startPart, endPart)
	}

	days := decimal.NewFromInt(end.DayNumber() - start.DayNumber() + 1)
	if startPart == DayAfternoon {
		days = days.Sub(generic.Half)
	}
	if endPart == DayMorning {
		days = days.Sub(generic.Half)
	}
	if !days.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s %s to %s %s covers no time",
			generic.ErrInvalidInput, start, startPart, end, endPart)
	}
	return days, nil
}
