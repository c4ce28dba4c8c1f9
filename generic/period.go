package generic

import "fmt"

// =============================================================================
// DATE RANGE - Inclusive on both ends
// =============================================================================

// DateRange is the closed interval [Start, End].
//
// Examples:
//   - A one-day leave: 2024-08-01..2024-08-01
//   - A job interval still in force: 2024-06-01..OpenEnded
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

func NewDateRange(start, end Date) DateRange {
	return DateRange{Start: start, End: end}
}

// Validate rejects unset bounds and End before Start.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: date range needs both start and end", ErrInvalidInput)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidInput, r.End, r.Start)
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Overlaps returns true if the two ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(r.End)
}

// Days returns the number of calendar days in the range, both ends included.
func (r DateRange) Days() int64 {
	return r.End.DayNumber() - r.Start.DayNumber() + 1
}

// WithinYear reports whether both ends fall in the same calendar year.
func (r DateRange) WithinYear() bool {
	return r.Start.Year() == r.End.Year()
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
