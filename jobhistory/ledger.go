package jobhistory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger reads and writes job intervals through the tenant gate. Every
// mutation runs in one transaction holding row locks on the employee's
// non-voided intervals.
type Ledger struct {
	gate   *tenant.Gate
	logger *zap.Logger
}

func NewLedger(gate *tenant.Gate, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{gate: gate, logger: logger.Named("job_ledger")}
}

// Create appends a new current interval. The employee's latest interval must
// start strictly before ch.EffectiveStart; if it is open it is closed at
// EffectiveStart - 1 day. A new hire is rejected while an interval is open.
func (l *Ledger) Create(ctx context.Context, tc tenant.Context, ch Change) (*JobHistory, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}

	var created *JobHistory
	err := l.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		rows, err := lockChain(ctx, tx, tc, ch.EmployeeID)
		if err != nil {
			return err
		}
		requested := generic.NewDateRange(ch.EffectiveStart, generic.OpenEnded)

		if len(rows) > 0 {
			last := &rows[len(rows)-1]
			switch {
			case ch.ChangeType == ChangeNewHire && last.IsOpen():
				return conflict(ch.EmployeeID, requested, last, "employee already has an open interval")
			case !ch.EffectiveStart.After(last.EffectiveStart):
				return conflict(ch.EmployeeID, requested, last, "effective start must be after the latest interval's start")
			case last.IsOpen():
				last.EffectiveEnd = ch.EffectiveStart.AddDays(-1)
				if err := tx.Update(ctx, tc, last, "effective_end"); err != nil {
					return fmt.Errorf("close interval %s: %w", last.ID, err)
				}
			case last.EffectiveEnd.AfterOrEqual(ch.EffectiveStart):
				return conflict(ch.EmployeeID, requested, last, "")
			}
		}

		created = newInterval(ch, generic.OpenEnded)
		return tx.Insert(ctx, tc, created)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("job interval created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("employee_id", ch.EmployeeID.String()),
		zap.String("job_history_id", created.ID.String()),
		zap.String("change_type", string(ch.ChangeType)),
		zap.Stringer("effective_start", ch.EffectiveStart))
	return created, nil
}

// InsertBackdated places an interval anywhere in the employee's history,
// validated against every non-voided interval. The interval covering the new
// start is cut at start - 1 day; the new interval runs until the covered
// interval's old end or the day before the next interval, whichever is
// earlier. An existing interval with the same start is a DateConflict.
func (l *Ledger) InsertBackdated(ctx context.Context, tc tenant.Context, ch Change) (*JobHistory, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}

	var created *JobHistory
	err := l.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		rows, err := lockChain(ctx, tx, tc, ch.EmployeeID)
		if err != nil {
			return err
		}

		var covering, next *JobHistory
		for i := range rows {
			r := &rows[i]
			switch {
			case r.EffectiveStart.Equal(ch.EffectiveStart):
				return conflict(ch.EmployeeID, generic.NewDateRange(ch.EffectiveStart, ch.EffectiveStart), r,
					"an interval already starts on this date")
			case r.EffectiveStart.Before(ch.EffectiveStart) && r.Range().Contains(ch.EffectiveStart):
				covering = r
			case r.EffectiveStart.After(ch.EffectiveStart) && next == nil:
				next = r
			}
		}

		end := generic.OpenEnded
		if next != nil {
			end = next.EffectiveStart.AddDays(-1)
		}
		if covering != nil {
			if ch.ChangeType == ChangeNewHire {
				return conflict(ch.EmployeeID, generic.NewDateRange(ch.EffectiveStart, end), covering,
					"new hire inside an existing interval")
			}
			if covering.EffectiveEnd.Before(end) {
				end = covering.EffectiveEnd
			}
			covering.EffectiveEnd = ch.EffectiveStart.AddDays(-1)
			if err := tx.Update(ctx, tc, covering, "effective_end"); err != nil {
				return fmt.Errorf("split interval %s: %w", covering.ID, err)
			}
		}

		created = newInterval(ch, end)
		return tx.Insert(ctx, tc, created)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("backdated job interval inserted",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("employee_id", ch.EmployeeID.String()),
		zap.String("job_history_id", created.ID.String()),
		zap.Stringer("effective_start", created.EffectiveStart),
		zap.Stringer("effective_end", created.EffectiveEnd))
	return created, nil
}

// ResolveAtDate returns the non-voided interval covering date. If correction
// history leaves more than one candidate, the latest start wins, then the
// latest creation. Returns ErrNotFound when nothing covers the date.
func (l *Ledger) ResolveAtDate(ctx context.Context, tc tenant.Context, employeeID uuid.UUID, date generic.Date) (*JobHistory, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", generic.ErrInvalidInput)
	}
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var jh JobHistory
	err = q.Where("employee_id = ? AND correction_status <> ?", employeeID, CorrectionVoided).
		Where("effective_start <= ? AND effective_end >= ?", date, date).
		Order("effective_start DESC").
		Order("created_at DESC").
		Take(&jh).Error
	if err != nil {
		return nil, l.gate.Translate(err)
	}
	return &jh, nil
}

// Current returns the open interval, if any.
func (l *Ledger) Current(ctx context.Context, tc tenant.Context, employeeID uuid.UUID) (*JobHistory, error) {
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var jh JobHistory
	err = q.Where("employee_id = ? AND correction_status <> ? AND effective_end = ?",
		employeeID, CorrectionVoided, generic.OpenEnded).
		Take(&jh).Error
	if err != nil {
		return nil, l.gate.Translate(err)
	}
	return &jh, nil
}

// History returns every live interval of the employee, voided ones included,
// ordered by start then creation.
func (l *Ledger) History(ctx context.Context, tc tenant.Context, employeeID uuid.UUID) ([]JobHistory, error) {
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var rows []JobHistory
	err = q.Where("employee_id = ?", employeeID).
		Order("effective_start").
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, l.gate.Translate(err)
	}
	return rows, nil
}

// Get loads one interval by id.
func (l *Ledger) Get(ctx context.Context, tc tenant.Context, id uuid.UUID) (*JobHistory, error) {
	var jh JobHistory
	if err := l.gate.Find(ctx, tc, &jh, id); err != nil {
		return nil, err
	}
	return &jh, nil
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// Void marks an interval as voided, optionally pointing at the record that
// supersedes it. Dates are left untouched.
func (l *Ledger) Void(ctx context.Context, tc tenant.Context, id uuid.UUID, supersededBy *uuid.UUID) (*JobHistory, error) {
	var voided *JobHistory
	err := l.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		target, err := lockOne(ctx, tx, tc, id)
		if err != nil {
			return err
		}
		if supersededBy != nil {
			var other JobHistory
			if err := tx.Find(ctx, tc, &other, *supersededBy); err != nil {
				return fmt.Errorf("superseding record: %w", err)
			}
			if other.EmployeeID != target.EmployeeID {
				return fmt.Errorf("%w: superseding record belongs to another employee", generic.ErrInvalidInput)
			}
		}
		if err := void(ctx, tx, tc, target, supersededBy); err != nil {
			return err
		}
		voided = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("job interval voided",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("employee_id", voided.EmployeeID.String()),
		zap.String("job_history_id", voided.ID.String()))
	return voided, nil
}

// Correct voids an interval and inserts its replacement over the same dates
// in one transaction. The voided row points at the replacement.
func (l *Ledger) Correct(ctx context.Context, tc tenant.Context, id uuid.UUID, r Replacement) (voided, replacement *JobHistory, err error) {
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}

	err = l.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		target, err := lockOne(ctx, tx, tc, id)
		if err != nil {
			return err
		}

		replacement = &JobHistory{
			EmployeeID:       target.EmployeeID,
			EffectiveStart:   target.EffectiveStart,
			EffectiveEnd:     target.EffectiveEnd,
			Position:         r.Position,
			Department:       r.Department,
			Grade:            r.Grade,
			BaseSalary:       r.BaseSalary,
			ChangeType:       ChangeCorrection,
			ChangeReason:     r.Reason,
			CorrectionStatus: CorrectionCorrected,
		}
		replacement.ID = uuid.New()

		// Void first: the open-interval index only admits one live row.
		if err := void(ctx, tx, tc, target, &replacement.ID); err != nil {
			return err
		}
		if err := tx.Insert(ctx, tc, replacement); err != nil {
			return err
		}
		voided = target
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.logger.Info("job interval corrected",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("employee_id", voided.EmployeeID.String()),
		zap.String("voided_id", voided.ID.String()),
		zap.String("job_history_id", replacement.ID.String()))
	return voided, replacement, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func newInterval(ch Change, end generic.Date) *JobHistory {
	return &JobHistory{
		EmployeeID:       ch.EmployeeID,
		EffectiveStart:   ch.EffectiveStart,
		EffectiveEnd:     end,
		Position:         ch.Position,
		Department:       ch.Department,
		Grade:            ch.Grade,
		BaseSalary:       ch.BaseSalary,
		ChangeType:       ch.ChangeType,
		ChangeReason:     ch.Reason,
		CorrectionStatus: CorrectionNone,
	}
}

// lockChain loads and locks the employee's non-voided intervals by start.
func lockChain(ctx context.Context, tx *tenant.Gate, tc tenant.Context, employeeID uuid.UUID) ([]JobHistory, error) {
	q, err := tx.ReadForUpdate(ctx, tc)
	if err != nil {
		return nil, err
	}
	var rows []JobHistory
	err = q.Where("employee_id = ? AND correction_status <> ?", employeeID, CorrectionVoided).
		Order("effective_start").
		Find(&rows).Error
	if err != nil {
		return nil, tx.Translate(err)
	}
	return rows, nil
}

func lockOne(ctx context.Context, tx *tenant.Gate, tc tenant.Context, id uuid.UUID) (*JobHistory, error) {
	q, err := tx.ReadForUpdate(ctx, tc)
	if err != nil {
		return nil, err
	}
	var jh JobHistory
	if err := q.Where("id = ?", id).Take(&jh).Error; err != nil {
		return nil, tx.Translate(err)
	}
	return &jh, nil
}

func void(ctx context.Context, tx *tenant.Gate, tc tenant.Context, target *JobHistory, supersededBy *uuid.UUID) error {
	if target.IsVoided() {
		return &generic.InvalidTransitionError{From: string(CorrectionVoided), Action: "void"}
	}
	target.CorrectionStatus = CorrectionVoided
	target.CorrectedByID = supersededBy
	return tx.Update(ctx, tc, target, "correction_status", "corrected_by_id")
}

func conflict(employeeID uuid.UUID, requested generic.DateRange, existing *JobHistory, desc string) error {
	return &generic.DateConflictError{
		EmployeeID:  employeeID,
		ExistingID:  existing.ID,
		Requested:   requested,
		Existing:    existing.Range(),
		Description: desc,
	}
}

// HireDate returns the start of the employee's earliest non-voided interval,
// or ErrNotFound if there is none. It matches timeoff.HireDateFunc so that
// proration and tenure policies can read the job chain inside the
// transaction opening a balance.
func HireDate(ctx context.Context, g *tenant.Gate, tc tenant.Context, employeeID uuid.UUID) (generic.Date, error) {
	q, err := g.Read(ctx, tc)
	if err != nil {
		return generic.Date{}, err
	}
	var first JobHistory
	err = q.Where("employee_id = ? AND correction_status <> ?", employeeID, CorrectionVoided).
		Order("effective_start").
		Take(&first).Error
	if err != nil {
		return generic.Date{}, g.Translate(err)
	}
	return first.EffectiveStart, nil
}
