package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/hr-ledger/tenant"
)

// =============================================================================
// APPROVAL LOG - Append-only, one row per transition
// =============================================================================

// Approval records who moved a request along which edge. Rows are only ever
// inserted; actor and time are the gate's creation stamps.
type Approval struct {
	tenant.Isolated
	SubjectType string    `gorm:"size:32;not null" json:"subject_type"`
	SubjectID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_approvals_sequence" json:"subject_id"`
	Sequence    int       `gorm:"not null;uniqueIndex:idx_approvals_sequence" json:"sequence"`
	Action      Action    `gorm:"type:varchar(16);not null" json:"action"`
	FromState   State     `gorm:"type:varchar(16)" json:"from_state"`
	ToState     State     `gorm:"type:varchar(16);not null" json:"to_state"`
	Comment     string    `json:"comment"`
}

func (Approval) TableName() string { return "approvals" }

func (a Approval) ActorID() uuid.UUID { return a.CreatedBy }
func (a Approval) At() time.Time      { return a.CreatedAt }

// Append writes the next record for a subject. g should be bound to the
// transaction that applies the transition.
func Append(ctx context.Context, g *tenant.Gate, tc tenant.Context, subjectType string, subjectID uuid.UUID, t Transition, comment string) (*Approval, error) {
	q, err := g.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var n int64
	if err := q.Model(&Approval{}).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Count(&n).Error; err != nil {
		return nil, g.Translate(err)
	}

	a := &Approval{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Sequence:    int(n) + 1,
		Action:      t.Action,
		FromState:   t.From,
		ToState:     t.To,
		Comment:     comment,
	}
	if err := g.Insert(ctx, tc, a); err != nil {
		return nil, fmt.Errorf("append approval: %w", err)
	}
	return a, nil
}

// Log returns a subject's records in order.
func Log(ctx context.Context, g *tenant.Gate, tc tenant.Context, subjectType string, subjectID uuid.UUID) ([]Approval, error) {
	q, err := g.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var out []Approval
	if err := q.Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("sequence").
		Find(&out).Error; err != nil {
		return nil, g.Translate(err)
	}
	return out, nil
}

// LogMany loads the records of several subjects, keyed by subject.
func LogMany(ctx context.Context, g *tenant.Gate, tc tenant.Context, subjectType string, subjectIDs []uuid.UUID) (map[uuid.UUID][]Approval, error) {
	out := make(map[uuid.UUID][]Approval, len(subjectIDs))
	if len(subjectIDs) == 0 {
		return out, nil
	}
	q, err := g.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var rows []Approval
	if err := q.Where("subject_type = ? AND subject_id IN ?", subjectType, subjectIDs).
		Order("subject_id").
		Order("sequence").
		Find(&rows).Error; err != nil {
		return nil, g.Translate(err)
	}
	for _, a := range rows {
		out[a.SubjectID] = append(out[a.SubjectID], a)
	}
	return out, nil
}
