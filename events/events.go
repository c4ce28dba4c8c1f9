/*
Package events announces committed changes to the rest of the platform.

DELIVERY:
  The core publishes only after a transaction commits, so a subscriber never
  sees a change that was rolled back. Delivery is best effort: a full queue
  or a broker failure is logged and the event is dropped. The database stays
  the source of truth.

ORDERING:
  Kafka messages are keyed by tenant and subject, so every event about one
  employee (or one leave request) lands on the same partition in commit
  order.

IMPLEMENTATIONS:
  Nop:      default; discards everything
  Recorder: keeps events in memory for tests
  Producer: asynchronous Kafka producer
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	JobRecorded       Type = "job.recorded"
	JobVoided         Type = "job.voided"
	JobCorrected      Type = "job.corrected"
	LeaveSubmitted    Type = "leave.submitted"
	LeaveApproved     Type = "leave.approved"
	LeaveRejected     Type = "leave.rejected"
	LeaveCancelled    Type = "leave.cancelled"
	BalanceRolledOver Type = "balance.rolled_over"
)

// Event is the envelope written to the bus. Payload is serialized as JSON.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	TenantID   uuid.UUID `json:"tenant_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	SubjectID  uuid.UUID `json:"subject_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// New fills in the id and timestamp of an event.
func New(t Type, tenantID, actorID, subjectID uuid.UUID, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		TenantID:   tenantID,
		ActorID:    actorID,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Key is the partitioning key: tenant and subject.
func (e Event) Key() string {
	return e.TenantID.String() + "/" + e.SubjectID.String()
}

// Publisher must not block the caller for long and must not fail it.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
