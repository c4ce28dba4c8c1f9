/*
Package workflow is the approval state machine shared by request types.

STATES:

	          submit
	   (new) ───────▶ pending ──approve──▶ approved
	                     │  │                 │
	               reject│  │cancel     cancel│
	                     ▼  ▼                 ▼
	               rejected cancelled ◀───────┘

EFFECTS:
  Each edge names the balance effect the owning ledger must apply in the
  same transaction as the state change:

	submit            reserve
	approve           consume
	reject            release
	cancel (pending)  release
	cancel (approved) restore

  Approved -> cancelled is a compensating action, not a reversal of the
  approve edge: the approval record stays in the log.

SEE ALSO:
  - approval.go: append-only log of transitions
  - timeoff/request.go: leave requests driving the balance ledger
*/
package workflow

import (
	"github.com/warp/hr-ledger/generic"
)

type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StateCancelled:
		return true
	}
	return false
}

// Blocking reports whether a request in this state still holds its dates
// and balance. Rejected and cancelled requests hold nothing.
func (s State) Blocking() bool {
	return s == StatePending || s == StateApproved
}

// BlockingStates lists the states that hold dates, for queries.
func BlockingStates() []State {
	return []State{StatePending, StateApproved}
}

type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

type Effect string

const (
	EffectReserve Effect = "reserve"
	EffectConsume Effect = "consume"
	EffectRelease Effect = "release"
	EffectRestore Effect = "restore"
)

// Transition is one permitted edge.
type Transition struct {
	From   State
	Action Action
	To     State
	Effect Effect
}

// stateNew is the implicit state before submission.
const stateNew State = ""

var transitions = []Transition{
	{From: stateNew, Action: ActionSubmit, To: StatePending, Effect: EffectReserve},
	{From: StatePending, Action: ActionApprove, To: StateApproved, Effect: EffectConsume},
	{From: StatePending, Action: ActionReject, To: StateRejected, Effect: EffectRelease},
	{From: StatePending, Action: ActionCancel, To: StateCancelled, Effect: EffectRelease},
	{From: StateApproved, Action: ActionCancel, To: StateCancelled, Effect: EffectRestore},
}

// Next returns the edge for action from the given state, or an
// InvalidTransitionError.
func Next(from State, action Action) (Transition, error) {
	for _, t := range transitions {
		if t.From == from && t.Action == action {
			return t, nil
		}
	}
	name := string(from)
	if from == stateNew {
		name = "new"
	}
	return Transition{}, &generic.InvalidTransitionError{From: name, Action: string(action)}
}

// Submission is the edge every request starts with.
func Submission() Transition {
	return transitions[0]
}
