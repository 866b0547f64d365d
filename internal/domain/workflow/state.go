package workflow

import "github.com/garyjia/invoice-intake/internal/domain/entity"

// State is a step in the approval-record lifecycle. Values match entity statuses.
type State string

const (
	StatePending  State = entity.StatusPending
	StateApproved State = entity.StatusApproved
	StateRejected State = entity.StatusRejected
)

var validStates = map[State]bool{
	StatePending:  true,
	StateApproved: true,
	StateRejected: true,
}

// IsTerminal returns true once a record has been decided
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// Trigger is a reviewer or system action on a record
type Trigger string

const (
	TriggerAutoApprove Trigger = "AUTO_APPROVE"
	TriggerApprove     Trigger = "APPROVE"
	TriggerReject      Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// Target returns the state a trigger leads to
func (t Trigger) Target() State {
	if t == TriggerReject {
		return StateRejected
	}
	return StateApproved
}
