package workflow

import (
	"context"
	"fmt"
)

// approvalLifecycle is one-way: a pending record is decided exactly once
var approvalLifecycle = NewBuilder().
	Permit(StatePending, TriggerAutoApprove, StateApproved).
	Permit(StatePending, TriggerApprove, StateApproved).
	Permit(StatePending, TriggerReject, StateRejected)

// NewApprovalMachine builds a lifecycle machine for a record in the given status
func NewApprovalMachine(status string) (StateMachine, error) {
	return approvalLifecycle.Build(State(status))
}

// Decide applies trigger to a record in status and returns the resulting state.
// changed is false when the record already holds the requested outcome.
// The opposite outcome on a decided record returns ErrAlreadyDecided.
func Decide(ctx context.Context, status string, trigger Trigger) (next State, changed bool, err error) {
	m, err := NewApprovalMachine(status)
	if err != nil {
		return "", false, err
	}

	current := m.State()
	if current.IsTerminal() {
		if current == trigger.Target() {
			return current, false, nil
		}
		return current, false, fmt.Errorf("%w: record is %s", ErrAlreadyDecided, current)
	}

	if err := m.Fire(ctx, trigger); err != nil {
		return current, false, err
	}
	return m.State(), true, nil
}
