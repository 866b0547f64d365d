package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned for an unknown state
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every guarded transition refuses the trigger
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrAlreadyDecided is returned when a decided record receives the opposite decision
	ErrAlreadyDecided = errors.New("approval already decided")
)
