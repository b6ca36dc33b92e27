package controller

import (
	"errors"
	"fmt"

	"github.com/impairlab/impairctl/pkg/stats"
)

// State is the controller's belief about the engine run state
type State int

// Engine run states
const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAlreadyInState is matched by the InvalidTransition returned when starting a
	// running engine or stopping a stopped one
	ErrAlreadyInState = errors.New("engine already in requested state")
	// ErrConfigInvalid is returned when a configuration fails validation
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrConfigLocked is returned when trying to change the configuration while running
	ErrConfigLocked = errors.New("configuration cannot change while the engine is running")
	// ErrClosed is returned by commands issued after Close
	ErrClosed = errors.New("controller is closed")
)

// InvalidTransition is returned when a command is not valid in the current state.
// No request is sent to the engine.
type InvalidTransition struct {
	Command string
	State   State
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s: engine is already %s", e.Command, e.State)
}

// Is allows matching the error with ErrAlreadyInState
func (e *InvalidTransition) Is(target error) bool {
	return target == ErrAlreadyInState
}

// Update is published to subscribers each time the state or the snapshot change
type Update struct {
	State    State
	Snapshot stats.Snapshot
}
