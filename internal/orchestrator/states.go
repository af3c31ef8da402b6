package orchestrator

import (
	"io"
	"log/slog"
	"os"

	"github.com/robbyt/go-fsm"
)

// Invocation lifecycle state constants.
const (
	StateIdle       = "idle"       // Created, nothing validated yet
	StateValidating = "validating" // Source decode + policy scan + size check
	StateExecuting  = "executing"  // Script running inside the VM
	StateDraining   = "draining"   // Flushing or clearing the batch queue
	StateTerminated = "terminated" // Clean completion (terminal state)
	StateFailed     = "failed"     // Any fatal error (terminal state)
)

// Transitions defines the valid lifecycle transitions. Failure is
// reachable from every non-terminal state.
var Transitions = map[string][]string{
	StateIdle:       {StateValidating, StateFailed},
	StateValidating: {StateExecuting, StateFailed},
	StateExecuting:  {StateDraining, StateFailed},
	StateDraining:   {StateTerminated, StateFailed},
	StateTerminated: {}, // Terminal
	StateFailed:     {}, // Terminal
}

// newMachine creates the lifecycle state machine. Transition logs go to
// stderr only in debug mode.
func newMachine(debug bool) (*fsm.Machine, error) {
	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	return fsm.New(handler, StateIdle, Transitions)
}
