// Package sandbox provides isolated, capability-restricted execution of
// patched source text. Evaluated code never runs with ambient access to the
// host — the only handles it can reach are the ones explicitly exposed as
// capabilities.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrExecutionTimeout is returned when the wall-clock bound expires.
// The sandbox is torn down and no partial result is salvaged.
var ErrExecutionTimeout = errors.New("execution timed out")

// FaultError wraps an uncaught fault raised by the evaluated text.
// It is caught at the sandbox boundary and never propagates as a host crash.
type FaultError struct {
	Message string
}

func (e *FaultError) Error() string {
	return "execution fault: " + e.Message
}

// Sandbox evaluates source text in an isolated environment.
type Sandbox interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Request defines what to evaluate and under what constraints.
type Request struct {
	// Source is the program text to evaluate as a standalone script.
	Source string

	// Capabilities are named handles exposed inside the sandbox, merged on
	// top of the default set (console, timers, Buffer, process). A caller
	// capability with the same name shadows the default.
	Capabilities map[string]any

	// Timeout overrides the sandbox default. Zero = use default.
	Timeout time.Duration
}

// Result captures the outcome of a successful evaluation.
type Result struct {
	// Value is the exported value of the last top-level expression or
	// statement of the evaluated text, nil if it produced none.
	Value any

	// Output is everything the script wrote through the default console
	// capability, size-capped. Empty when the caller shadowed console.
	Output string

	Duration time.Duration
}
