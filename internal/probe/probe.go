package probe

import (
	"context"
	"time"
)

// Status is the outcome class of a single probe.
type Status int

const (
	Reachable Status = iota
	Unreachable
	// ExecutionError means the probe mechanism itself failed to run,
	// so nothing is known about the target.
	ExecutionError
)

func (s Status) String() string {
	switch s {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	case ExecutionError:
		return "execution_error"
	default:
		return "unknown"
	}
}

// Result is the unified result of a single probe.
//
// Detail carries diagnostic text for Unreachable and ExecutionError
// (command output, HTTP status, transport error).
type Result struct {
	Status  Status
	Detail  string
	Latency time.Duration
}

// Prober performs a single reachability check for a target address.
// Implementations bound the call with their own timeout.
type Prober interface {
	Probe(ctx context.Context, address string) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, address string) Result

func (f ProberFunc) Probe(ctx context.Context, address string) Result { return f(ctx, address) }
