// README: Rate limit resources and decision types.
package ratelimit

import "time"

// Resource names an independently counted action kind.
type Resource string

const (
	// ResourceSignalCreate counts signal activations.
	ResourceSignalCreate Resource = "signal_create"
	// ResourceReveal counts profile reveals (anti-stalking cap).
	ResourceReveal Resource = "reveal"
	// ResourceMessage counts messages inside one paired interaction. This
	// one is lifetime-total, not windowed.
	ResourceMessage Resource = "message"
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed   bool
	Remaining int
}

const (
	// DefaultWindow is the rolling window applied to the windowed resources.
	DefaultWindow = time.Hour
)
