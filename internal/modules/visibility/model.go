// README: Viewer-facing projections and privacy policy types.
package visibility

import (
	"pulse/internal/modules/signal"
	"pulse/internal/types"
)

// Candidate is one other user's signal as considered by the filter.
type Candidate struct {
	SignalID    types.ID
	UserID      types.ID
	DisplayName string
	Avatar      string
	Rating      float64
	Activity    signal.Activity
	Color       signal.Color
	Position    types.Point
	// DistanceM is filled by the filter from the viewer's live position.
	DistanceM float64
}

// Settings are the viewer's privacy knobs.
type Settings struct {
	// VisibilityM is the nearby radius in meters.
	VisibilityM float64
	// GhostMode hides the user from everyone else's queries.
	GhostMode bool
	// Unlimited lifts the distance cut on what the viewer sees (demo mode).
	// Reveal eligibility still uses VisibilityM.
	Unlimited bool
	// VibrateOnMatch / NotifyOnMatch gate the local match alerts.
	VibrateOnMatch bool
	NotifyOnMatch  bool
}

// Profile is the public slice of another user's profile.
type Profile struct {
	DisplayName string
	Avatar      string
	Rating      float64
}

// Viewer is the querying user plus their current fix, nil when unknown.
type Viewer struct {
	ID       types.ID
	Position *types.Point
	Settings Settings
}
