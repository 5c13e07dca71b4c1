// README: Signal aggregate, activity/color enums, and lifecycle definitions.
package signal

import (
	"time"

	"pulse/internal/types"
)

type Activity string

const (
	ActivityStudying Activity = "studying"
	ActivityEating   Activity = "eating"
	ActivityWorking  Activity = "working"
	ActivityTalking  Activity = "talking"
	ActivitySport    Activity = "sport"
	ActivityOther    Activity = "other"
)

var activities = map[Activity]bool{
	ActivityStudying: true,
	ActivityEating:   true,
	ActivityWorking:  true,
	ActivityTalking:  true,
	ActivitySport:    true,
	ActivityOther:    true,
}

func ValidActivity(a Activity) bool { return activities[a] }

// Color is the openness indicator shown on the map marker.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
)

// Next advances green → yellow → red → green.
func (c Color) Next() Color {
	switch c {
	case ColorGreen:
		return ColorYellow
	case ColorYellow:
		return ColorRed
	default:
		return ColorGreen
	}
}

type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
)

// AllowedTransitions represents the signal lifecycle as code. Color cycling
// and extension are active self-loops; both deactivation and expiry land on
// inactive.
var AllowedTransitions = map[Status][]Status{
	StatusInactive: {StatusActive},
	StatusActive:   {StatusActive, StatusInactive},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type Signal struct {
	ID            types.ID
	UserID        types.ID
	Activity      Activity
	Color         Color
	Position      types.Point
	Status        Status
	StatusVersion int
	CreatedAt     time.Time
	ExpiresAt     time.Time
	// LocationDescription is a free-text place hint, user-supplied or
	// reverse-geocoded on activation.
	LocationDescription string
}

// Live reports whether the signal should be treated as active at the given
// instant. An active row whose expiry has passed reads as inactive even
// before the expiry monitor transitions it.
func (s *Signal) Live(now time.Time) bool {
	return s.Status == StatusActive && s.ExpiresAt.After(now)
}

// Event is one lifecycle transition, appended to the state event log.
type Event struct {
	ID         int64
	SignalID   types.ID
	FromStatus Status
	ToStatus   Status
	Cause      string // "activate", "cycle_color", "extend", "deactivate", "expire"
	CreatedAt  time.Time
}

// StreamEvent is the wire shape broadcast to live subscribers whenever any
// user's signal changes.
type StreamEvent struct {
	Kind      string      `json:"kind"` // "insert", "update", "delete"
	SignalID  types.ID    `json:"signal_id"`
	UserID    types.ID    `json:"user_id"`
	Activity  Activity    `json:"activity"`
	Color     Color       `json:"color"`
	Position  types.Point `json:"position"`
	ExpiresAt time.Time   `json:"expires_at"`
}

const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)
