// README: Match types and the activity compatibility table.
package matchmaker

import (
	"pulse/internal/modules/signal"
	"pulse/internal/types"
)

// MatchKey deduplicates notifications: at most one per (owner, activity)
// while the viewer's signal stays active.
type MatchKey struct {
	UserID   types.ID
	Activity signal.Activity
}

// Match is the notification payload for one detected compatibility.
type Match struct {
	ID          string
	OtherUserID types.ID
	DisplayName string
	Activity    signal.Activity
	DistanceM   float64
}

// crossCompatible lists the cross-activity pairs that match. Identical
// activities always match and are not listed. Sport and other match
// themselves only; widening them is a product decision, not an inference
// to make here.
var crossCompatible = map[signal.Activity][]signal.Activity{
	signal.ActivityStudying: {signal.ActivityWorking},
	signal.ActivityWorking:  {signal.ActivityStudying},
	signal.ActivityEating:   {signal.ActivityTalking},
	signal.ActivityTalking:  {signal.ActivityEating},
}

// Compatible reports whether two activities should produce a match.
func Compatible(a, b signal.Activity) bool {
	if a == b {
		return true
	}
	for _, other := range crossCompatible[a] {
		if other == b {
			return true
		}
	}
	return false
}
