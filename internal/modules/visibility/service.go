// README: Visibility filter: self, distance, ghost mode, and block gates.
package visibility

import (
	"context"
	"log"
	"sort"

	"pulse/internal/geo"
	"pulse/internal/modules/signal"
	"pulse/internal/types"
)

// PolicyStore answers the privacy lookups. Implementations are read-only;
// the filter never writes.
type PolicyStore interface {
	// IsBlocked reports whether a block exists between a and b in either
	// direction.
	IsBlocked(ctx context.Context, a, b types.ID) (bool, error)
	GhostMode(ctx context.Context, userID types.ID) (bool, error)
	Settings(ctx context.Context, userID types.ID) (Settings, error)
	PublicProfile(ctx context.Context, userID types.ID) (Profile, error)
}

// SignalSource supplies the live signals around a point.
type SignalSource interface {
	ActiveWithin(ctx context.Context, p types.Point, radiusM float64) ([]*signal.Signal, error)
}

type Service struct {
	policy  PolicyStore
	signals SignalSource
	// defaultVisibilityM applies when a user has no stored setting.
	defaultVisibilityM float64
}

func NewService(policy PolicyStore, signals SignalSource, defaultVisibilityM float64) *Service {
	return &Service{policy: policy, signals: signals, defaultVisibilityM: defaultVisibilityM}
}

// ViewerSettings loads the viewer's settings, falling back to defaults when
// the store has none or is unreachable.
func (s *Service) ViewerSettings(ctx context.Context, userID types.ID) Settings {
	st, err := s.policy.Settings(ctx, userID)
	if err != nil {
		log.Printf("visibility: settings for %s unavailable, using defaults: %v", userID, err)
		return Settings{VisibilityM: s.defaultVisibilityM, NotifyOnMatch: true}
	}
	if st.VisibilityM <= 0 {
		st.VisibilityM = s.defaultVisibilityM
	}
	return st
}

// Filter applies the exclusion rules in order (self, distance, ghost mode,
// blocks) and returns the survivors sorted nearest first with distances
// attached. A viewer without a position sees nothing. Policy lookup
// failures exclude the affected candidate rather than failing the query.
func (s *Service) Filter(ctx context.Context, viewer Viewer, candidates []Candidate) []Candidate {
	if viewer.Position == nil {
		return []Candidate{}
	}

	out := []Candidate{}
	for _, c := range candidates {
		if c.UserID == viewer.ID {
			continue
		}
		c.DistanceM = geo.DistanceMeters(*viewer.Position, c.Position)
		if !viewer.Settings.Unlimited && c.DistanceM > viewer.Settings.VisibilityM {
			continue
		}
		ghost, err := s.policy.GhostMode(ctx, c.UserID)
		if err != nil || ghost {
			continue
		}
		blocked, err := s.policy.IsBlocked(ctx, viewer.ID, c.UserID)
		if err != nil || blocked {
			continue
		}
		out = append(out, c)
	}

	// Order by user id first, then stable-sort by distance: equal distances
	// end up tie-broken by user id regardless of input order.
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	geo.SortByDistance(out, func(c Candidate) float64 { return c.DistanceM })
	return out
}

// Nearby assembles the candidate set around the viewer from the live signal
// index, joins public profiles, and filters it. Backend failures degrade to
// an empty result.
func (s *Service) Nearby(ctx context.Context, viewerID types.ID, position *types.Point) []Candidate {
	viewer := Viewer{ID: viewerID, Position: position, Settings: s.ViewerSettings(ctx, viewerID)}
	if viewer.Position == nil {
		return []Candidate{}
	}

	radius := viewer.Settings.VisibilityM
	if viewer.Settings.Unlimited {
		// No distance cut in unlimited mode; search wide and let Filter sort.
		radius = 50_000_000
	}
	signals, err := s.signals.ActiveWithin(ctx, *viewer.Position, radius)
	if err != nil {
		log.Printf("visibility: nearby query for %s failed: %v", viewerID, err)
		return []Candidate{}
	}

	candidates := make([]Candidate, 0, len(signals))
	for _, sig := range signals {
		c := Candidate{
			SignalID: sig.ID,
			UserID:   sig.UserID,
			Activity: sig.Activity,
			Color:    sig.Color,
			Position: sig.Position,
		}
		if profile, err := s.policy.PublicProfile(ctx, sig.UserID); err == nil {
			c.DisplayName = profile.DisplayName
			c.Avatar = profile.Avatar
			c.Rating = profile.Rating
		}
		candidates = append(candidates, c)
	}
	return s.Filter(ctx, viewer, candidates)
}
