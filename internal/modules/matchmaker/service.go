// README: Matcher sessions: consume the signal stream, gate, dedupe, notify.
package matchmaker

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"pulse/internal/geo"
	"pulse/internal/modules/signal"
	"pulse/internal/modules/visibility"
	"pulse/internal/types"
)

// Stream delivers other users' signal change events. The returned stop
// function must release the subscription and may be called once.
type Stream interface {
	Subscribe(ctx context.Context) (<-chan signal.StreamEvent, func(), error)
}

// Sink receives match notifications. Fire-and-forget; implementations must
// not block the event loop for long.
type Sink interface {
	MatchFound(viewer types.ID, m Match, vibrate, notify bool)
}

// Session is one viewer's matching state while their own signal is active.
// The seen set guarantees at-most-once notification per (owner, activity)
// until Clear.
type Session struct {
	viewer   types.ID
	activity signal.Activity
	position types.Point
	settings visibility.Settings

	mu   sync.Mutex
	seen map[MatchKey]bool
}

// SetActivity tracks what the viewer currently broadcasts, e.g. after a
// re-activation reuses the session.
func (s *Session) SetActivity(a signal.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = a
}

// UpdatePosition refreshes the viewer's fix used for distance gating.
func (s *Session) UpdatePosition(p types.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = p
}

// Clear wipes the dedup set so a re-activation can match the same users
// again.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[MatchKey]bool)
}

type Service struct {
	policy visibility.PolicyStore
	stream Stream
	sink   Sink
	// defaultVisibilityM applies when the viewer has no stored setting.
	defaultVisibilityM float64

	mu       sync.Mutex
	sessions map[types.ID]*sessionHandle
}

type sessionHandle struct {
	session *Session
	cancel  context.CancelFunc
}

func NewService(policy visibility.PolicyStore, stream Stream, sink Sink, defaultVisibilityM float64) *Service {
	return &Service{
		policy:             policy,
		stream:             stream,
		sink:               sink,
		defaultVisibilityM: defaultVisibilityM,
		sessions:           make(map[types.ID]*sessionHandle),
	}
}

// StartSession begins matching for a viewer whose signal just became
// active. Idempotent: a second start for the same viewer replaces the old
// session (and its subscription).
func (s *Service) StartSession(ctx context.Context, viewer types.ID, activity signal.Activity, position types.Point) (*Session, error) {
	settings, err := s.policy.Settings(ctx, viewer)
	if err != nil {
		log.Printf("matchmaker: settings for %s unavailable, matching with defaults: %v", viewer, err)
	}
	if settings.VisibilityM <= 0 {
		settings.VisibilityM = s.defaultVisibilityM
	}

	session := &Session{
		viewer:   viewer,
		activity: activity,
		position: position,
		settings: settings,
		seen:     make(map[MatchKey]bool),
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, stop, err := s.stream.Subscribe(runCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	s.mu.Lock()
	if old, ok := s.sessions[viewer]; ok {
		old.cancel()
	}
	s.sessions[viewer] = &sessionHandle{session: session, cancel: cancel}
	s.mu.Unlock()

	go s.run(runCtx, session, events, stop)
	return session, nil
}

// StopSession ends matching for a viewer and clears their dedup state.
// Safe to call for a viewer with no session.
func (s *Service) StopSession(viewer types.ID) {
	s.mu.Lock()
	handle, ok := s.sessions[viewer]
	if ok {
		delete(s.sessions, viewer)
	}
	s.mu.Unlock()
	if ok {
		handle.cancel()
		handle.session.Clear()
	}
}

func (s *Service) run(ctx context.Context, session *Session, events <-chan signal.StreamEvent, stop func()) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(ctx, session, ev)
		}
	}
}

// HandleEvent evaluates one incoming signal change against the session.
// Duplicate or reordered deliveries are harmless: the dedup key makes the
// whole evaluation idempotent.
func (s *Service) HandleEvent(ctx context.Context, session *Session, ev signal.StreamEvent) {
	if ev.Kind == signal.KindDelete {
		return
	}
	if ev.UserID == session.viewer {
		return
	}

	key := MatchKey{UserID: ev.UserID, Activity: ev.Activity}
	session.mu.Lock()
	already := session.seen[key]
	pos := session.position
	settings := session.settings
	session.mu.Unlock()
	if already {
		return
	}

	viewerActivity, ok := s.viewerActivity(ctx, session)
	if !ok {
		return
	}
	if !Compatible(viewerActivity, ev.Activity) {
		return
	}

	dist := geo.DistanceMeters(pos, ev.Position)
	if dist > settings.VisibilityM {
		return
	}

	ghost, err := s.policy.GhostMode(ctx, ev.UserID)
	if err != nil || ghost {
		return
	}
	blocked, err := s.policy.IsBlocked(ctx, session.viewer, ev.UserID)
	if err != nil || blocked {
		return
	}

	session.mu.Lock()
	if session.seen[key] {
		session.mu.Unlock()
		return
	}
	session.seen[key] = true
	session.mu.Unlock()

	m := Match{
		ID:          uuid.NewString(),
		OtherUserID: ev.UserID,
		Activity:    ev.Activity,
		DistanceM:   dist,
	}
	if profile, err := s.policy.PublicProfile(ctx, ev.UserID); err == nil {
		m.DisplayName = profile.DisplayName
	}
	s.sink.MatchFound(session.viewer, m, settings.VibrateOnMatch, settings.NotifyOnMatch)
}

// viewerActivity resolves what the viewer is broadcasting. Sessions exist
// only while the viewer's signal is active, so the activity is tracked on
// the session itself via SetActivity.
func (s *Service) viewerActivity(_ context.Context, session *Session) (signal.Activity, bool) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.activity == "" {
		return "", false
	}
	return session.activity, true
}
