// README: Delivery sink for match and expiry notifications.
package notify

import (
	"log"
	"sync"

	"pulse/internal/modules/matchmaker"
	"pulse/internal/types"
)

// SessionStopper ends a viewer's matching session. Satisfied by the
// matchmaker service.
type SessionStopper interface {
	StopSession(viewer types.ID)
}

// LogSink writes notifications to the process log. It stands in for a
// push-delivery channel and satisfies both the matchmaker sink and the
// signal expiry notifier. When a session stopper is bound, an expiry also
// ends the owner's matching session, mirroring the deactivate path.
type LogSink struct {
	mu       sync.Mutex
	sessions SessionStopper
}

func NewLogSink() *LogSink {
	return &LogSink{}
}

// BindSessions attaches the matchmaker after construction; the sink and
// the matchmaker reference each other, so one side binds late.
func (s *LogSink) BindSessions(sessions SessionStopper) {
	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
}

func (s *LogSink) MatchFound(viewer types.ID, m matchmaker.Match, vibrate, notify bool) {
	log.Printf("match for user %s: %s (%s, %.0fm away) vibrate=%t notify=%t",
		viewer, m.DisplayName, m.Activity, m.DistanceM, vibrate, notify)
}

func (s *LogSink) SignalExpired(owner types.ID, signalID types.ID) {
	log.Printf("signal %s for user %s expired", signalID, owner)
	s.mu.Lock()
	sessions := s.sessions
	s.mu.Unlock()
	if sessions != nil {
		sessions.StopSession(owner)
	}
}
