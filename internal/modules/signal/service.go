// README: Signal lifecycle service: activation, color cycling, extension, expiry.
package signal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"pulse/internal/config"
	"pulse/internal/modules/ratelimit"
	"pulse/internal/types"
)

var (
	ErrRateLimited   = errors.New("signal creation rate limit reached")
	ErrNoPosition    = errors.New("position unavailable")
	ErrNotActive     = errors.New("no active signal")
	ErrAlreadyActive = errors.New("signal already active")
	ErrBadRequest    = errors.New("bad request")
	ErrNotFound      = errors.New("signal not found")
	ErrConflict      = errors.New("signal state conflict")
)

// SignalStore is the persistence surface the service needs. *Store
// implements it against Postgres and Redis.
type SignalStore interface {
	Create(ctx context.Context, s *Signal) error
	GetActiveByUser(ctx context.Context, userID types.ID) (*Signal, error)
	UpdateColor(ctx context.Context, id types.ID, color Color, version int) (bool, error)
	UpdateExpiry(ctx context.Context, id types.ID, expiresAt time.Time, version int) (bool, error)
	SetInactive(ctx context.Context, id types.ID, version int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	AddGeo(ctx context.Context, userID types.ID, p types.Point) error
	RemoveGeo(ctx context.Context, userID types.ID) error
	ListExpired(ctx context.Context, now time.Time) ([]*Signal, error)
	Publish(ctx context.Context, ev StreamEvent) error
}

// PositionProvider supplies the owner's current position. Implementations
// must resolve within a bounded time (falling back to a default fix) or
// return an error.
type PositionProvider interface {
	Current(ctx context.Context) (types.Point, error)
}

// RateChecker is the slice of the rate limiter the service consumes.
type RateChecker interface {
	CheckAllowed(ctx context.Context, subject types.ID) ratelimit.Decision
	RecordEvent(ctx context.Context, subject types.ID) bool
}

// PlaceDescriber turns a position into a human-readable place hint. May be
// nil; failures yield an empty description and never block activation.
type PlaceDescriber interface {
	Describe(ctx context.Context, p types.Point) string
}

// ExpiryNotifier receives the owner-facing "your signal expired" event.
type ExpiryNotifier interface {
	SignalExpired(owner types.ID, signalID types.ID)
}

type Service struct {
	store     SignalStore
	limiter   RateChecker
	positions PositionProvider
	describer PlaceDescriber
	notifier  ExpiryNotifier
	cfg       config.SignalConfig
	now       func() time.Time
}

func NewService(store SignalStore, limiter RateChecker, positions PositionProvider, describer PlaceDescriber, notifier ExpiryNotifier, cfg config.SignalConfig) *Service {
	return &Service{
		store:     store,
		limiter:   limiter,
		positions: positions,
		describer: describer,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

type ActivateCommand struct {
	UserID              types.ID
	Activity            Activity
	LocationDescription string
}

// Activate creates the user's signal: inactive → active. The position must
// be resolvable and the hourly creation limit must not be exhausted.
func (s *Service) Activate(ctx context.Context, cmd ActivateCommand) (*Signal, error) {
	if cmd.UserID == "" || !ValidActivity(cmd.Activity) {
		return nil, ErrBadRequest
	}
	if existing, err := s.store.GetActiveByUser(ctx, cmd.UserID); err == nil && existing.Live(s.now()) {
		return nil, ErrAlreadyActive
	}

	pos, err := s.positions.Current(ctx)
	if err != nil {
		return nil, ErrNoPosition
	}

	if d := s.limiter.CheckAllowed(ctx, cmd.UserID); !d.Allowed {
		return nil, ErrRateLimited
	}

	now := s.now()
	desc := cmd.LocationDescription
	if desc == "" && s.describer != nil {
		desc = s.describer.Describe(ctx, pos)
	}

	sig := &Signal{
		ID:                  newID(),
		UserID:              cmd.UserID,
		Activity:            cmd.Activity,
		Color:               ColorGreen,
		Position:            pos,
		Status:              StatusActive,
		StatusVersion:       0,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.cfg.Duration),
		LocationDescription: desc,
	}
	if err := s.store.Create(ctx, sig); err != nil {
		return nil, err
	}
	if !s.limiter.RecordEvent(ctx, cmd.UserID) {
		// Local recording failed; the next server-side check reconciles.
		log.Printf("signal: rate event for %s not recorded", cmd.UserID)
	}
	if err := s.store.AddGeo(ctx, cmd.UserID, pos); err != nil {
		log.Printf("signal: geo add for %s failed: %v", cmd.UserID, err)
	}
	s.appendEvent(ctx, sig.ID, StatusInactive, StatusActive, "activate")
	s.publish(ctx, KindInsert, sig)
	return sig, nil
}

// CycleColor advances the active signal's color one step, wrapping at red.
func (s *Service) CycleColor(ctx context.Context, userID types.ID) (*Signal, error) {
	sig, err := s.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := sig.Color.Next()
	ok, err := s.store.UpdateColor(ctx, sig.ID, next, sig.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	sig.Color = next
	sig.StatusVersion++
	s.appendEvent(ctx, sig.ID, StatusActive, StatusActive, "cycle_color")
	s.publish(ctx, KindUpdate, sig)
	return sig, nil
}

// Extend pushes the expiry to now + the standard duration. Extensions do
// not stack on the old expiry.
func (s *Service) Extend(ctx context.Context, userID types.ID) (*Signal, error) {
	sig, err := s.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.cfg.Duration)
	ok, err := s.store.UpdateExpiry(ctx, sig.ID, expires, sig.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	sig.ExpiresAt = expires
	sig.StatusVersion++
	s.appendEvent(ctx, sig.ID, StatusActive, StatusActive, "extend")
	s.publish(ctx, KindUpdate, sig)
	return sig, nil
}

// Deactivate is the user-initiated active → inactive transition. Unlike
// expiry it produces no owner notification.
func (s *Service) Deactivate(ctx context.Context, userID types.ID) error {
	sig, err := s.active(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.store.SetInactive(ctx, sig.ID, sig.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if err := s.store.RemoveGeo(ctx, userID); err != nil {
		log.Printf("signal: geo remove for %s failed: %v", userID, err)
	}
	s.appendEvent(ctx, sig.ID, StatusActive, StatusInactive, "deactivate")
	s.publish(ctx, KindDelete, sig)
	return nil
}

// Active returns the caller's live signal, applying the defensive read-time
// expiry check.
func (s *Service) Active(ctx context.Context, userID types.ID) (*Signal, error) {
	return s.active(ctx, userID)
}

func (s *Service) active(ctx context.Context, userID types.ID) (*Signal, error) {
	sig, err := s.store.GetActiveByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotActive
	}
	if err != nil {
		return nil, err
	}
	if !sig.Live(s.now()) {
		return nil, ErrNotActive
	}
	return sig, nil
}

// RunExpiryMonitor sweeps overdue signals to inactive and notifies their
// owners. Blocks until ctx is cancelled.
func (s *Service) RunExpiryMonitor(ctx context.Context) {
	tick := time.Duration(s.cfg.ExpirySweepSeconds) * time.Second
	if tick <= 0 {
		tick = 30 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *Service) sweepExpired(ctx context.Context) {
	expired, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		log.Printf("signal: expiry sweep failed: %v", err)
		return
	}
	for _, sig := range expired {
		ok, err := s.store.SetInactive(ctx, sig.ID, sig.StatusVersion)
		if err != nil {
			log.Printf("signal: expire %s failed: %v", sig.ID, err)
			continue
		}
		if !ok {
			// Concurrent transition won; the next sweep re-evaluates.
			continue
		}
		if err := s.store.RemoveGeo(ctx, sig.UserID); err != nil {
			log.Printf("signal: geo remove for %s failed: %v", sig.UserID, err)
		}
		s.appendEvent(ctx, sig.ID, StatusActive, StatusInactive, "expire")
		s.publish(ctx, KindDelete, sig)
		if s.notifier != nil {
			s.notifier.SignalExpired(sig.UserID, sig.ID)
		}
	}
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, cause string) {
	err := s.store.AppendEvent(ctx, &Event{
		SignalID:   id,
		FromStatus: from,
		ToStatus:   to,
		Cause:      cause,
		CreatedAt:  s.now(),
	})
	if err != nil {
		log.Printf("signal: event append for %s failed: %v", id, err)
	}
}

func (s *Service) publish(ctx context.Context, kind string, sig *Signal) {
	err := s.store.Publish(ctx, StreamEvent{
		Kind:      kind,
		SignalID:  sig.ID,
		UserID:    sig.UserID,
		Activity:  sig.Activity,
		Color:     sig.Color,
		Position:  sig.Position,
		ExpiresAt: sig.ExpiresAt,
	})
	if err != nil {
		log.Printf("signal: publish %s for %s failed: %v", kind, sig.ID, err)
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
