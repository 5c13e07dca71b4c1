// README: Integration tests for routing, identity, and error mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"pulse/internal/config"
	"pulse/internal/http/handlers"
	httpmiddleware "pulse/internal/http/middleware"
	"pulse/internal/modules/matchmaker"
	"pulse/internal/modules/ratelimit"
	"pulse/internal/modules/signal"
	"pulse/internal/modules/visibility"
	"pulse/internal/types"
)

// stubPositions is a test double for the position provider.
type stubPositions struct {
	point types.Point
	err   error
}

func (s *stubPositions) Current(context.Context) (types.Point, error) {
	return s.point, s.err
}

// stubCounterStore backs the limiters with an in-memory counter.
type stubCounterStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newStubCounterStore() *stubCounterStore {
	return &stubCounterStore{counts: make(map[string]int)}
}

func (s *stubCounterStore) key(subject types.ID, res ratelimit.Resource) string {
	return string(subject) + "/" + string(res)
}

func (s *stubCounterStore) CountSince(_ context.Context, subject types.ID, res ratelimit.Resource, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[s.key(subject, res)], nil
}

func (s *stubCounterStore) Record(_ context.Context, subject types.ID, res ratelimit.Resource, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[s.key(subject, res)]++
	return nil
}

// stubMatcher records session starts and stops.
type stubMatcher struct {
	mu      sync.Mutex
	started []types.ID
	stopped []types.ID
}

func (m *stubMatcher) StartSession(_ context.Context, viewer types.ID, _ signal.Activity, _ types.Point) (*matchmaker.Session, error) {
	m.mu.Lock()
	m.started = append(m.started, viewer)
	m.mu.Unlock()
	return nil, nil
}

func (m *stubMatcher) StopSession(viewer types.ID) {
	m.mu.Lock()
	m.stopped = append(m.stopped, viewer)
	m.mu.Unlock()
}

func (m *stubMatcher) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stopped)
}

// stubSignalStore backs the signal service for handler-level tests.
type stubSignalStore struct {
	mu          sync.Mutex
	signals     map[types.ID]*signal.Signal
	setInactive bool
}

func newStubSignalStore(active ...*signal.Signal) *stubSignalStore {
	s := &stubSignalStore{signals: make(map[types.ID]*signal.Signal), setInactive: true}
	for _, sig := range active {
		s.signals[sig.UserID] = sig
	}
	return s
}

func (s *stubSignalStore) Create(_ context.Context, sig *signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[sig.UserID] = sig
	return nil
}

func (s *stubSignalStore) GetActiveByUser(_ context.Context, userID types.ID) (*signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[userID]
	if !ok {
		return nil, signal.ErrNotFound
	}
	return sig, nil
}

func (s *stubSignalStore) UpdateColor(context.Context, types.ID, signal.Color, int) (bool, error) {
	return true, nil
}

func (s *stubSignalStore) UpdateExpiry(context.Context, types.ID, time.Time, int) (bool, error) {
	return true, nil
}

func (s *stubSignalStore) SetInactive(context.Context, types.ID, int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setInactive, nil
}

func (s *stubSignalStore) AppendEvent(context.Context, *signal.Event) error     { return nil }
func (s *stubSignalStore) AddGeo(context.Context, types.ID, types.Point) error  { return nil }
func (s *stubSignalStore) RemoveGeo(context.Context, types.ID) error            { return nil }
func (s *stubSignalStore) Publish(context.Context, signal.StreamEvent) error    { return nil }
func (s *stubSignalStore) ListExpired(context.Context, time.Time) ([]*signal.Signal, error) {
	return nil, nil
}

type stubPolicy struct{}

func (stubPolicy) IsBlocked(context.Context, types.ID, types.ID) (bool, error) { return false, nil }
func (stubPolicy) GhostMode(context.Context, types.ID) (bool, error)           { return false, nil }
func (stubPolicy) Settings(context.Context, types.ID) (visibility.Settings, error) {
	return visibility.Settings{VisibilityM: 500}, nil
}
func (stubPolicy) PublicProfile(context.Context, types.ID) (visibility.Profile, error) {
	return visibility.Profile{DisplayName: "Sam"}, nil
}

type stubSource struct {
	signals []*signal.Signal
}

func (s *stubSource) ActiveWithin(context.Context, types.Point, float64) ([]*signal.Signal, error) {
	return s.signals, nil
}

// buildTestRouter wires a minimal Gin engine with the identity middleware
// and the handlers under test. Services are constructed over stub stores;
// paths that would touch a nil store are not exercised here.
func buildTestRouter(counter *stubCounterStore, positions *stubPositions, source *stubSource) *gin.Engine {
	gin.SetMode(gin.TestMode)

	signalSvc := signal.NewService(nil, nil, positions, nil, nil, testSignalConfig())
	visibilitySvc := visibility.NewService(stubPolicy{}, source, 500)
	reveals := ratelimit.NewLimiter(ratelimit.ResourceReveal, 2, ratelimit.DefaultWindow, counter)
	messages := ratelimit.NewCap(ratelimit.ResourceMessage, 3, counter)

	r := gin.New()
	api := r.Group("/api", httpmiddleware.Identity())

	signalHandler := handlers.NewSignalHandler(context.Background(), signalSvc, nil)
	api.POST("/signals", signalHandler.Activate)

	nearbyHandler := handlers.NewNearbyHandler(visibilitySvc, positions)
	api.GET("/nearby", nearbyHandler.List)

	mapHandler := handlers.NewMapHandler(visibilitySvc, positions)
	api.GET("/map/clusters", mapHandler.Clusters)

	privacyHandler := handlers.NewPrivacyHandler(visibilitySvc, stubPolicy{}, signalSvc, positions, reveals, messages)
	api.GET("/messages/:interaction/quota", privacyHandler.MessageQuota)
	api.POST("/messages/:interaction", privacyHandler.ConsumeMessage)
	return r
}

func testSignalConfig() config.SignalConfig {
	return config.SignalConfig{Duration: time.Hour, MaxPerHour: 10, ExpirySweepSeconds: 30}
}

func doRequest(r *gin.Engine, method, path string, body any, uid string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// buildSignalRouter wires only the signal routes over a stub store and
// matcher, for lifecycle ordering tests.
func buildSignalRouter(store *stubSignalStore, matcher *stubMatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := signal.NewService(store, nil, nil, nil, nil, testSignalConfig())
	r := gin.New()
	api := r.Group("/api", httpmiddleware.Identity())
	h := handlers.NewSignalHandler(context.Background(), svc, matcher)
	api.DELETE("/signals", h.Deactivate)
	return r
}

func activeSignal(userID types.ID) *signal.Signal {
	return &signal.Signal{
		ID:        "sig-" + userID,
		UserID:    userID,
		Activity:  signal.ActivityStudying,
		Color:     signal.ColorGreen,
		Status:    signal.StatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestActivate_MissingIdentity(t *testing.T) {
	r := buildTestRouter(newStubCounterStore(), &stubPositions{}, &stubSource{})
	w := doRequest(r, http.MethodPost, "/api/signals", map[string]any{"activity": "studying"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestActivate_InvalidActivity(t *testing.T) {
	r := buildTestRouter(newStubCounterStore(), &stubPositions{}, &stubSource{})
	w := doRequest(r, http.MethodPost, "/api/signals", map[string]any{"activity": "skydiving"}, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestNearby_NoPositionYieldsEmptyList(t *testing.T) {
	positions := &stubPositions{err: errors.New("no fix")}
	r := buildTestRouter(newStubCounterStore(), positions, &stubSource{})
	w := doRequest(r, http.MethodGet, "/api/nearby", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Users []json.RawMessage `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Users) != 0 {
		t.Errorf("expected empty user list, got %d entries", len(resp.Users))
	}
}

func TestNearby_ReturnsAnnotatedCandidates(t *testing.T) {
	now := time.Now()
	source := &stubSource{signals: []*signal.Signal{
		{
			ID:        "sig-1",
			UserID:    "bob",
			Activity:  signal.ActivityStudying,
			Color:     signal.ColorGreen,
			Position:  types.Point{Lat: 48.8580, Lng: 2.3522},
			Status:    signal.StatusActive,
			ExpiresAt: now.Add(time.Hour),
		},
	}}
	positions := &stubPositions{point: types.Point{Lat: 48.8566, Lng: 2.3522}}
	r := buildTestRouter(newStubCounterStore(), positions, source)

	w := doRequest(r, http.MethodGet, "/api/nearby", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Users []struct {
			UserID    string  `json:"user_id"`
			DistanceM float64 `json:"distance_m"`
			Distance  string  `json:"distance"`
		} `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(resp.Users))
	}
	if resp.Users[0].UserID != "bob" {
		t.Errorf("user_id = %q, want bob", resp.Users[0].UserID)
	}
	if resp.Users[0].DistanceM < 100 || resp.Users[0].DistanceM > 200 {
		t.Errorf("distance_m = %v, want ~156m", resp.Users[0].DistanceM)
	}
	if resp.Users[0].Distance == "" {
		t.Error("expected formatted distance annotation")
	}
}

func TestClusters_InvalidBounds(t *testing.T) {
	r := buildTestRouter(newStubCounterStore(), &stubPositions{}, &stubSource{})
	w := doRequest(r, http.MethodGet, "/api/map/clusters?west=oops&south=0&east=1&north=1&zoom=3", nil, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDeactivate_StopsSessionOnSuccess(t *testing.T) {
	matcher := &stubMatcher{}
	r := buildSignalRouter(newStubSignalStore(activeSignal("alice")), matcher)

	w := doRequest(r, http.MethodDelete, "/api/signals", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if matcher.stopCount() != 1 {
		t.Errorf("expected session stopped once, got %d", matcher.stopCount())
	}
}

func TestDeactivate_NotActiveKeepsSession(t *testing.T) {
	matcher := &stubMatcher{}
	r := buildSignalRouter(newStubSignalStore(), matcher)

	w := doRequest(r, http.MethodDelete, "/api/signals", nil, "alice")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if matcher.stopCount() != 0 {
		t.Errorf("session stopped %d times on failed deactivate, want 0", matcher.stopCount())
	}
}

func TestDeactivate_ConflictKeepsSession(t *testing.T) {
	matcher := &stubMatcher{}
	store := newStubSignalStore(activeSignal("alice"))
	store.setInactive = false
	r := buildSignalRouter(store, matcher)

	w := doRequest(r, http.MethodDelete, "/api/signals", nil, "alice")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if matcher.stopCount() != 0 {
		t.Errorf("session stopped %d times on version conflict, want 0", matcher.stopCount())
	}
}

func TestNearby_QueryPositionOverridesWatcher(t *testing.T) {
	now := time.Now()
	source := &stubSource{signals: []*signal.Signal{
		{
			ID:        "sig-1",
			UserID:    "bob",
			Activity:  signal.ActivityStudying,
			Color:     signal.ColorGreen,
			Position:  types.Point{Lat: 48.8580, Lng: 2.3522},
			Status:    signal.StatusActive,
			ExpiresAt: now.Add(time.Hour),
		},
	}}
	// The watcher has no fix; the caller supplies their own position.
	positions := &stubPositions{err: errors.New("no fix")}
	r := buildTestRouter(newStubCounterStore(), positions, source)

	w := doRequest(r, http.MethodGet, "/api/nearby?lat=48.8566&lng=2.3522", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Users []struct {
			UserID string `json:"user_id"`
		} `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].UserID != "bob" {
		t.Fatalf("users = %+v, want exactly bob", resp.Users)
	}
}

func TestMessageQuota_ConsumeUntilExhausted(t *testing.T) {
	r := buildTestRouter(newStubCounterStore(), &stubPositions{}, &stubSource{})

	w := doRequest(r, http.MethodGet, "/api/messages/pair-1/quota", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("quota read: expected 200, got %d", w.Code)
	}
	var quota struct {
		Remaining int `json:"remaining"`
		Max       int `json:"max"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &quota); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if quota.Remaining != 3 || quota.Max != 3 {
		t.Fatalf("quota = %+v, want 3/3", quota)
	}

	for i := 0; i < 3; i++ {
		w = doRequest(r, http.MethodPost, "/api/messages/pair-1", nil, "alice")
		if w.Code != http.StatusOK {
			t.Fatalf("consume %d: expected 200, got %d", i+1, w.Code)
		}
	}
	w = doRequest(r, http.MethodPost, "/api/messages/pair-1", nil, "alice")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after cap, got %d", w.Code)
	}

	// Other interactions keep their own allowance.
	w = doRequest(r, http.MethodPost, "/api/messages/pair-2", nil, "alice")
	if w.Code != http.StatusOK {
		t.Errorf("other interaction: expected 200, got %d", w.Code)
	}
}
