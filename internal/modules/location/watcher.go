// README: Position watcher resource with bounded acquisition and fallback.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"pulse/internal/config"
	"pulse/internal/types"
)

var ErrNoFix = errors.New("no position fix available")

// Source is the device-side position feed (external collaborator). Watch
// must deliver updates until the returned stop function is called.
type Source interface {
	Watch(onUpdate func(types.Point), onError func(error)) (stop func(), err error)
}

// Watcher wraps a Source as an explicit start/stop resource. If no fix
// arrives within the configured timeout it falls back to the default
// position so callers are never left hanging.
type Watcher struct {
	source Source
	cfg    config.LocationConfig

	mu      sync.Mutex
	current *types.Point
	started bool
}

func NewWatcher(source Source, cfg config.LocationConfig) *Watcher {
	return &Watcher{source: source, cfg: cfg}
}

// Start begins watching and returns a disposer. The disposer is safe to
// call more than once; only the first call releases the underlying watch
// and the fallback timer.
func (w *Watcher) Start(onUpdate func(types.Point)) (func(), error) {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	deliver := func(p types.Point) {
		w.mu.Lock()
		cp := p
		w.current = &cp
		w.mu.Unlock()
		if onUpdate != nil {
			onUpdate(p)
		}
	}

	stopSource, err := w.source.Watch(deliver, func(error) {
		// Errors from the device feed are absorbed; the fallback timer or
		// the last known fix covers the gap.
	})
	if err != nil {
		stopSource = func() {}
	}

	// Fallback: if nothing arrived within the timeout, synthesize the
	// default fix so waiting callers unblock.
	timer := time.AfterFunc(w.cfg.AcquireTimeout, func() {
		w.mu.Lock()
		missing := w.current == nil
		w.mu.Unlock()
		if missing {
			deliver(w.fallback())
		}
	})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			timer.Stop()
			stopSource()
			w.mu.Lock()
			w.started = false
			w.mu.Unlock()
		})
	}
	return stop, nil
}

// Current returns the last known fix, or the default position when the
// watcher is running but has no fix yet. Implements the signal service's
// PositionProvider.
func (w *Watcher) Current(_ context.Context) (types.Point, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		return *w.current, nil
	}
	if w.started {
		return w.fallback(), nil
	}
	return types.Point{}, ErrNoFix
}

func (w *Watcher) fallback() types.Point {
	return types.Point{Lat: w.cfg.DefaultLat, Lng: w.cfg.DefaultLng}
}
