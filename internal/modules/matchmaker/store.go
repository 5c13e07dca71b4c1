// README: Signal event stream backed by Redis pub/sub.
package matchmaker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"pulse/internal/modules/signal"
)

const subscribeBuffer = 64

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Subscribe opens a subscription on the signal event channel. Events are
// delivered in arrival order; the transport may duplicate or drop under
// reconnects, which the session dedup absorbs.
func (s *Store) Subscribe(ctx context.Context) (<-chan signal.StreamEvent, func(), error) {
	sub := s.redis.Subscribe(ctx, signal.EventChannel)
	// Force the subscription to be established before we report success.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan signal.StreamEvent, subscribeBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev signal.StreamEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("matchmaker: dropping malformed event: %v", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		if err := sub.Close(); err != nil {
			log.Printf("matchmaker: unsubscribe failed: %v", err)
		}
	}
	return out, stop, nil
}
