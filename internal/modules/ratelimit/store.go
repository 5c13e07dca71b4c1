// README: Counter store backed by Redis sorted sets (windowed) and plain counters (caps).
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse/internal/types"
)

const (
	windowKeyPrefix = "ratelimit:%s:%s" // resource, subject
	capKeyPrefix    = "ratecap:%s:%s"
	// windowKeyTTL keeps stale windowed sets from accumulating. Must exceed
	// the largest configured window.
	windowKeyTTL = 2 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// CountSince counts events at or after since. A zero since means "ever" and
// reads the lifetime counter instead of the windowed set.
func (s *Store) CountSince(ctx context.Context, subject types.ID, res Resource, since time.Time) (int, error) {
	if since.IsZero() {
		val, err := s.redis.Get(ctx, capKey(res, subject)).Result()
		if err == redis.Nil {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, err
		}
		return n, nil
	}

	min := strconv.FormatInt(since.UnixMilli(), 10)
	n, err := s.redis.ZCount(ctx, windowKey(res, subject), min, "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Record(ctx context.Context, subject types.ID, res Resource, at time.Time) error {
	if res == ResourceMessage {
		return s.redis.Incr(ctx, capKey(res, subject)).Err()
	}

	key := windowKey(res, subject)
	ts := at.UnixMilli()
	pipe := s.redis.Pipeline()
	// Nanosecond member keeps same-millisecond events distinct in the set.
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(ts),
		Member: strconv.FormatInt(at.UnixNano(), 10),
	})
	// Trim events that can no longer fall inside any window.
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(at.Add(-windowKeyTTL).UnixMilli(), 10))
	pipe.Expire(ctx, key, windowKeyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func windowKey(res Resource, subject types.ID) string {
	return fmt.Sprintf(windowKeyPrefix, string(res), string(subject))
}

func capKey(res Resource, subject types.ID) string {
	return fmt.Sprintf(capKeyPrefix, string(res), string(subject))
}
