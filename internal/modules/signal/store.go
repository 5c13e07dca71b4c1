// README: Signal store backed by PostgreSQL rows, a Redis GEO set, and pub/sub.
package signal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pulse/internal/types"
)

const (
	geoKey = "signals:geo"
	// EventChannel carries StreamEvent JSON for live subscribers.
	EventChannel = "signals:events"
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) Create(ctx context.Context, sig *Signal) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO signals (
            id, user_id, activity, color, lat, lng, accuracy_m,
            status, status_version, created_at, expires_at, location_description
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7,
            $8, $9, $10, $11, $12
        )`,
		string(sig.ID),
		string(sig.UserID),
		string(sig.Activity),
		string(sig.Color),
		sig.Position.Lat, sig.Position.Lng, sig.Position.AccuracyM,
		string(sig.Status),
		sig.StatusVersion,
		sig.CreatedAt,
		sig.ExpiresAt,
		sig.LocationDescription,
	)
	return err
}

func (s *Store) GetActiveByUser(ctx context.Context, userID types.ID) (*Signal, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, user_id, activity, color, lat, lng, accuracy_m,
               status, status_version, created_at, expires_at, location_description
        FROM signals
        WHERE user_id = $1 AND status = 'active'
        ORDER BY created_at DESC
        LIMIT 1`, string(userID),
	)
	return scanSignal(row)
}

func (s *Store) UpdateColor(ctx context.Context, id types.ID, color Color, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE signals
        SET color = $1, status_version = status_version + 1
        WHERE id = $2 AND status = 'active' AND status_version = $3`,
		string(color), string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateExpiry(ctx context.Context, id types.ID, expiresAt time.Time, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE signals
        SET expires_at = $1, status_version = status_version + 1
        WHERE id = $2 AND status = 'active' AND status_version = $3`,
		expiresAt, string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetInactive(ctx context.Context, id types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE signals
        SET status = 'inactive', status_version = status_version + 1
        WHERE id = $1 AND status = 'active' AND status_version = $2`,
		string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO signal_state_events (
            signal_id, from_status, to_status, cause, created_at
        ) VALUES ($1, $2, $3, $4, $5)`,
		string(e.SignalID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.Cause,
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*Signal, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, user_id, activity, color, lat, lng, accuracy_m,
               status, status_version, created_at, expires_at, location_description
        FROM signals
        WHERE status = 'active' AND expires_at <= $1`, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// AddGeo registers the owner in the active-signal GEO set so nearby queries
// can use a radius search instead of a table scan.
func (s *Store) AddGeo(ctx context.Context, userID types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(userID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *Store) RemoveGeo(ctx context.Context, userID types.ID) error {
	return s.redis.ZRem(ctx, geoKey, string(userID)).Err()
}

// ActiveWithin returns the live signals whose owners sit within radiusM of
// p, nearest first. The GEO set provides the candidate owners and Postgres
// supplies the rows.
func (s *Store) ActiveWithin(ctx context.Context, p types.Point, radiusM float64) ([]*Signal, error) {
	members, err := s.redis.GeoSearch(ctx, geoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusM,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	owners := make([]string, len(members))
	for i, m := range members {
		owners[i] = m
	}
	rows, err := s.db.Query(ctx, `
        SELECT id, user_id, activity, color, lat, lng, accuracy_m,
               status, status_version, created_at, expires_at, location_description
        FROM signals
        WHERE user_id = ANY($1) AND status = 'active'`, owners,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byOwner := make(map[types.ID]*Signal, len(owners))
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		byOwner[sig.UserID] = sig
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the nearest-first ordering from the GEO search.
	out := make([]*Signal, 0, len(byOwner))
	for _, m := range members {
		if sig, ok := byOwner[types.ID(m)]; ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *Store) Publish(ctx context.Context, ev StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, EventChannel, payload).Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*Signal, error) {
	var sig Signal
	var desc sql.NullString
	err := row.Scan(
		&sig.ID, &sig.UserID, &sig.Activity, &sig.Color,
		&sig.Position.Lat, &sig.Position.Lng, &sig.Position.AccuracyM,
		&sig.Status, &sig.StatusVersion, &sig.CreatedAt, &sig.ExpiresAt, &desc,
	)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		sig.LocationDescription = desc.String
	}
	return &sig, nil
}
