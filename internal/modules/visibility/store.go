// README: Policy store backed by PostgreSQL (blocks, privacy settings, profiles).
package visibility

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulse/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) IsBlocked(ctx context.Context, a, b types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM blocks
            WHERE (blocker_id = $1 AND blocked_id = $2)
               OR (blocker_id = $2 AND blocked_id = $1)
        )`, string(a), string(b),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) GhostMode(ctx context.Context, userID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
        SELECT ghost_mode FROM privacy_settings WHERE user_id = $1`, string(userID),
	)
	var ghost bool
	err := row.Scan(&ghost)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ghost, nil
}

func (s *Store) Settings(ctx context.Context, userID types.ID) (Settings, error) {
	row := s.db.QueryRow(ctx, `
        SELECT visibility_m, ghost_mode, unlimited_mode, vibrate_on_match, notify_on_match
        FROM privacy_settings
        WHERE user_id = $1`, string(userID),
	)
	var st Settings
	err := row.Scan(&st.VisibilityM, &st.GhostMode, &st.Unlimited, &st.VibrateOnMatch, &st.NotifyOnMatch)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		// No stored row: the service applies defaults.
		return Settings{NotifyOnMatch: true}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	return st, nil
}

func (s *Store) PublicProfile(ctx context.Context, userID types.ID) (Profile, error) {
	row := s.db.QueryRow(ctx, `
        SELECT display_name, COALESCE(avatar_url, ''), COALESCE(rating, 0)
        FROM profiles
        WHERE user_id = $1`, string(userID),
	)
	var p Profile
	err := row.Scan(&p.DisplayName, &p.Avatar, &p.Rating)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
