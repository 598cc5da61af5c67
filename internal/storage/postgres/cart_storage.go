package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

type cartStorage struct {
	pool *pgxpool.Pool
}

// NewCartStorage создаёт PostgreSQL-реализацию CartStorage.
// Корзина сессии хранится одной строкой cart_sessions с JSONB-блобом.
func NewCartStorage(store *Store) domain.CartStorage {
	return &cartStorage{pool: store.Pool()}
}

func (s *cartStorage) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload
		FROM cart_sessions
		WHERE session_id = $1
	`, strings.TrimSpace(sessionID)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cart session: %w", err)
	}
	return payload, nil
}

func (s *cartStorage) Save(ctx context.Context, sessionID string, blob []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cart_sessions (session_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    updated_at = EXCLUDED.updated_at
	`, strings.TrimSpace(sessionID), blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save cart session: %w", err)
	}
	return nil
}

func (s *cartStorage) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cart_sessions WHERE session_id = $1`, strings.TrimSpace(sessionID)); err != nil {
		return fmt.Errorf("delete cart session: %w", err)
	}
	return nil
}

func (s *cartStorage) DeleteStale(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}
	if limit < 0 {
		limit = 0
	}

	// LIMIT NULL в PostgreSQL снимает ограничение.
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cart_sessions
		WHERE session_id IN (
			SELECT session_id
			FROM cart_sessions
			WHERE updated_at < $1
			ORDER BY updated_at
			LIMIT NULLIF($2::int, 0)
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete stale cart sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ domain.CartStorage = (*cartStorage)(nil)
