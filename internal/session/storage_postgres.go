package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"partner-portal/internal/rbac"
)

// Schema creates the sessions table used by PostgresStorage.
const Schema = `
CREATE TABLE IF NOT EXISTS portal_sessions (
	scope      TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	role       TEXT NOT NULL CHECK (role IN ('AZOR', 'COVENANT')),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage keeps one row per device scope. A single row carries both
// token and role, so the set-together invariant holds at the storage level.
// Rows older than ttl are invisible to Load and removed by Sweep; a non-positive
// ttl keeps rows until they are deleted.
type PostgresStorage struct {
	db  *sql.DB
	ttl time.Duration
}

func NewPostgresStorage(db *sql.DB, ttl time.Duration) *PostgresStorage {
	return &PostgresStorage{db: db, ttl: ttl}
}

// Migrate applies Schema.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Load(ctx context.Context, scope string) (Session, error) {
	var token, role string
	var err error
	if p.ttl > 0 {
		err = p.db.QueryRowContext(ctx, `
			SELECT token, role FROM portal_sessions
			WHERE scope = $1 AND updated_at > now() - make_interval(secs => $2::float8)`,
			scope, p.ttl.Seconds(),
		).Scan(&token, &role)
	} else {
		err = p.db.QueryRowContext(ctx,
			`SELECT token, role FROM portal_sessions WHERE scope = $1`, scope,
		).Scan(&token, &role)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: postgres load: %w", err)
	}
	return Session{Token: token, Role: rbac.Role(role)}, nil
}

func (p *PostgresStorage) Save(ctx context.Context, scope string, s Session) error {
	if !s.Complete() {
		return ErrIncompleteSession
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO portal_sessions (scope, token, role, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (scope) DO UPDATE
		SET token = EXCLUDED.token, role = EXCLUDED.role, updated_at = now()`,
		scope, s.Token, s.Role.String(),
	)
	if err != nil {
		return fmt.Errorf("session: postgres save: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Delete(ctx context.Context, scope string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM portal_sessions WHERE scope = $1`, scope); err != nil {
		return fmt.Errorf("session: postgres delete: %w", err)
	}
	return nil
}

// Sweep deletes rows that outlived the TTL and reports how many went.
func (p *PostgresStorage) Sweep(ctx context.Context) (int64, error) {
	if p.ttl <= 0 {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM portal_sessions WHERE updated_at <= now() - make_interval(secs => $1::float8)`,
		p.ttl.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("session: postgres sweep: %w", err)
	}
	return res.RowsAffected()
}

// Run sweeps every interval until ctx is done.
func (p *PostgresStorage) Run(ctx context.Context, interval time.Duration, log *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Sweep(ctx)
			if err != nil {
				log.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
