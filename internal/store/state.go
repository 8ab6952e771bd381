package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LastSync returns the start time of the last successful pass for an
// account and service. The zero time means never.
func (s *Store) LastSync(ctx context.Context, account, svc string) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_success FROM sync_state WHERE account = ? AND service = ?`,
		account, svc).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load sync state: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// SetLastSync records a successful pass.
func (s *Store) SetLastSync(ctx context.Context, account, svc string, t time.Time) error {
	_, err := s.execOne(ctx, `
	INSERT INTO sync_state (account, service, last_success) VALUES (?, ?, ?)
	ON CONFLICT(account, service) DO UPDATE SET last_success = excluded.last_success`,
		account, svc, t.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}
