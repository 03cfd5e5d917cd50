package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/pocket-ledger/internal/session"
)

// SaveSession stores the current login, replacing any previous one. Sessions
// are device-local and never journaled.
func (s *SQLiteStorage) SaveSession(ctx context.Context, sess session.Session) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(sess.UserID, "userID"); err != nil {
		return err
	}
	if err := validateString(sess.AccessToken, "token"); err != nil {
		return err
	}

	var expires any
	if !sess.ExpiresAt.IsZero() {
		expires = sess.ExpiresAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, user_id, token, expires_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			token = excluded.token,
			expires_at = excluded.expires_at`,
		sess.UserID, sess.AccessToken, expires)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored login or session.ErrNoSession.
func (s *SQLiteStorage) LoadSession(ctx context.Context) (*session.Session, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		sess    session.Session
		expires sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, token, expires_at FROM session WHERE id = 1`,
	).Scan(&sess.UserID, &sess.AccessToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if expires.Valid && expires.String != "" {
		if sess.ExpiresAt, err = time.Parse(time.RFC3339, expires.String); err != nil {
			return nil, fmt.Errorf("stored session has invalid expiry %q: %w", expires.String, err)
		}
	}
	return &sess, nil
}

// ClearSession removes the stored login. Pending journal entries are kept.
func (s *SQLiteStorage) ClearSession(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
