package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"household-ledger/internal/models"
)

// CreateSession creates a new session for an account.
func (db *DB) CreateSession(ctx context.Context, token string, accountID int64, expiresAt time.Time) error {
	_, err := db.q.ExecContext(ctx,
		"INSERT INTO sessions (token, account_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, accountID, expiresAt.UTC(), time.Now().UTC(),
	)
	return err
}

// ValidateSession checks if a session token is valid and returns the associated account.
func (db *DB) ValidateSession(ctx context.Context, token string) (*models.Account, error) {
	info, err := db.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.Account, nil
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error) {
	row := db.q.QueryRowContext(ctx, `
		SELECT a.id, a.account_name, a.user_email, a.password_hash, a.display_name, a.currency,
		       a.created_at, a.last_updated, a.last_login_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN accounts a ON s.account_id = a.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now().UTC())

	var (
		a                       models.Account
		lastLogin               sql.NullTime
		lastActivity, expiresAt time.Time
	)
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Currency,
		&a.CreatedAt, &a.LastUpdated, &lastLogin, &lastActivity, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	return &models.SessionInfo{Account: &a, LastActivity: lastActivity, ExpiresAt: expiresAt}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.q.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().UTC(), newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.q.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions and reports how many went.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	result, err := db.q.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
