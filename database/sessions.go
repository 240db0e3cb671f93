package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"forum/models"
	"forum/utils"
)

// CreateSession stores the hash of a session id for a user.
func (ds *DatabaseService) CreateSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := ds.DB.ExecContext(ctx, "INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		tokenHash, userID, utils.GetSQLTime(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionUser resolves an unexpired session hash to its user.
func (ds *DatabaseService) GetSessionUser(ctx context.Context, tokenHash string) (*models.User, error) {
	var userID int64
	var expiresAt time.Time
	err := ds.DB.QueryRowContext(ctx, "SELECT user_id, expires_at FROM sessions WHERE token_hash = ?", tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &models.NotFoundError{Entity: "session", ID: "current"}
		}
		return nil, err
	}
	if !utils.GetSQLTime().Before(expiresAt) {
		return nil, &models.NotFoundError{Entity: "session", ID: "current"}
	}
	return ds.GetUser(ctx, userID)
}

// DeleteSession removes a session. Deleting an unknown session is not an error.
func (ds *DatabaseService) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := ds.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", tokenHash)
	return err
}

// DeleteExpiredSessions sweeps sessions past their expiry.
func (ds *DatabaseService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := ds.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", utils.GetSQLTime())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
