package database

import (
	"context"
	"database/sql"
	"fmt"

	"forum/models"
	"forum/utils"
)

const userColumns = "id, username, password_hash, is_admin, avatar_path, created_at"

// CreateUser inserts a user. A taken username yields a DuplicateError.
func (ds *DatabaseService) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*models.User, error) {
	now := utils.GetSQLTime()
	res, err := ds.DB.ExecContext(ctx, "INSERT INTO users (username, password_hash, is_admin, created_at) VALUES (?, ?, ?, ?)",
		username, passwordHash, isAdmin, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &models.DuplicateError{Entity: "username", Value: username}
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Username: username, PasswordHash: passwordHash, IsAdmin: isAdmin, CreatedAt: now}, nil
}

// GetUser fetches a user by primary key.
func (ds *DatabaseService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(ds.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "user", ID: id}
	}
	return u, err
}

// GetUserByUsername fetches a user by their unique username.
func (ds *DatabaseService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(ds.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "user", ID: username}
	}
	return u, err
}

// SetAdmin flips the admin flag for a username.
func (ds *DatabaseService) SetAdmin(ctx context.Context, username string, isAdmin bool) error {
	res, err := ds.DB.ExecContext(ctx, "UPDATE users SET is_admin = ? WHERE username = ?", isAdmin, username)
	if err != nil {
		return fmt.Errorf("failed to update admin flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.NotFoundError{Entity: "user", ID: username}
	}
	return nil
}

// UpdateAvatar replaces the user's avatar reference and returns the previous one.
func (ds *DatabaseService) UpdateAvatar(ctx context.Context, userID int64, avatarPath string) (string, error) {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer ds.rollback(tx, "UpdateAvatar")

	var previous sql.NullString
	if err := tx.QueryRowContext(ctx, "SELECT avatar_path FROM users WHERE id = ?", userID).Scan(&previous); err != nil {
		if err == sql.ErrNoRows {
			return "", &models.NotFoundError{Entity: "user", ID: userID}
		}
		return "", err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE users SET avatar_path = ? WHERE id = ?", nullString(avatarPath), userID); err != nil {
		return "", fmt.Errorf("failed to update avatar: %w", err)
	}
	return previous.String, tx.Commit()
}

// CountAdmins returns how many administrator accounts exist.
func (ds *DatabaseService) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := ds.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE is_admin = 1").Scan(&n)
	return n, err
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var avatar sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &avatar, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.AvatarPath = avatar.String
	return &u, nil
}
