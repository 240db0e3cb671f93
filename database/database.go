// forum/database/database.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"forum/config"
	"forum/models"
	"forum/utils"

	"github.com/mattn/go-sqlite3"
)

// DatabaseService is the central struct for all database operations.
type DatabaseService struct {
	DB     *sql.DB
	logger *slog.Logger
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InitDB connects to the database, runs migrations, and seeds default boards.
func InitDB(dataSourceName string, logger *slog.Logger) (*DatabaseService, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	ds := NewService(db, logger)
	if err := ds.seedBoards(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database initialized.")
	return ds, nil
}

// NewService wraps an already-open handle without touching the schema.
func NewService(db *sql.DB, logger *slog.Logger) *DatabaseService {
	return &DatabaseService{DB: db, logger: logger.With("component", "database")}
}

// Close releases the underlying handle.
func (ds *DatabaseService) Close() error {
	return ds.DB.Close()
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	logger.Info("Current database schema version", "version", latestVersion)

	for _, m := range allMigrations {
		if m.Version > latestVersion {
			logger.Info("Applying migration", "version", m.Version)
			tx, err := db.Begin()
			if err != nil {
				return err
			}

			if _, err := tx.Exec(m.Query); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.GetSQLTime()); err != nil {
				if rerr := tx.Rollback(); rerr != nil {
					logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
				}
				return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
			}
			logger.Info("Successfully applied migration", "version", m.Version)
		}
	}
	return nil
}

// seedBoards inserts the default boards when the boards table is empty.
func (ds *DatabaseService) seedBoards(ctx context.Context) error {
	var boardCount int
	if err := ds.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM boards").Scan(&boardCount); err != nil {
		return fmt.Errorf("failed to count boards: %w", err)
	}
	if boardCount > 0 {
		return nil
	}

	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ds.rollback(tx, "seedBoards")

	now := utils.GetSQLTime()
	for _, b := range config.DefaultBoards {
		if _, err := tx.ExecContext(ctx, "INSERT INTO boards (name, description, created_at) VALUES (?, ?, ?)", b.Name, b.Description, now); err != nil {
			return fmt.Errorf("failed to seed boards: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit board seed: %w", err)
	}
	ds.logger.Info("Seeded default boards", "count", len(config.DefaultBoards))
	return nil
}

// LogAdminAction records an administrator's action inside the caller's transaction.
func LogAdminAction(ctx context.Context, tx *sql.Tx, actorID int64, action string, targetID int64, details string) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO admin_actions (timestamp, actor_id, action, target_id, details) VALUES (?, ?, ?, ?, ?)",
		utils.GetSQLTime(), actorID, action, targetID, details)
	if err != nil {
		return fmt.Errorf("failed to record admin action: %w", err)
	}
	return nil
}

// ListAdminActions returns the most recent audit entries.
func (ds *DatabaseService) ListAdminActions(ctx context.Context, limit int) ([]models.AdminAction, error) {
	rows, err := ds.DB.QueryContext(ctx, "SELECT id, timestamp, actor_id, action, COALESCE(target_id, 0), COALESCE(details, '') FROM admin_actions ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer ds.closeRows(rows, "ListAdminActions")

	var actions []models.AdminAction
	for rows.Next() {
		var a models.AdminAction
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.ActorID, &a.Action, &a.TargetID, &a.Details); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// --- Internal Helpers ---

func (ds *DatabaseService) rollback(tx *sql.Tx, where string) {
	if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
		ds.logger.Error("Failed to rollback transaction", "in", where, "error", rerr)
	}
}

func (ds *DatabaseService) closeRows(rows *sql.Rows, where string) {
	if err := rows.Close(); err != nil {
		ds.logger.Error("Failed to close rows", "in", where, "error", err)
	}
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
