package database

import (
	"context"
	"database/sql"
	"fmt"

	"forum/models"
	"forum/utils"
)

// CreateBoard inserts a board. The UNIQUE constraint on name is the
// authoritative duplicate guard.
func (ds *DatabaseService) CreateBoard(ctx context.Context, actorID int64, name, description string) (*models.Board, error) {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer ds.rollback(tx, "CreateBoard")

	now := utils.GetSQLTime()
	res, err := tx.ExecContext(ctx, "INSERT INTO boards (name, description, created_at) VALUES (?, ?, ?)", name, description, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &models.DuplicateError{Entity: "board name", Value: name}
		}
		return nil, fmt.Errorf("failed to insert board: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := LogAdminAction(ctx, tx, actorID, "create_board", id, name); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit board creation: %w", err)
	}
	return &models.Board{ID: id, Name: name, Description: description, CreatedAt: now}, nil
}

// GetBoard fetches a board by id.
func (ds *DatabaseService) GetBoard(ctx context.Context, id int64) (*models.Board, error) {
	return getBoard(ctx, ds.DB, id)
}

func getBoard(ctx context.Context, q queryer, id int64) (*models.Board, error) {
	var b models.Board
	err := q.QueryRowContext(ctx, "SELECT id, name, description, created_at FROM boards WHERE id = ?", id).
		Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &models.NotFoundError{Entity: "board", ID: id}
		}
		return nil, fmt.Errorf("db error getting board %d: %w", id, err)
	}
	return &b, nil
}

// ListBoards returns all boards ordered by id.
func (ds *DatabaseService) ListBoards(ctx context.Context) ([]models.Board, error) {
	rows, err := ds.DB.QueryContext(ctx, "SELECT id, name, description, created_at FROM boards ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer ds.closeRows(rows, "ListBoards")

	var boards []models.Board
	for rows.Next() {
		var b models.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// UpdateBoard renames/redescribes a board in place.
func (ds *DatabaseService) UpdateBoard(ctx context.Context, actorID, id int64, name, description string) (*models.Board, error) {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer ds.rollback(tx, "UpdateBoard")

	board, err := getBoard(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE boards SET name = ?, description = ? WHERE id = ?", name, description, id); err != nil {
		if isUniqueViolation(err) {
			return nil, &models.DuplicateError{Entity: "board name", Value: name}
		}
		return nil, fmt.Errorf("failed to update board: %w", err)
	}
	if err := LogAdminAction(ctx, tx, actorID, "edit_board", id, fmt.Sprintf("%s -> %s", board.Name, name)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit board update: %w", err)
	}
	board.Name, board.Description = name, description
	return board, nil
}

// BoardMediaRefs lists every media reference held by the board's posts and
// their replies.
func (ds *DatabaseService) BoardMediaRefs(ctx context.Context, boardID int64) ([]string, error) {
	return ds.mediaRefs(ctx, "BoardMediaRefs", `
		SELECT media_path FROM posts WHERE board_id = ? AND media_path IS NOT NULL AND media_path != ''
		UNION ALL
		SELECT r.media_path FROM replies r JOIN posts p ON r.post_id = p.id
		WHERE p.board_id = ? AND r.media_path IS NOT NULL AND r.media_path != ''`, boardID, boardID)
}

// DeleteBoard removes the board's replies, then its posts, then the board
// row, all in one transaction.
func (ds *DatabaseService) DeleteBoard(ctx context.Context, actorID, id int64) error {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ds.rollback(tx, "DeleteBoard")

	board, err := getBoard(ctx, tx, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM replies WHERE post_id IN (SELECT id FROM posts WHERE board_id = ?)", id); err != nil {
		return fmt.Errorf("failed to delete board replies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM posts WHERE board_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete board posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM boards WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete board record: %w", err)
	}
	if err := LogAdminAction(ctx, tx, actorID, "delete_board", id, board.Name); err != nil {
		return err
	}
	return tx.Commit()
}

func (ds *DatabaseService) mediaRefs(ctx context.Context, where, query string, args ...any) ([]string, error) {
	rows, err := ds.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query media references: %w", err)
	}
	defer ds.closeRows(rows, where)

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
