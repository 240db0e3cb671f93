package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"forum/models"
	"forum/utils"
)

const postSelect = `
	SELECT p.id, p.board_id, p.user_id, p.title, p.content, p.media_path, p.created_at,
		b.name, b.description, b.created_at,
		u.username, u.is_admin, u.avatar_path
	FROM posts p
	JOIN boards b ON p.board_id = b.id
	LEFT JOIN users u ON p.user_id = u.id`

// CreatePost inserts a post into an existing board.
func (ds *DatabaseService) CreatePost(ctx context.Context, post *models.Post) error {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ds.rollback(tx, "CreatePost")

	if _, err := getBoard(ctx, tx, post.BoardID); err != nil {
		return err
	}

	post.CreatedAt = utils.GetSQLTime()
	res, err := tx.ExecContext(ctx, "INSERT INTO posts (board_id, user_id, title, content, media_path, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		post.BoardID, nullInt64(post.UserID), post.Title, post.Content, nullString(post.MediaPath), post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	if post.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPost fetches one post with its board and author joined in.
func (ds *DatabaseService) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	rows, err := ds.DB.QueryContext(ctx, postSelect+" WHERE p.id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("db error getting post %d: %w", id, err)
	}
	defer ds.closeRows(rows, "GetPost")

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &models.NotFoundError{Entity: "post", ID: id}
	}
	return scanPost(rows)
}

// ListPosts returns posts newest first, narrowed by the filter.
func (ds *DatabaseService) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	var where []string
	var args []any
	if filter.BoardID != nil {
		where = append(where, "p.board_id = ?")
		args = append(args, *filter.BoardID)
	}
	if filter.UserID != nil {
		where = append(where, "p.user_id = ?")
		args = append(args, *filter.UserID)
	}
	query := postSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.id DESC"

	rows, err := ds.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer ds.closeRows(rows, "ListPosts")

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// PostMediaRefs lists the media references of a post and its replies.
func (ds *DatabaseService) PostMediaRefs(ctx context.Context, postID int64) ([]string, error) {
	return ds.mediaRefs(ctx, "PostMediaRefs", `
		SELECT media_path FROM posts WHERE id = ? AND media_path IS NOT NULL AND media_path != ''
		UNION ALL
		SELECT media_path FROM replies WHERE post_id = ? AND media_path IS NOT NULL AND media_path != ''`, postID, postID)
}

// DeletePost removes a post's replies and then the post itself. adminActorID is
// recorded in the audit log when the deletion is an administrator action.
func (ds *DatabaseService) DeletePost(ctx context.Context, id int64, adminActorID *int64) error {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ds.rollback(tx, "DeletePost")

	if _, err := tx.ExecContext(ctx, "DELETE FROM replies WHERE post_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete replies: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete post record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.NotFoundError{Entity: "post", ID: id}
	}
	if adminActorID != nil {
		if err := LogAdminAction(ctx, tx, *adminActorID, "delete_post", id, ""); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateReply inserts a reply under an existing post.
func (ds *DatabaseService) CreateReply(ctx context.Context, reply *models.Reply) error {
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ds.rollback(tx, "CreateReply")

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM posts WHERE id = ?", reply.PostID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return &models.NotFoundError{Entity: "post", ID: reply.PostID}
		}
		return err
	}

	reply.CreatedAt = utils.GetSQLTime()
	res, err := tx.ExecContext(ctx, "INSERT INTO replies (post_id, user_id, content, media_path, created_at) VALUES (?, ?, ?, ?, ?)",
		reply.PostID, nullInt64(reply.UserID), reply.Content, nullString(reply.MediaPath), reply.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reply: %w", err)
	}
	if reply.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return tx.Commit()
}

// ListRepliesForPosts returns replies for the given posts keyed by post id,
// oldest first within each post.
func (ds *DatabaseService) ListRepliesForPosts(ctx context.Context, postIDs []int64) (map[int64][]models.Reply, error) {
	out := make(map[int64][]models.Reply, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(postIDs)), ",")
	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT r.id, r.post_id, r.user_id, r.content, r.media_path, r.created_at,
			u.username, u.is_admin, u.avatar_path
		FROM replies r
		LEFT JOIN users u ON r.user_id = u.id
		WHERE r.post_id IN (%s)
		ORDER BY r.created_at ASC, r.id ASC`, placeholders)

	rows, err := ds.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	defer ds.closeRows(rows, "ListRepliesForPosts")

	for rows.Next() {
		var r models.Reply
		var userID sql.NullInt64
		var media sql.NullString
		var a authorColumns
		if err := rows.Scan(&r.ID, &r.PostID, &userID, &r.Content, &media, &r.CreatedAt,
			&a.username, &a.isAdmin, &a.avatar); err != nil {
			return nil, err
		}
		r.UserID = int64Ptr(userID)
		r.MediaPath = media.String
		r.Author = a.user(r.UserID)
		out[r.PostID] = append(out[r.PostID], r)
	}
	return out, rows.Err()
}

type authorColumns struct {
	username sql.NullString
	isAdmin  sql.NullBool
	avatar   sql.NullString
}

func (a authorColumns) user(id *int64) *models.User {
	if id == nil || !a.username.Valid {
		return nil
	}
	return &models.User{ID: *id, Username: a.username.String, IsAdmin: a.isAdmin.Bool, AvatarPath: a.avatar.String}
}

func scanPost(rows *sql.Rows) (*models.Post, error) {
	var p models.Post
	var b models.Board
	var userID sql.NullInt64
	var media sql.NullString
	var a authorColumns
	if err := rows.Scan(&p.ID, &p.BoardID, &userID, &p.Title, &p.Content, &media, &p.CreatedAt,
		&b.Name, &b.Description, &b.CreatedAt,
		&a.username, &a.isAdmin, &a.avatar); err != nil {
		return nil, err
	}
	b.ID = p.BoardID
	p.Board = &b
	p.UserID = int64Ptr(userID)
	p.MediaPath = media.String
	p.Author = a.user(p.UserID)
	return &p, nil
}
