package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"forum/config"
	"forum/models"

	"github.com/DATA-DOG/go-sqlmock"
)

// setupTestDB creates a fresh on-disk SQLite database for testing.
func setupTestDB(t *testing.T) *DatabaseService {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dir, err := os.MkdirTemp("", "forum_test_db")
	if err != nil {
		t.Fatalf("Failed to create temp dir for test DB: %v", err)
	}
	dbPath := filepath.Join(dir, "test.db?_journal_mode=WAL&_foreign_keys=on")

	ds, err := InitDB(dbPath, logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	t.Cleanup(func() {
		ds.Close()
		os.RemoveAll(dir)
	})

	return ds
}

func mustUser(t *testing.T, ds *DatabaseService, name string, admin bool) *models.User {
	t.Helper()
	u, err := ds.CreateUser(context.Background(), name, "hash", admin)
	if err != nil {
		t.Fatalf("CreateUser(%q) failed: %v", name, err)
	}
	return u
}

func mustPost(t *testing.T, ds *DatabaseService, boardID int64, author *models.User, title, media string) *models.Post {
	t.Helper()
	p := &models.Post{BoardID: boardID, UserID: &author.ID, Title: title, Content: "body", MediaPath: media}
	if err := ds.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost(%q) failed: %v", title, err)
	}
	return p
}

func mustReply(t *testing.T, ds *DatabaseService, postID int64, author *models.User, media string) *models.Reply {
	t.Helper()
	r := &models.Reply{PostID: postID, UserID: &author.ID, Content: "reply", MediaPath: media}
	if err := ds.CreateReply(context.Background(), r); err != nil {
		t.Fatalf("CreateReply on post %d failed: %v", postID, err)
	}
	return r
}

func count(t *testing.T, ds *DatabaseService, query string, args ...any) int {
	t.Helper()
	var n int
	if err := ds.DB.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query %q failed: %v", query, err)
	}
	return n
}

// TestInitDB checks that default boards are seeded exactly once.
func TestInitDB(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()

	boards, err := ds.ListBoards(ctx)
	if err != nil {
		t.Fatalf("ListBoards failed: %v", err)
	}
	if len(boards) != len(config.DefaultBoards) {
		t.Fatalf("Expected %d seeded boards, got %d", len(config.DefaultBoards), len(boards))
	}
	for i, b := range boards {
		if b.Name != config.DefaultBoards[i].Name {
			t.Errorf("Board %d: expected name %q, got %q", i, config.DefaultBoards[i].Name, b.Name)
		}
	}

	if err := ds.seedBoards(ctx); err != nil {
		t.Fatalf("Second seed failed: %v", err)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM boards"); n != len(config.DefaultBoards) {
		t.Errorf("Seeding is not idempotent: expected %d boards, got %d", len(config.DefaultBoards), n)
	}
}

// TestMigrations verifies that every migration is recorded.
func TestMigrations(t *testing.T) {
	ds := setupTestDB(t)

	for _, m := range allMigrations {
		var version uint
		err := ds.DB.QueryRow("SELECT version FROM schema_migrations WHERE version = ?", m.Version).Scan(&version)
		if err != nil {
			t.Fatalf("Migration version %d was not recorded: %v", m.Version, err)
		}
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_sessions_expires'"); n != 1 {
		t.Error("Expected idx_sessions_expires to exist after migrations")
	}
}

func TestUniqueConstraints(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	admin := mustUser(t, ds, "admin", true)

	tests := []struct {
		name string
		run  func() error
	}{
		{"duplicate username", func() error {
			_, err := ds.CreateUser(ctx, "admin", "other", false)
			return err
		}},
		{"duplicate board on create", func() error {
			_, err := ds.CreateBoard(ctx, admin.ID, "General", "")
			return err
		}},
		{"duplicate board on rename", func() error {
			_, err := ds.UpdateBoard(ctx, admin.ID, 2, "General", "")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if !errors.Is(err, models.ErrDuplicate) {
				t.Fatalf("Expected ErrDuplicate, got %v", err)
			}
		})
	}
}

func TestListPostsOrderingAndFilter(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, ds, "alice", false)
	bob := mustUser(t, ds, "bob", false)

	first := mustPost(t, ds, 1, alice, "first", "")
	second := mustPost(t, ds, 2, bob, "second", "")
	third := mustPost(t, ds, 1, bob, "third", "uploads/x.png")

	all, err := ds.ListPosts(ctx, models.PostFilter{})
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	want := []int64{third.ID, second.ID, first.ID}
	if len(all) != len(want) {
		t.Fatalf("Expected %d posts, got %d", len(want), len(all))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("Position %d: expected post %d, got %d", i, id, all[i].ID)
		}
	}
	if all[0].Board == nil || all[0].Board.Name != config.DefaultBoards[0].Name {
		t.Errorf("Expected board to be joined in, got %+v", all[0].Board)
	}
	if all[0].Author == nil || all[0].Author.Username != "bob" {
		t.Errorf("Expected author bob to be joined in, got %+v", all[0].Author)
	}
	if all[0].MediaPath != "uploads/x.png" {
		t.Errorf("Expected media path to round-trip, got %q", all[0].MediaPath)
	}

	boardID := int64(1)
	filtered, err := ds.ListPosts(ctx, models.PostFilter{BoardID: &boardID})
	if err != nil {
		t.Fatalf("Filtered ListPosts failed: %v", err)
	}
	if len(filtered) != 2 || filtered[0].ID != third.ID || filtered[1].ID != first.ID {
		t.Errorf("Unexpected board-filtered posts: %+v", filtered)
	}

	mine, err := ds.ListPosts(ctx, models.PostFilter{UserID: &alice.ID})
	if err != nil {
		t.Fatalf("User-filtered ListPosts failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != first.ID {
		t.Errorf("Unexpected user-filtered posts: %+v", mine)
	}

	missing := int64(999)
	if err := ds.CreatePost(ctx, &models.Post{BoardID: missing, Title: "x", Content: "y"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for post in missing board, got %v", err)
	}
}

func TestRepliesAndMediaRefs(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, ds, "alice", false)

	post := mustPost(t, ds, 1, alice, "hello", "uploads/p.png")
	r1 := mustReply(t, ds, post.ID, alice, "uploads/r1.gif")
	r2 := mustReply(t, ds, post.ID, alice, "")

	replies, err := ds.ListRepliesForPosts(ctx, []int64{post.ID})
	if err != nil {
		t.Fatalf("ListRepliesForPosts failed: %v", err)
	}
	got := replies[post.ID]
	if len(got) != 2 || got[0].ID != r1.ID || got[1].ID != r2.ID {
		t.Fatalf("Expected replies oldest first, got %+v", got)
	}

	refs, err := ds.PostMediaRefs(ctx, post.ID)
	if err != nil {
		t.Fatalf("PostMediaRefs failed: %v", err)
	}
	if len(refs) != 2 {
		t.Errorf("Expected 2 media refs, got %v", refs)
	}

	if err := ds.CreateReply(ctx, &models.Reply{PostID: 999, Content: "x"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for reply to missing post, got %v", err)
	}
}

func TestDeletePost(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, ds, "alice", false)
	admin := mustUser(t, ds, "admin", true)

	keep := mustPost(t, ds, 1, alice, "keep", "")
	mustReply(t, ds, keep.ID, alice, "")
	gone := mustPost(t, ds, 1, alice, "gone", "")
	mustReply(t, ds, gone.ID, alice, "")
	mustReply(t, ds, gone.ID, alice, "")

	if err := ds.DeletePost(ctx, gone.ID, &admin.ID); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if _, err := ds.GetPost(ctx, gone.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected deleted post to be gone, got %v", err)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM replies WHERE post_id = ?", gone.ID); n != 0 {
		t.Errorf("Expected replies of deleted post to be removed, %d remain", n)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM replies WHERE post_id = ?", keep.ID); n != 1 {
		t.Errorf("Expected unrelated replies to survive, got %d", n)
	}

	actions, err := ds.ListAdminActions(ctx, 10)
	if err != nil {
		t.Fatalf("ListAdminActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Action != "delete_post" || actions[0].TargetID != gone.ID {
		t.Errorf("Expected a delete_post audit entry, got %+v", actions)
	}

	if err := ds.DeletePost(ctx, gone.ID, nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestDeleteBoardCascade(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, ds, "alice", false)
	admin := mustUser(t, ds, "admin", true)

	board, err := ds.CreateBoard(ctx, admin.ID, "Tech", "gadgets")
	if err != nil {
		t.Fatalf("CreateBoard failed: %v", err)
	}
	const posts, repliesPer = 3, 4
	for i := 0; i < posts; i++ {
		p := mustPost(t, ds, board.ID, alice, "p", "uploads/p.png")
		for j := 0; j < repliesPer; j++ {
			mustReply(t, ds, p.ID, alice, "uploads/r.png")
		}
	}
	other := mustPost(t, ds, 1, alice, "other board", "")
	mustReply(t, ds, other.ID, alice, "")

	refs, err := ds.BoardMediaRefs(ctx, board.ID)
	if err != nil {
		t.Fatalf("BoardMediaRefs failed: %v", err)
	}
	if len(refs) != posts+posts*repliesPer {
		t.Errorf("Expected %d media refs, got %d", posts+posts*repliesPer, len(refs))
	}

	if err := ds.DeleteBoard(ctx, admin.ID, board.ID); err != nil {
		t.Fatalf("DeleteBoard failed: %v", err)
	}
	if _, err := ds.GetBoard(ctx, board.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected board to be gone, got %v", err)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM posts WHERE board_id = ?", board.ID); n != 0 {
		t.Errorf("Expected 0 posts left in deleted board, got %d", n)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM replies"); n != 1 {
		t.Errorf("Expected only the other board's reply to remain, got %d", n)
	}
	if _, err := ds.GetPost(ctx, other.ID); err != nil {
		t.Errorf("Expected post in other board to survive, got %v", err)
	}
	if err := ds.DeleteBoard(ctx, admin.ID, board.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting a missing board, got %v", err)
	}
}

// TestDeleteBoardRollback checks that a failure midway leaves the
// transaction rolled back rather than committed.
func TestDeleteBoardRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()
	ds := NewService(db, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description, created_at FROM boards WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}).AddRow(7, "Tech", "", time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM replies")).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts")).WithArgs(int64(7)).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	if err := ds.DeleteBoard(context.Background(), 1, 7); err == nil {
		t.Fatal("Expected DeleteBoard to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}

func TestUsersAndSessions(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	alice := mustUser(t, ds, "alice", false)

	if err := ds.SetAdmin(ctx, "alice", true); err != nil {
		t.Fatalf("SetAdmin failed: %v", err)
	}
	if err := ds.SetAdmin(ctx, "nobody", true); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound promoting missing user, got %v", err)
	}
	if n, err := ds.CountAdmins(ctx); err != nil || n != 1 {
		t.Errorf("Expected 1 admin, got %d (%v)", n, err)
	}

	prev, err := ds.UpdateAvatar(ctx, alice.ID, "avatars/a.png")
	if err != nil || prev != "" {
		t.Fatalf("First UpdateAvatar: prev=%q err=%v", prev, err)
	}
	prev, err = ds.UpdateAvatar(ctx, alice.ID, "avatars/b.png")
	if err != nil || prev != "avatars/a.png" {
		t.Fatalf("Second UpdateAvatar: prev=%q err=%v", prev, err)
	}
	got, err := ds.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if !got.IsAdmin || got.AvatarPath != "avatars/b.png" {
		t.Errorf("Unexpected user state: %+v", got)
	}

	if err := ds.CreateSession(ctx, "live", alice.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := ds.CreateSession(ctx, "stale", alice.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if u, err := ds.GetSessionUser(ctx, "live"); err != nil || u.ID != alice.ID {
		t.Errorf("Expected live session to resolve to alice, got %+v (%v)", u, err)
	}
	if _, err := ds.GetSessionUser(ctx, "stale"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected expired session to be rejected, got %v", err)
	}
	if n, err := ds.DeleteExpiredSessions(ctx); err != nil || n != 1 {
		t.Errorf("Expected 1 expired session swept, got %d (%v)", n, err)
	}
	if err := ds.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := ds.GetSessionUser(ctx, "live"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected deleted session to be rejected, got %v", err)
	}
}
