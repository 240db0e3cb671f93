package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"forum/auth"
	"forum/content"
	"forum/metrics"
	"forum/models"

	"github.com/go-chi/chi/v5"
)

// App is an interface that defines the dependencies our handlers need.
type App interface {
	Content() *content.Service
	Auth() *auth.Service
	RateLimiter() *models.RateLimiter
	Metrics() *metrics.Metrics
	Logger() *slog.Logger
	UploadDir() string
	AvatarDir() string
	SessionTTL() time.Duration
	SecureCookies() bool
	TrustProxy() bool
}

// MakeHandler adapts an App-aware handler to http.HandlerFunc.
func MakeHandler(app App, fn func(http.ResponseWriter, *http.Request, App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, app)
	}
}

// HandleFeed serves the front page: every post, optionally narrowed with
// ?board=<id>.
func HandleFeed(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleFeed")

	var boardID *int64
	if raw := r.URL.Query().Get("board"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			renderError(w, r, app, &models.NotFoundError{Entity: "board", ID: raw})
			return
		}
		boardID = &id
	}

	posts, err := app.Content().ListBoardFeed(r.Context(), boardID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logger.Error("Failed to load feed", "error", err)
		}
		renderError(w, r, app, err)
		return
	}
	boards, err := app.Content().ListBoards(r.Context())
	if err != nil {
		logger.Error("Failed to load boards", "error", err)
		renderError(w, r, app, err)
		return
	}

	render(w, r, app, http.StatusOK, map[string]any{
		"boards":         boards,
		"posts":          posts,
		"selected_board": boardID,
	})
}

// HandleBoard serves a single board with its posts.
func HandleBoard(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleBoard")
	id, ok := idParam(w, r, app, "board")
	if !ok {
		return
	}

	posts, err := app.Content().ListBoardFeed(r.Context(), &id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logger.Error("Failed to load board feed", "board_id", id, "error", err)
		}
		renderError(w, r, app, err)
		return
	}
	boards, err := app.Content().ListBoards(r.Context())
	if err != nil {
		logger.Error("Failed to load boards", "error", err)
		renderError(w, r, app, err)
		return
	}
	var board *models.Board
	for i := range boards {
		if boards[i].ID == id {
			board = &boards[i]
		}
	}

	render(w, r, app, http.StatusOK, map[string]any{
		"board":  board,
		"boards": boards,
		"posts":  posts,
	})
}

// HandleViewPost serves one post with its replies.
func HandleViewPost(w http.ResponseWriter, r *http.Request, app App) {
	id, ok := idParam(w, r, app, "post")
	if !ok {
		return
	}
	post, err := app.Content().GetPostView(r.Context(), id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			app.Logger().Error("Failed to load post", "handler", "HandleViewPost", "post_id", id, "error", err)
		}
		renderError(w, r, app, err)
		return
	}
	actor := actorFrom(r)
	render(w, r, app, http.StatusOK, map[string]any{
		"post":       post,
		"can_delete": actor != nil && (actor.IsAdmin || post.IsAuthoredBy(actor.ID)),
	})
}

// HandleProfile serves a user's public profile.
func HandleProfile(w http.ResponseWriter, r *http.Request, app App) {
	id, ok := idParam(w, r, app, "user")
	if !ok {
		return
	}
	profile, err := app.Content().UserProfile(r.Context(), id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			app.Logger().Error("Failed to load profile", "handler", "HandleProfile", "user_id", id, "error", err)
		}
		renderError(w, r, app, err)
		return
	}
	render(w, r, app, http.StatusOK, map[string]any{"profile": profile})
}

// idParam parses the {id} URL parameter, answering 404 when it is malformed.
func idParam(w http.ResponseWriter, r *http.Request, app App, entity string) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		renderError(w, r, app, &models.NotFoundError{Entity: entity, ID: raw})
		return 0, false
	}
	return id, true
}
