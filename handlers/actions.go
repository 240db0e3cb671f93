package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"forum/config"
	"forum/content"
	"forum/media"
	"forum/models"
	"forum/utils"

	"github.com/go-chi/chi/v5"
)

// HandleRegister creates an account from the username/password form.
func HandleRegister(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRegister")
	ip := utils.GetIPAddress(r)
	if !app.RateLimiter().Allow(ip) {
		logger.Warn("Rate limit exceeded", "ip", ip)
		redirectWithFlash(w, r, app, "/", Flash{Kind: "error", Text: "Too many attempts. Please wait a moment and try again."})
		return
	}

	user, err := app.Auth().Register(r.Context(), r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		logUnexpected(logger, err)
		redirectError(w, r, app, "/", err)
		return
	}
	logger.Info("Account created", "user_id", user.ID)
	redirectSuccess(w, r, app, "/", "Registration successful, please log in.")
}

// HandleLogin verifies credentials and sets the session cookie.
func HandleLogin(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleLogin")
	ip := utils.GetIPAddress(r)
	if !app.RateLimiter().Allow(ip) {
		logger.Warn("Rate limit exceeded", "ip", ip)
		redirectWithFlash(w, r, app, "/", Flash{Kind: "error", Text: "Too many attempts. Please wait a moment and try again."})
		return
	}

	sess, err := app.Auth().Login(r.Context(), r.FormValue("username"), r.FormValue("password"))
	app.Metrics().Login(err == nil)
	if err != nil {
		logUnexpected(logger, err)
		redirectError(w, r, app, "/", err)
		return
	}
	setSessionCookie(w, app, sess.Token, sess.ExpiresAt)
	redirectSuccess(w, r, app, "/", fmt.Sprintf("Welcome back, %s!", sess.User.Username))
}

// HandleLogout revokes the current session.
func HandleLogout(w http.ResponseWriter, r *http.Request, app App) {
	if cookie, err := r.Cookie(config.SessionCookieName); err == nil {
		if err := app.Auth().Logout(r.Context(), cookie.Value); err != nil {
			app.Logger().Error("Failed to revoke session", "handler", "HandleLogout", "error", err)
		}
	}
	clearSessionCookie(w, app)
	redirectSuccess(w, r, app, "/", "You have been logged out.")
}

// HandleCreatePost publishes a post with an optional "media" attachment.
func HandleCreatePost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreatePost")
	actor := actorFrom(r)

	boardID, err := strconv.ParseInt(r.FormValue("board_id"), 10, 64)
	if err != nil {
		redirectError(w, r, app, "/", &models.ValidationError{Field: "board", Reason: "choose a board"})
		return
	}
	upload, err := formUpload(r, "media")
	if err != nil {
		redirectError(w, r, app, boardPath(boardID), err)
		return
	}

	post, err := app.Content().CreatePost(r.Context(), actor, content.PostInput{
		Title:   r.FormValue("title"),
		Content: r.FormValue("content"),
		BoardID: boardID,
		Media:   upload,
	})
	if err != nil {
		logUnexpected(logger, err)
		redirectError(w, r, app, boardPath(boardID), err)
		return
	}
	redirectSuccess(w, r, app, postPath(post.ID), "Post published.")
}

// HandleReply adds a reply with an optional "media" attachment.
func HandleReply(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleReply")
	postID, ok := formIDParam(w, r, app)
	if !ok {
		return
	}
	upload, err := formUpload(r, "media")
	if err != nil {
		redirectError(w, r, app, postPath(postID), err)
		return
	}

	_, err = app.Content().AddReply(r.Context(), actorFrom(r), content.ReplyInput{
		PostID:  postID,
		Content: r.FormValue("content"),
		Media:   upload,
	})
	if err != nil {
		logUnexpected(logger, err)
		target := postPath(postID)
		if errors.Is(err, models.ErrNotFound) {
			target = "/"
		}
		redirectError(w, r, app, target, err)
		return
	}
	redirectSuccess(w, r, app, postPath(postID), "Reply published.")
}

// HandleDeletePost deletes a post when the actor is its author or an admin.
func HandleDeletePost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDeletePost")
	postID, ok := formIDParam(w, r, app)
	if !ok {
		return
	}
	if err := app.Content().DeletePost(r.Context(), actorFrom(r), postID); err != nil {
		logUnexpected(logger, err)
		target := postPath(postID)
		if errors.Is(err, models.ErrNotFound) {
			target = "/"
		}
		redirectError(w, r, app, target, err)
		return
	}
	redirectSuccess(w, r, app, "/", "Post deleted.")
}

// HandleEditAvatar crops the uploaded "avatar" image using the x, y, width
// and height form fields and makes it the actor's avatar.
func HandleEditAvatar(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleEditAvatar")
	actor := actorFrom(r)
	target := "/"
	if actor != nil {
		target = userPath(actor.ID)
	}

	upload, err := formUpload(r, "avatar")
	if err != nil {
		redirectError(w, r, app, target, err)
		return
	}
	crop := models.CropRect{
		X:      formInt(r, "x", 0),
		Y:      formInt(r, "y", 0),
		Width:  formInt(r, "width", 100),
		Height: formInt(r, "height", 100),
	}
	if _, err := app.Content().UpdateAvatar(r.Context(), actor, upload, crop); err != nil {
		logUnexpected(logger, err)
		redirectError(w, r, app, target, err)
		return
	}
	redirectSuccess(w, r, app, target, "Avatar updated.")
}

// formUpload reads an optional file field. A missing or empty field is nil.
func formUpload(r *http.Request, field string) (*models.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 || files[0].Filename == "" {
		return nil, nil
	}
	return media.ReadUpload(files[0])
}

// formInt parses a numeric form field, accepting fractional values as the
// crop widget sends them. Missing or malformed values use fallback.
func formInt(r *http.Request, field string, fallback int) int {
	raw := r.FormValue(field)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return fallback
	}
	return int(f)
}

func formIDParam(w http.ResponseWriter, r *http.Request, app App) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		redirectError(w, r, app, "/", &models.NotFoundError{Entity: "item", ID: chi.URLParam(r, "id")})
		return 0, false
	}
	return id, true
}

// logUnexpected logs errors that are not ordinary user mistakes.
func logUnexpected(logger interface{ Error(string, ...any) }, err error) {
	for _, expected := range []error{
		models.ErrValidation, models.ErrDuplicate, models.ErrNotFound, models.ErrForbidden,
		models.ErrMedia, models.ErrProcessing, models.ErrInvalidCredentials,
	} {
		if errors.Is(err, expected) {
			return
		}
	}
	logger.Error("Request failed", "error", err)
}

func boardPath(id int64) string { return "/board/" + strconv.FormatInt(id, 10) }
func postPath(id int64) string  { return "/post/" + strconv.FormatInt(id, 10) }
func userPath(id int64) string  { return "/user/" + strconv.FormatInt(id, 10) }
