package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"forum/models"
)

const adminLogLimit = 100

// HandleCreateBoard creates a board from the name/description form. Admin only.
func HandleCreateBoard(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreateBoard")
	board, err := app.Content().CreateBoard(r.Context(), actorFrom(r), r.FormValue("name"), r.FormValue("description"))
	if err != nil {
		logUnexpected(logger, err)
		redirectError(w, r, app, "/", err)
		return
	}
	redirectSuccess(w, r, app, boardPath(board.ID), fmt.Sprintf("Board %q created.", board.Name))
}

// HandleEditBoard updates a board's name and description. Admin only.
func HandleEditBoard(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleEditBoard")
	id, ok := formIDParam(w, r, app)
	if !ok {
		return
	}
	board, err := app.Content().EditBoard(r.Context(), actorFrom(r), id, r.FormValue("name"), r.FormValue("description"))
	if err != nil {
		logUnexpected(logger, err)
		target := boardPath(id)
		if errors.Is(err, models.ErrNotFound) {
			target = "/"
		}
		redirectError(w, r, app, target, err)
		return
	}
	redirectSuccess(w, r, app, boardPath(board.ID), "Board updated.")
}

// HandleDeleteBoard deletes a board together with its posts, replies and
// media. Admin only.
func HandleDeleteBoard(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDeleteBoard")
	id, ok := formIDParam(w, r, app)
	if !ok {
		return
	}
	if err := app.Content().DeleteBoard(r.Context(), actorFrom(r), id); err != nil {
		logUnexpected(logger, err)
		redirectError(w, r, app, "/", err)
		return
	}
	redirectSuccess(w, r, app, "/", "Board deleted.")
}

// HandleAdminLog lists recent administrator actions. Admin only.
func HandleAdminLog(w http.ResponseWriter, r *http.Request, app App) {
	actions, err := app.Content().AdminLog(r.Context(), actorFrom(r), adminLogLimit)
	if err != nil {
		if !errors.Is(err, models.ErrForbidden) {
			app.Logger().Error("Failed to load admin log", "handler", "HandleAdminLog", "error", err)
		}
		renderError(w, r, app, err)
		return
	}
	if actions == nil {
		actions = []models.AdminAction{}
	}
	render(w, r, app, http.StatusOK, map[string]any{"actions": actions})
}
