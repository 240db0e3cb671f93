package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"forum/models"
)

const flashCookieName = "forum_flash"

// Flash is a one-shot status message shown on the next page view.
type Flash struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// render writes a JSON page. Every page carries the pending flashes, the
// CSRF token and the current user.
func render(w http.ResponseWriter, r *http.Request, app App, status int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["flashes"] = consumeFlashes(w, r)
	data["csrf_token"] = r.Context().Value(CSRFTokenKey)
	data["current_user"] = actorFrom(r)
	respondJSON(w, status, data, app)
}

// renderError writes a JSON error page with a status derived from err.
func renderError(w http.ResponseWriter, r *http.Request, app App, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	}
	render(w, r, app, status, map[string]any{"error": models.UserMessage(err)})
}

// respondJSON sends a JSON response with a given status code.
func respondJSON(w http.ResponseWriter, status int, payload any, app App) {
	response, err := json.Marshal(payload)
	if err != nil {
		app.Logger().Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(`{"error":"Failed to marshal JSON response"}`)); werr != nil {
			app.Logger().Error("Failed to write internal server error response", "error", werr)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		app.Logger().Error("Failed to write JSON response", "error", err)
	}
}

// redirectWithFlash queues a flash and answers 303 See Other.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, app App, target string, f Flash) {
	flashes := readFlashes(r)
	flashes = append(flashes, f)
	if raw, err := json.Marshal(flashes); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookieName,
			Value:    base64.RawURLEncoding.EncodeToString(raw),
			Path:     "/",
			HttpOnly: true,
			Secure:   app.SecureCookies(),
			SameSite: http.SameSiteLaxMode,
		})
	} else {
		app.Logger().Error("Failed to encode flash", "error", err)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func redirectSuccess(w http.ResponseWriter, r *http.Request, app App, target, text string) {
	redirectWithFlash(w, r, app, target, Flash{Kind: "success", Text: text})
}

func redirectError(w http.ResponseWriter, r *http.Request, app App, target string, err error) {
	redirectWithFlash(w, r, app, target, Flash{Kind: "error", Text: models.UserMessage(err)})
}

func readFlashes(r *http.Request) []Flash {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		return nil
	}
	return flashes
}

// consumeFlashes returns pending flashes and clears the cookie.
func consumeFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := readFlashes(r)
	if flashes == nil {
		return []Flash{}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return flashes
}
