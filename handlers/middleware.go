package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"forum/config"
	"forum/media"
	"forum/models"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	CSRFTokenKey ContextKey = "csrfToken"
	ActorKey     ContextKey = "actor"
)

// maxFormMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const maxFormMemory = 1 << 20

// NewStructuredLogger logs one line per request with the chi request id.
func NewStructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("Request handled",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"remote_ip", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// NewSecurityHeadersMiddleware sets conservative browser security headers.
// mediaOrigin, when set, is allowed as an image and media source.
func NewSecurityHeadersMiddleware(mediaOrigin string) func(http.Handler) http.Handler {
	csp := "default-src 'self'; img-src 'self' data:; media-src 'self'; frame-ancestors 'none'"
	if mediaOrigin != "" {
		csp = "default-src 'self'; img-src 'self' data: " + mediaOrigin + "; media-src 'self' " + mediaOrigin + "; frame-ancestors 'none'"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}

// FormMiddleware bounds request bodies and parses POST forms up front, so an
// oversized upload is rejected before any handler or store sees it.
func FormMiddleware(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, config.MaxFileSize+maxFormMemory)

			var err error
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				err = r.ParseMultipartForm(maxFormMemory)
			} else {
				err = r.ParseForm()
			}
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					app.Logger().Warn("Rejected oversized request body", "path", r.URL.Path, "limit", tooBig.Limit)
					redirectError(w, r, app, "/", media.TooLarge(config.MaxFileSize))
					return
				}
				http.Error(w, "Malformed form data", http.StatusBadRequest)
				return
			}
			// r is a derived request, so net/http will not clean up its spill files
			defer func() {
				if r.MultipartForm != nil {
					if err := r.MultipartForm.RemoveAll(); err != nil {
						app.Logger().Error("Failed to remove multipart temp files", "error", err)
					}
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFMiddleware protects against Cross-Site Request Forgery attacks.
func CSRFMiddleware(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			csrfCookie, err := r.Cookie("csrf_token")
			var csrfToken string

			if err != nil || csrfCookie.Value == "" {
				csrfToken = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     "csrf_token",
					Value:    csrfToken,
					Path:     "/",
					HttpOnly: true,
					Secure:   app.SecureCookies(),
					SameSite: http.SameSiteLaxMode,
				})
			} else {
				csrfToken = csrfCookie.Value
			}

			if r.Method == http.MethodPost {
				tokenFromForm := r.FormValue("csrf_token")
				if tokenFromForm == "" {
					tokenFromForm = r.Header.Get("X-CSRF-Token")
				}
				if subtle.ConstantTimeCompare([]byte(tokenFromForm), []byte(csrfToken)) != 1 {
					http.Error(w, "Invalid CSRF token", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), CSRFTokenKey, csrfToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware resolves the session cookie to the acting user. Requests
// without a valid session proceed anonymously.
func SessionMiddleware(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(config.SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor := app.Auth().CurrentUser(r.Context(), cookie.Value)
			if actor == nil {
				clearSessionCookie(w, app)
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// actorFrom returns the logged-in user, or nil for anonymous requests.
func actorFrom(r *http.Request) *models.User {
	actor, _ := r.Context().Value(ActorKey).(*models.User)
	return actor
}

func setSessionCookie(w http.ResponseWriter, app App, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   app.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, app App) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   app.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}
