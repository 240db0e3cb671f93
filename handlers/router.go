package handlers

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(app App, mediaOrigin string) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	if app.TrustProxy() {
		mux.Use(middleware.RealIP)
	}
	mux.Use(NewStructuredLogger(app.Logger()))
	mux.Use(middleware.Recoverer)
	mux.Use(app.Metrics().Instrument)
	mux.Use(NewSecurityHeadersMiddleware(mediaOrigin))

	// Static media, only when stored on local disk
	if dir := app.UploadDir(); dir != "" {
		mux.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(filesOnly{http.Dir(dir)})))
	}
	if dir := app.AvatarDir(); dir != "" {
		mux.Handle("/avatars/*", http.StripPrefix("/avatars/", http.FileServer(filesOnly{http.Dir(dir)})))
	}
	mux.Handle("/metrics", app.Metrics().Handler())

	mux.Group(func(r chi.Router) {
		r.Use(FormMiddleware(app))
		r.Use(CSRFMiddleware(app))
		r.Use(SessionMiddleware(app))

		// Pages
		r.Get("/", MakeHandler(app, HandleFeed))
		r.Get("/board/{id}", MakeHandler(app, HandleBoard))
		r.Get("/post/{id}", MakeHandler(app, HandleViewPost))
		r.Get("/user/{id}", MakeHandler(app, HandleProfile))

		// Account actions
		r.Post("/register", MakeHandler(app, HandleRegister))
		r.Post("/login", MakeHandler(app, HandleLogin))
		r.Post("/logout", MakeHandler(app, HandleLogout))
		r.Post("/user/edit", MakeHandler(app, HandleEditAvatar))

		// Content actions
		r.Post("/post/new", MakeHandler(app, HandleCreatePost))
		r.Post("/post/{id}/reply", MakeHandler(app, HandleReply))
		r.Post("/post/{id}/delete", MakeHandler(app, HandleDeletePost))

		// Administration
		r.Post("/board/new", MakeHandler(app, HandleCreateBoard))
		r.Post("/board/{id}/edit", MakeHandler(app, HandleEditBoard))
		r.Post("/board/{id}/delete", MakeHandler(app, HandleDeleteBoard))
		r.Get("/admin/log", MakeHandler(app, HandleAdminLog))
	})

	return mux
}

// filesOnly hides directories so the media stores cannot be listed.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
