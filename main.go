// forum/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"forum/auth"
	"forum/config"
	"forum/content"
	"forum/database"
	"forum/handlers"
	"forum/media"
	"forum/metrics"
	"forum/models"
)

const sessionPruneInterval = time.Hour

type Application struct {
	content       *content.Service
	auth          *auth.Service
	rateLimiter   *models.RateLimiter
	metrics       *metrics.Metrics
	logger        *slog.Logger
	uploadDir     string
	avatarDir     string
	sessionTTL    time.Duration
	secureCookies bool
	trustProxy    bool
}

// Methods to satisfy the handlers.App interface
func (a *Application) Content() *content.Service        { return a.content }
func (a *Application) Auth() *auth.Service              { return a.auth }
func (a *Application) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *Application) Metrics() *metrics.Metrics        { return a.metrics }
func (a *Application) Logger() *slog.Logger             { return a.logger }
func (a *Application) UploadDir() string                { return a.uploadDir }
func (a *Application) AvatarDir() string                { return a.avatarDir }
func (a *Application) SessionTTL() time.Duration        { return a.sessionTTL }
func (a *Application) SecureCookies() bool              { return a.secureCookies }
func (a *Application) TrustProxy() bool                 { return a.trustProxy }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load(logger)

	dbService, err := database.InitDB(cfg.DBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbService.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	authService := auth.NewService(dbService, cfg.SecretKey, cfg.SessionTTL, logger)
	created, err := authService.SeedAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		logger.Error("Failed to seed administrator account", "username", cfg.AdminUsername, "error", err)
		os.Exit(1)
	}
	if created && cfg.AdminPassword == config.DefaultAdminPassword {
		logger.Warn("Administrator created with the default password; change it before exposing the server", "username", cfg.AdminUsername)
	}

	// --- Storage Service Init ---
	app := &Application{
		auth:          authService,
		rateLimiter:   models.NewRateLimiter(cfg.LoginRateEvery, cfg.LoginRateBurst, cfg.RatePrune, cfg.RateExpire),
		metrics:       metrics.New(),
		logger:        logger,
		sessionTTL:    cfg.SessionTTL,
		secureCookies: cfg.SecureCookies,
		trustProxy:    cfg.TrustProxy,
	}

	var uploadBackend, avatarBackend media.Backend
	var mediaOrigin string
	if cfg.S3.Enabled {
		s3Store, err := media.NewS3Storage(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.PublicURL, cfg.S3.UseSSL)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		uploadBackend = s3Store.WithPrefix("uploads")
		avatarBackend = s3Store.WithPrefix("avatars")
		mediaOrigin = cfg.S3.PublicURL
		logger.Info("S3 Storage initialized", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	} else {
		uploadDir, err := filepath.Abs(cfg.UploadDir)
		if err != nil {
			logger.Error("Invalid upload directory", "path", cfg.UploadDir, "error", err)
			os.Exit(1)
		}
		avatarDir, err := filepath.Abs(cfg.AvatarDir)
		if err != nil {
			logger.Error("Invalid avatar directory", "path", cfg.AvatarDir, "error", err)
			os.Exit(1)
		}
		if uploadBackend, err = media.NewLocalStorage(uploadDir, "/uploads"); err != nil {
			logger.Error("FATAL: Could not create uploads directory", "path", uploadDir, "error", err)
			os.Exit(1)
		}
		if avatarBackend, err = media.NewLocalStorage(avatarDir, "/avatars"); err != nil {
			logger.Error("FATAL: Could not create avatars directory", "path", avatarDir, "error", err)
			os.Exit(1)
		}
		app.uploadDir = uploadDir
		app.avatarDir = avatarDir
		logger.Info("Local Storage initialized", "uploads", uploadDir, "avatars", avatarDir)
	}

	uploads := media.NewStore(uploadBackend, "uploads", config.AllowedExtensions, logger)
	avatars := media.NewStore(avatarBackend, "avatars", config.AvatarExtensions, logger)
	app.content = content.NewService(dbService, uploads, avatars, app.metrics, logger)

	// --- Background maintenance ---
	go app.rateLimiter.Run(ctx)
	go func() {
		ticker := time.NewTicker(sessionPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				authService.PruneSessions(ctx)
			}
		}
	}()

	mux := handlers.SetupRouter(app, mediaOrigin)

	// --- Graceful Shutdown ---
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("forum server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+cfg.Port,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
