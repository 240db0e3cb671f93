// Package content implements the board, post, reply and avatar lifecycle.
// Every gated operation takes the acting user explicitly and checks the
// authorization policy before touching storage.
package content

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"forum/database"
	"forum/media"
	"forum/metrics"
	"forum/models"
	"forum/policy"
)

// Service coordinates storage, media and policy.
type Service struct {
	db      *database.DatabaseService
	uploads *media.Store
	avatars *media.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(db *database.DatabaseService, uploads, avatars *media.Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		uploads: uploads,
		avatars: avatars,
		metrics: m,
		logger:  logger.With("component", "content"),
	}
}

// authorize applies the policy and records denials.
func (s *Service) authorize(op string, actor *models.User, action policy.Action, target any) error {
	err := policy.Authorize(actor, action, target)
	if err != nil {
		s.logger.Warn("Permission denied", "operation", op, "actor_id", actorID(actor))
		s.metrics.Operation(op, metrics.OutcomeDenied)
	}
	return err
}

// finish records the outcome of a gated operation that passed authorization.
func (s *Service) finish(op string, actor *models.User, err error) {
	switch {
	case err == nil:
		s.metrics.Operation(op, metrics.OutcomeOK)
	case isClientError(err):
		s.logger.Info("Operation rejected", "operation", op, "actor_id", actorID(actor), "error", err)
		s.metrics.Operation(op, metrics.OutcomeError)
	default:
		s.logger.Error("Operation failed", "operation", op, "actor_id", actorID(actor), "error", err)
		s.metrics.Operation(op, metrics.OutcomeError)
	}
}

// removeMedia deletes files best-effort; failures are logged and skipped.
func (s *Service) removeMedia(ctx context.Context, refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		store := s.uploads
		if s.avatars.Owns(ref) {
			store = s.avatars
		}
		err := store.Delete(ctx, ref)
		s.metrics.MediaDelete(err)
		if err != nil {
			s.logger.Warn("Failed to delete media file, continuing", "ref", ref, "error", err)
		}
	}
}

func (s *Service) decorateUser(u *models.User) {
	if u == nil || u.AvatarPath == "" {
		return
	}
	if s.avatars.Owns(u.AvatarPath) {
		u.AvatarURL = s.avatars.Resolve(u.AvatarPath)
	}
}

func actorID(actor *models.User) int64 {
	if actor == nil {
		return 0
	}
	return actor.ID
}

func isClientError(err error) bool {
	return errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrDuplicate) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrMedia) ||
		errors.Is(err, models.ErrProcessing)
}

// requireText trims s and checks it against 1..max runes.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &models.ValidationError{Field: field, Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(s) > max {
		return "", &models.ValidationError{Field: field, Reason: "is too long"}
	}
	return s, nil
}
