// Package auth registers users, verifies credentials and issues signed
// session tokens backed by server-side session rows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"forum/database"
	"forum/models"
	"forum/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)

// Claims is the payload of a session token.
type Claims struct {
	SessionID string `json:"sid"`
	UserID    int64  `json:"uid"`
	jwt.RegisteredClaims
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	User      *models.User
	ExpiresAt time.Time
}

// Service implements registration, login and session resolution.
type Service struct {
	db     *database.DatabaseService
	secret []byte
	ttl    time.Duration
	logger *slog.Logger

	// Cost is the bcrypt work factor for new hashes.
	Cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewService(db *database.DatabaseService, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger.With("component", "auth"),
		Cost:   bcrypt.DefaultCost,
	}
}

// Register creates a non-admin account.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &models.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	user, err := s.db.CreateUser(ctx, username, hash, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User registered", "user_id", user.ID, "username", username)
	return user, nil
}

// ValidateUsername enforces 1-10 ASCII letters or digits.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return &models.ValidationError{Field: "username", Reason: "use 1 to 10 letters or digits"}
	}
	return nil
}

// Login verifies credentials and opens a session. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Failed login", "user_id", user.ID)
		return nil, models.ErrInvalidCredentials
	}

	sessionID, err := utils.GenerateToken(32)
	if err != nil {
		return nil, err
	}
	now := utils.GetTime()
	expires := now.Add(s.ttl)
	if err := s.db.CreateSession(ctx, utils.HashToken(sessionID), user.ID, expires); err != nil {
		return nil, err
	}

	claims := Claims{
		SessionID: sessionID,
		UserID:    user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	s.logger.Info("User logged in", "user_id", user.ID)
	return &Session{Token: token, User: user, ExpiresAt: expires}, nil
}

// CurrentUser resolves a session token. Any invalid, expired or revoked
// token yields nil.
func (s *Service) CurrentUser(ctx context.Context, token string) *models.User {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	user, err := s.db.GetSessionUser(ctx, utils.HashToken(claims.SessionID))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("Failed to resolve session", "error", err)
		}
		return nil
	}
	if user.ID != claims.UserID {
		return nil
	}
	return user
}

// Logout revokes the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.db.DeleteSession(ctx, utils.HashToken(claims.SessionID))
}

// SetAdmin grants or revokes administrator rights.
func (s *Service) SetAdmin(ctx context.Context, username string, isAdmin bool) error {
	if err := s.db.SetAdmin(ctx, username, isAdmin); err != nil {
		return err
	}
	s.logger.Info("Admin flag changed", "username", username, "is_admin", isAdmin)
	return nil
}

// SeedAdmin creates the first-run administrator when no account with that
// username exists. An existing account is left untouched, whatever its role.
func (s *Service) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.db.GetUserByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return false, err
	}
	user, err := s.db.CreateUser(ctx, username, hash, true)
	if errors.Is(err, models.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info("Seeded administrator account", "user_id", user.ID, "username", username)
	return true, nil
}

// RevokeAdmin removes administrator rights from username. The last remaining
// administrator cannot be demoted.
func (s *Service) RevokeAdmin(ctx context.Context, username string) error {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !user.IsAdmin {
		return nil
	}
	n, err := s.db.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return &models.ValidationError{Field: "username", Reason: "is the last administrator"}
	}
	return s.SetAdmin(ctx, username, false)
}

// EnsureAdmin promotes username, creating it with password if it does not
// exist. It reports whether the account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	err := s.db.SetAdmin(ctx, username, true)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return false, err
	}
	user, err := s.db.CreateUser(ctx, username, hash, true)
	if err != nil {
		return false, err
	}
	s.logger.Info("Created administrator account", "user_id", user.ID, "username", username)
	return true, nil
}

// PruneSessions deletes expired session rows.
func (s *Service) PruneSessions(ctx context.Context) {
	n, err := s.db.DeleteExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("Failed to prune sessions", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Pruned expired sessions", "count", n)
	}
}

func (s *Service) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, jwt.ErrTokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.Cost)
	})
	return s.dummyHash
}
