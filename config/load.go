package config

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"

	"forum/utils"

	"github.com/joho/godotenv"
)

// S3Config holds the optional object storage settings.
type S3Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	PublicURL string
	UseSSL    bool
}

// Config is the runtime configuration assembled from the environment.
type Config struct {
	Port           string
	DBPath         string
	UploadDir      string
	AvatarDir      string
	SecretKey      string
	SessionTTL     time.Duration
	AdminUsername  string
	AdminPassword  string
	LoginRateEvery time.Duration
	LoginRateBurst int
	RatePrune      time.Duration
	RateExpire     time.Duration
	SecureCookies  bool
	TrustProxy     bool
	S3             S3Config
}

// Load reads configuration from the environment, honouring a .env file if one
// exists. Missing or malformed values fall back to development defaults.
func Load(logger *slog.Logger) *Config {
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env")
	}

	cfg := &Config{
		Port:          utils.GetEnv("FORUM_PORT", "8080"),
		DBPath:        utils.GetEnv("FORUM_DB_PATH", "./forum.db?_journal_mode=WAL&_foreign_keys=on"),
		UploadDir:     utils.GetEnv("FORUM_UPLOAD_DIR", "./static/uploads"),
		AvatarDir:     utils.GetEnv("FORUM_AVATAR_DIR", "./static/avatars"),
		SecretKey:     utils.GetEnv("FORUM_SECRET_KEY", ""),
		AdminUsername: utils.GetEnv("FORUM_ADMIN_USERNAME", DefaultAdminUsername),
		AdminPassword: utils.GetEnv("FORUM_ADMIN_PASSWORD", DefaultAdminPassword),
		SecureCookies: utils.GetEnv("FORUM_SECURE_COOKIES", "false") == "true",
		TrustProxy:    utils.GetEnv("FORUM_TRUST_PROXY", "false") == "true",
	}

	if cfg.SecretKey == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		cfg.SecretKey = hex.EncodeToString(buf)
		logger.Warn("FORUM_SECRET_KEY not set, using an ephemeral key; sessions will not survive a restart")
	}

	cfg.SessionTTL = durationEnv(logger, "FORUM_SESSION_TTL", DefaultSessionTTL)
	cfg.LoginRateEvery = durationEnv(logger, "FORUM_LOGIN_RATE_EVERY", DefaultLoginRateEvery)
	cfg.RatePrune = durationEnv(logger, "FORUM_RATE_PRUNE", DefaultRateLimitPrune)
	cfg.RateExpire = durationEnv(logger, "FORUM_RATE_EXPIRE", DefaultRateLimitExpire)

	burst, err := strconv.Atoi(utils.GetEnv("FORUM_LOGIN_RATE_BURST", strconv.Itoa(DefaultLoginRateBurst)))
	if err != nil || burst < 1 {
		logger.Warn("Invalid FORUM_LOGIN_RATE_BURST integer, using default", "value", utils.GetEnv("FORUM_LOGIN_RATE_BURST", ""), "default", DefaultLoginRateBurst)
		burst = DefaultLoginRateBurst
	}
	cfg.LoginRateBurst = burst

	cfg.S3 = S3Config{
		Enabled:   utils.GetEnv("FORUM_S3_ENABLED", "false") == "true",
		Endpoint:  utils.GetEnv("FORUM_S3_ENDPOINT", ""),
		AccessKey: utils.GetEnv("FORUM_S3_ACCESS_KEY", ""),
		SecretKey: utils.GetEnv("FORUM_S3_SECRET_KEY", ""),
		Bucket:    utils.GetEnv("FORUM_S3_BUCKET", ""),
		Region:    utils.GetEnv("FORUM_S3_REGION", "us-east-1"),
		PublicURL: utils.GetEnv("FORUM_S3_PUBLIC_URL", ""),
		UseSSL:    utils.GetEnv("FORUM_S3_USE_SSL", "true") == "true",
	}
	return cfg
}

func durationEnv(logger *slog.Logger, key, fallback string) time.Duration {
	d, err := time.ParseDuration(utils.GetEnv(key, fallback))
	if err != nil || d <= 0 {
		logger.Warn("Invalid "+key+" duration, using default", "value", utils.GetEnv(key, ""), "default", fallback)
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
