// forum/config/config.go
package config

const (
	AppVersion = "0.9.0"

	// Form Limits
	MaxUsernameLen    = 10
	MaxBoardNameLen   = 50
	MaxPostTitleLen   = 100
	MaxContentLen     = 10000
	MaxDescriptionLen = 500

	// File Upload Limits
	MaxFileSize = 10 * 1024 * 1024 // 10MiB
	AvatarSize  = 100

	// Session Defaults
	DefaultSessionTTL = "720h"
	SessionCookieName = "forum_session"

	// Rate Limiting Defaults
	DefaultLoginRateEvery  = "10s"
	DefaultLoginRateBurst  = 5
	DefaultRateLimitPrune  = "1h"
	DefaultRateLimitExpire = "24h"

	// First-run administrator
	DefaultAdminUsername = "yukari17"
	DefaultAdminPassword = "admin123"
)

// AllowedExtensions is the upload allow-list, lowercase and without dots.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "mp4"}

// AvatarExtensions is the subset of AllowedExtensions accepted for avatars.
var AvatarExtensions = []string{"png", "jpg", "jpeg", "gif"}

// DefaultBoards are seeded on an empty database.
var DefaultBoards = []struct {
	Name        string
	Description string
}{
	{"General", "Discussion on any topic"},
	{"Technology", "Tech news and knowledge sharing"},
	{"Life", "Everyday life and experiences"},
	{"Games", "Video games and walkthroughs"},
	{"Food", "Recommendations and cooking notes"},
}
