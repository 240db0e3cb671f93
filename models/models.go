// forum/models/models.go
package models

import (
	"image"
	"time"
)

// --- Core Data Models ---

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	AvatarPath   string    `json:"avatar_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	AvatarURL string `json:"avatar_url,omitempty"`
}

// RoleLabel is the display label for the user's role.
func (u *User) RoleLabel() string {
	if u != nil && u.IsAdmin {
		return "Administrator"
	}
	return "Member"
}

type Board struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Post struct {
	ID        int64     `json:"id"`
	BoardID   int64     `json:"board_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	MediaPath string    `json:"media_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Presentation fields, filled by feed queries.
	Board     *Board    `json:"board,omitempty"`
	Author    *User     `json:"author,omitempty"`
	MediaKind MediaKind `json:"media_kind"`
	MediaURL  string    `json:"media_url,omitempty"`
	Replies   []Reply   `json:"replies"`
}

// IsAuthoredBy reports whether the post belongs to the given user id.
func (p *Post) IsAuthoredBy(userID int64) bool {
	return p.UserID != nil && *p.UserID == userID
}

type Reply struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Content   string    `json:"content"`
	MediaPath string    `json:"media_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Author    *User     `json:"author,omitempty"`
	MediaKind MediaKind `json:"media_kind"`
	MediaURL  string    `json:"media_url,omitempty"`
}

// MediaKind classifies a stored media reference for rendering.
type MediaKind string

const (
	MediaNone  MediaKind = "none"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Upload is a file received at the request boundary, already size-checked.
type Upload struct {
	Filename string
	Data     []byte
}

// CropRect is a client-supplied crop rectangle in source-pixel coordinates.
type CropRect struct {
	X, Y, Width, Height int
}

// Rectangle converts the crop into an image.Rectangle.
func (c CropRect) Rectangle() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

// PostFilter narrows post listings. Nil fields mean "any".
type PostFilter struct {
	BoardID *int64
	UserID  *int64
}

// --- Administrative Models ---

type AdminAction struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   int64     `json:"actor_id"`
	Action    string    `json:"action"`
	TargetID  int64     `json:"target_id"`
	Details   string    `json:"details"`
}

// Profile is the public view of a user and their posts.
type Profile struct {
	User  *User  `json:"user"`
	Role  string `json:"role"`
	Posts []Post `json:"posts"`
}
