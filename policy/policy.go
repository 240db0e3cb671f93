// Package policy decides whether an actor may perform an action. It is pure:
// no storage access, no side effects.
package policy

import "forum/models"

// Action names an operation subject to authorization.
type Action string

const (
	CreateBoard  Action = "create board"
	EditBoard    Action = "edit board"
	DeleteBoard  Action = "delete board"
	CreatePost   Action = "create post"
	CreateReply  Action = "create reply"
	UpdateAvatar Action = "update avatar"
	DeletePost   Action = "delete post"
	ViewFeed     Action = "view feed"
	ViewPost     Action = "view post"
	ViewBoard    Action = "view board"
	ViewProfile  Action = "view profile"
	ViewAdminLog Action = "view admin log"
)

// CanPerform reports whether actor may perform action on target. A nil
// actor is anonymous.
func CanPerform(actor *models.User, action Action, target any) bool {
	switch action {
	case ViewFeed, ViewPost, ViewBoard, ViewProfile:
		return true
	case CreateBoard, EditBoard, DeleteBoard, ViewAdminLog:
		return actor != nil && actor.IsAdmin
	case CreatePost, CreateReply, UpdateAvatar:
		return actor != nil
	case DeletePost:
		if actor == nil {
			return false
		}
		if actor.IsAdmin {
			return true
		}
		post, ok := target.(*models.Post)
		return ok && post != nil && post.IsAuthoredBy(actor.ID)
	default:
		return false
	}
}

// Authorize is CanPerform returning a typed error on denial.
func Authorize(actor *models.User, action Action, target any) error {
	if CanPerform(actor, action, target) {
		return nil
	}
	var id int64
	if actor != nil {
		id = actor.ID
	}
	return &models.AuthorizationError{ActorID: id, Action: string(action)}
}
