package content

import (
	"context"

	"forum/config"
	"forum/models"
	"forum/policy"
)

// UserProfile returns a user's public profile with their posts.
func (s *Service) UserProfile(ctx context.Context, id int64) (*models.Profile, error) {
	user, err := s.db.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorateUser(user)
	posts, err := s.db.ListPosts(ctx, models.PostFilter{UserID: &id})
	if err != nil {
		return nil, err
	}
	if err := s.attachReplies(ctx, posts); err != nil {
		return nil, err
	}
	return &models.Profile{User: user, Role: user.RoleLabel(), Posts: posts}, nil
}

// UpdateAvatar crops and stores a new avatar for actor, then removes the
// previous file. On failure the previous avatar is left in place.
func (s *Service) UpdateAvatar(ctx context.Context, actor *models.User, up *models.Upload, crop models.CropRect) (string, error) {
	const op = "update_avatar"
	if err := s.authorize(op, actor, policy.UpdateAvatar, actor); err != nil {
		return "", err
	}
	ref, err := s.updateAvatar(ctx, actor, up, crop)
	s.finish(op, actor, err)
	return ref, err
}

func (s *Service) updateAvatar(ctx context.Context, actor *models.User, up *models.Upload, crop models.CropRect) (string, error) {
	if up == nil {
		return "", &models.ValidationError{Field: "avatar", Reason: "choose an image to upload"}
	}
	ref, err := s.avatars.StoreCropped(ctx, up.Data, up.Filename, crop, config.AvatarSize)
	if err != nil {
		return "", err
	}
	previous, err := s.db.UpdateAvatar(ctx, actor.ID, ref)
	if err != nil {
		s.removeMedia(ctx, ref)
		return "", err
	}
	if previous != "" && previous != ref {
		s.removeMedia(ctx, previous)
	}
	actor.AvatarPath = ref
	s.logger.Info("Avatar updated", "actor_id", actor.ID)
	return ref, nil
}
