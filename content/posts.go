package content

import (
	"context"

	"forum/config"
	"forum/models"
	"forum/policy"
)

// PostInput is the data needed to create a post.
type PostInput struct {
	Title   string
	Content string
	BoardID int64
	Media   *models.Upload
}

// ReplyInput is the data needed to reply to a post.
type ReplyInput struct {
	PostID  int64
	Content string
	Media   *models.Upload
}

// CreatePost publishes a post. Media is stored before the row; if the row
// cannot be written the stored file is removed again.
func (s *Service) CreatePost(ctx context.Context, actor *models.User, in PostInput) (*models.Post, error) {
	const op = "create_post"
	if err := s.authorize(op, actor, policy.CreatePost, nil); err != nil {
		return nil, err
	}
	post, err := s.createPost(ctx, actor, in)
	s.finish(op, actor, err)
	return post, err
}

func (s *Service) createPost(ctx context.Context, actor *models.User, in PostInput) (*models.Post, error) {
	title, err := requireText("title", in.Title, config.MaxPostTitleLen)
	if err != nil {
		return nil, err
	}
	body, err := requireText("content", in.Content, config.MaxContentLen)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.GetBoard(ctx, in.BoardID); err != nil {
		return nil, err
	}

	ref, err := s.saveUpload(ctx, in.Media)
	if err != nil {
		return nil, err
	}
	post := &models.Post{BoardID: in.BoardID, UserID: &actor.ID, Title: title, Content: body, MediaPath: ref}
	if err := s.db.CreatePost(ctx, post); err != nil {
		s.removeMedia(ctx, ref)
		return nil, err
	}
	s.logger.Info("Post created", "post_id", post.ID, "board_id", post.BoardID, "actor_id", actor.ID)
	return post, nil
}

// AddReply adds a reply to an existing post, with the same media contract
// as CreatePost.
func (s *Service) AddReply(ctx context.Context, actor *models.User, in ReplyInput) (*models.Reply, error) {
	const op = "create_reply"
	if err := s.authorize(op, actor, policy.CreateReply, nil); err != nil {
		return nil, err
	}
	reply, err := s.addReply(ctx, actor, in)
	s.finish(op, actor, err)
	return reply, err
}

func (s *Service) addReply(ctx context.Context, actor *models.User, in ReplyInput) (*models.Reply, error) {
	body, err := requireText("content", in.Content, config.MaxContentLen)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.GetPost(ctx, in.PostID); err != nil {
		return nil, err
	}

	ref, err := s.saveUpload(ctx, in.Media)
	if err != nil {
		return nil, err
	}
	reply := &models.Reply{PostID: in.PostID, UserID: &actor.ID, Content: body, MediaPath: ref}
	if err := s.db.CreateReply(ctx, reply); err != nil {
		s.removeMedia(ctx, ref)
		return nil, err
	}
	s.logger.Info("Reply created", "reply_id", reply.ID, "post_id", reply.PostID, "actor_id", actor.ID)
	return reply, nil
}

// DeletePost removes a post, its replies and their media. Allowed for the
// author and for administrators.
func (s *Service) DeletePost(ctx context.Context, actor *models.User, id int64) error {
	const op = "delete_post"
	post, err := s.db.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(op, actor, policy.DeletePost, post); err != nil {
		return err
	}
	err = s.deletePost(ctx, actor, post)
	s.finish(op, actor, err)
	return err
}

func (s *Service) deletePost(ctx context.Context, actor *models.User, post *models.Post) error {
	refs, err := s.db.PostMediaRefs(ctx, post.ID)
	if err != nil {
		return err
	}
	s.removeMedia(ctx, refs...)

	var adminActor *int64
	if !post.IsAuthoredBy(actor.ID) {
		adminActor = &actor.ID
	}
	if err := s.db.DeletePost(ctx, post.ID, adminActor); err != nil {
		return err
	}
	s.logger.Info("Post deleted", "post_id", post.ID, "actor_id", actor.ID, "media_files", len(refs))
	return nil
}

// ListBoardFeed returns posts newest first, optionally narrowed to one
// board, each with its replies oldest first.
func (s *Service) ListBoardFeed(ctx context.Context, boardID *int64) ([]models.Post, error) {
	if boardID != nil {
		if _, err := s.db.GetBoard(ctx, *boardID); err != nil {
			return nil, err
		}
	}
	posts, err := s.db.ListPosts(ctx, models.PostFilter{BoardID: boardID})
	if err != nil {
		return nil, err
	}
	if err := s.attachReplies(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPostView returns one post with its replies.
func (s *Service) GetPostView(ctx context.Context, id int64) (*models.Post, error) {
	post, err := s.db.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	posts := []models.Post{*post}
	if err := s.attachReplies(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func (s *Service) attachReplies(ctx context.Context, posts []models.Post) error {
	ids := make([]int64, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	replies, err := s.db.ListRepliesForPosts(ctx, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		p := &posts[i]
		p.MediaKind, p.MediaURL = s.uploads.Describe(ctx, p.MediaPath)
		s.decorateUser(p.Author)
		p.Replies = replies[p.ID]
		if p.Replies == nil {
			p.Replies = []models.Reply{}
		}
		for j := range p.Replies {
			r := &p.Replies[j]
			r.MediaKind, r.MediaURL = s.uploads.Describe(ctx, r.MediaPath)
			s.decorateUser(r.Author)
		}
	}
	return nil
}

func (s *Service) saveUpload(ctx context.Context, up *models.Upload) (string, error) {
	if up == nil {
		return "", nil
	}
	return s.uploads.Save(ctx, up.Data, up.Filename)
}
