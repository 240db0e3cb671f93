package content

import (
	"context"
	"strings"
	"unicode/utf8"

	"forum/config"
	"forum/models"
	"forum/policy"
)

// ListBoards returns every board.
func (s *Service) ListBoards(ctx context.Context) ([]models.Board, error) {
	return s.db.ListBoards(ctx)
}

// CreateBoard adds a board. Admin only.
func (s *Service) CreateBoard(ctx context.Context, actor *models.User, name, description string) (*models.Board, error) {
	const op = "create_board"
	if err := s.authorize(op, actor, policy.CreateBoard, nil); err != nil {
		return nil, err
	}
	board, err := s.createBoard(ctx, actor, name, description)
	s.finish(op, actor, err)
	return board, err
}

func (s *Service) createBoard(ctx context.Context, actor *models.User, name, description string) (*models.Board, error) {
	name, description, err := validateBoard(name, description)
	if err != nil {
		return nil, err
	}
	board, err := s.db.CreateBoard(ctx, actor.ID, name, description)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Board created", "board_id", board.ID, "actor_id", actor.ID)
	return board, nil
}

// EditBoard renames a board or changes its description. Admin only.
func (s *Service) EditBoard(ctx context.Context, actor *models.User, id int64, name, description string) (*models.Board, error) {
	const op = "edit_board"
	if err := s.authorize(op, actor, policy.EditBoard, nil); err != nil {
		return nil, err
	}
	board, err := s.editBoard(ctx, actor, id, name, description)
	s.finish(op, actor, err)
	return board, err
}

func (s *Service) editBoard(ctx context.Context, actor *models.User, id int64, name, description string) (*models.Board, error) {
	name, description, err := validateBoard(name, description)
	if err != nil {
		return nil, err
	}
	board, err := s.db.UpdateBoard(ctx, actor.ID, id, name, description)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Board edited", "board_id", id, "actor_id", actor.ID)
	return board, nil
}

// DeleteBoard removes a board with all of its posts, replies and their
// media files. Admin only.
func (s *Service) DeleteBoard(ctx context.Context, actor *models.User, id int64) error {
	const op = "delete_board"
	if err := s.authorize(op, actor, policy.DeleteBoard, nil); err != nil {
		return err
	}
	err := s.deleteBoard(ctx, actor, id)
	s.finish(op, actor, err)
	return err
}

func (s *Service) deleteBoard(ctx context.Context, actor *models.User, id int64) error {
	if _, err := s.db.GetBoard(ctx, id); err != nil {
		return err
	}
	refs, err := s.db.BoardMediaRefs(ctx, id)
	if err != nil {
		return err
	}
	s.removeMedia(ctx, refs...)
	if err := s.db.DeleteBoard(ctx, actor.ID, id); err != nil {
		return err
	}
	s.logger.Info("Board deleted", "board_id", id, "actor_id", actor.ID, "media_files", len(refs))
	return nil
}

// AdminLog returns the most recent administrator actions. Admin only.
func (s *Service) AdminLog(ctx context.Context, actor *models.User, limit int) ([]models.AdminAction, error) {
	if err := s.authorize("admin_log", actor, policy.ViewAdminLog, nil); err != nil {
		return nil, err
	}
	return s.db.ListAdminActions(ctx, limit)
}

func validateBoard(name, description string) (string, string, error) {
	name, err := requireText("board name", name, config.MaxBoardNameLen)
	if err != nil {
		return "", "", err
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > config.MaxDescriptionLen {
		return "", "", &models.ValidationError{Field: "description", Reason: "is too long"}
	}
	return name, description, nil
}
