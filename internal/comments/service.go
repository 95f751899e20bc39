package comments

import (
	"context"
	"strings"

	"tidepool/internal/models"
	"tidepool/internal/observability"
	"tidepool/internal/repository"
)

const maxContentLength = 10000

// CreateCommentInput carries everything needed to write a comment. ParentID
// nil creates a root comment; non-nil creates a reply to that root.
type CreateCommentInput struct {
	TargetType    string
	TargetID      uint
	UserID        uint
	Content       string
	ParentID      *uint
	ReplyToUserID *uint
}

// Service owns comment writes. Every successful write bumps the target's
// version marker so subsequent reads skip stale cached pages.
type Service struct {
	repo   repository.CommentRepository
	users  repository.UserRepository
	cache  *Cache
	logger *observability.Logger
}

func NewService(
	repo repository.CommentRepository,
	users repository.UserRepository,
	cache *Cache,
	logger *observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &Service{repo: repo, users: users, cache: cache, logger: logger}
}

// CreateComment validates and persists a comment, then invalidates the
// target's cached pages. Replies are pinned to the root's target so a reply
// can never land on a different target than its parent.
func (s *Service) CreateComment(ctx context.Context, input CreateCommentInput) (*models.Comment, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, models.NewValidationError("comment content is required")
	}
	if len(content) > maxContentLength {
		return nil, models.NewValidationError("comment content exceeds maximum length")
	}
	if !models.ValidTarget(input.TargetType) {
		return nil, models.NewValidationError("invalid comment target type")
	}

	comment := &models.Comment{
		TargetType:    input.TargetType,
		TargetID:      input.TargetID,
		UserID:        input.UserID,
		Content:       content,
		ParentID:      input.ParentID,
		ReplyToUserID: input.ReplyToUserID,
	}

	if input.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsRoot() {
			return nil, models.NewValidationError("replies can only be attached to a root comment")
		}
		comment.TargetType = parent.TargetType
		comment.TargetID = parent.TargetID
	}

	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, err
	}

	if err := s.cache.BumpVersion(ctx, comment.TargetType, comment.TargetID); err != nil {
		s.logger.Warn("comment cache invalidation failed",
			"target_type", comment.TargetType,
			"target_id", comment.TargetID,
			"error", err)
	}

	return s.repo.GetByID(ctx, comment.ID)
}

// DeleteResult describes one cascade delete: which rows went away and which
// target they hung off, so callers can realign the target's comment counter.
type DeleteResult struct {
	Removed    int64
	RemovedIDs []uint
	TargetType string
	TargetID   uint
}

// DeleteComment removes a comment after an author-or-admin check. Deleting a
// root comment cascades to all of its replies; the result lists every removed
// row including the root itself.
func (s *Service) DeleteComment(ctx context.Context, commentID, requesterID uint) (*DeleteResult, error) {
	comment, err := s.repo.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if comment.UserID != requesterID {
		requester, err := s.users.GetByID(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		if !requester.IsAdmin {
			return nil, models.NewUnauthorizedError("only the author or an admin can delete a comment")
		}
	}

	removedIDs, err := s.repo.DeleteCascade(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.BumpVersion(ctx, comment.TargetType, comment.TargetID); err != nil {
		s.logger.Warn("comment cache invalidation failed",
			"target_type", comment.TargetType,
			"target_id", comment.TargetID,
			"error", err)
	}

	return &DeleteResult{
		Removed:    int64(len(removedIDs)),
		RemovedIDs: removedIDs,
		TargetType: comment.TargetType,
		TargetID:   comment.TargetID,
	}, nil
}
