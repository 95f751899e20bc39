package server

import (
	"tidepool/internal/comments"
	"tidepool/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetRootComments handles GET /api/comments/:targetType/:targetId
func (s *Server) GetRootComments(c *fiber.Ctx) error {
	targetType := c.Params("targetType")
	targetID, err := s.parseID(c, "targetId")
	if err != nil {
		return nil
	}

	pageNo := c.QueryInt("page", 1)
	pageSize := c.QueryInt("size", 10)

	page, err := s.commentAssembler.FindRootComments(c.Context(), targetType, targetID, pageNo, pageSize)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(page)
}

// GetReplies handles GET /api/comments/:id/replies
func (s *Server) GetReplies(c *fiber.Ctx) error {
	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	pageNo := c.QueryInt("page", 1)
	pageSize := c.QueryInt("size", 10)

	page, err := s.commentAssembler.FindReplies(c.Context(), commentID, pageNo, pageSize)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(page)
}

// CreateComment handles POST /api/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		TargetType    string `json:"target_type"`
		TargetID      uint   `json:"target_id"`
		Content       string `json:"content"`
		ParentID      *uint  `json:"parent_id"`
		ReplyToUserID *uint  `json:"reply_to_user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.interaction.CreateComment(c.Context(), comments.CreateCommentInput{
		TargetType:    req.TargetType,
		TargetID:      req.TargetID,
		UserID:        userID,
		Content:       req.Content,
		ParentID:      req.ParentID,
		ReplyToUserID: req.ReplyToUserID,
	})
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment handles DELETE /api/comments/:id
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	removed, err := s.interaction.DeleteComment(c.Context(), commentID, userID)
	if err != nil {
		if models.IsCode(err, models.CodeUnauthorized) {
			return models.RespondWithError(c, fiber.StatusForbidden, err)
		}
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(fiber.Map{"removed": removed})
}
