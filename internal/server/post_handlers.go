package server

import (
	"tidepool/internal/counters"
	"tidepool/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Title == "" || req.Content == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Title and content are required"))
	}

	post := &models.Post{
		Title:   req.Title,
		Content: req.Content,
		UserID:  userID,
	}
	if err := s.postRepo.Create(c.Context(), post); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	posts, err := s.postRepo.List(c.Context(), p.Offset, p.Limit)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	s.attachCounts(c, posts)
	return c.JSON(fiber.Map{"posts": posts})
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	s.attachCounts(c, []*models.Post{post})
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	if post.UserID != userID {
		admin, aerr := s.isAdmin(c, userID)
		if aerr != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, aerr)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewUnauthorizedError("Only the author or an admin can delete a post"))
		}
	}

	if err := s.postRepo.Delete(c.Context(), id); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// attachCounts fills the cache-served like and comment counts onto posts.
// Count failures leave zeros rather than failing the read.
func (s *Server) attachCounts(c *fiber.Ctx, posts []*models.Post) {
	if len(posts) == 0 {
		return
	}
	keys := make([]counters.Key, 0, len(posts)*2)
	for _, post := range posts {
		keys = append(keys,
			counters.Key{TargetType: models.TargetPost, TargetID: post.ID, Metric: counters.MetricLikes},
			counters.Key{TargetType: models.TargetPost, TargetID: post.ID, Metric: counters.MetricComments},
		)
	}
	counts, err := s.counterCache.BatchGetCounts(c.Context(), keys)
	if err != nil {
		return
	}
	for _, post := range posts {
		post.LikesCount = counts[counters.Key{TargetType: models.TargetPost, TargetID: post.ID, Metric: counters.MetricLikes}]
		post.CommentsCount = counts[counters.Key{TargetType: models.TargetPost, TargetID: post.ID, Metric: counters.MetricComments}]
	}
}
