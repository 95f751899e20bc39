package server

import (
	"tidepool/internal/counters"
	"tidepool/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ToggleLike handles POST /api/likes/:targetType/:targetId/toggle
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	targetType := c.Params("targetType")
	targetID, err := s.parseID(c, "targetId")
	if err != nil {
		return nil
	}

	result, err := s.interaction.ToggleLike(c.Context(), userID, targetType, targetID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(result)
}

// GetMyLike handles GET /api/likes/:targetType/:targetId/me
func (s *Server) GetMyLike(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	targetType := c.Params("targetType")
	targetID, err := s.parseID(c, "targetId")
	if err != nil {
		return nil
	}

	key := counters.Key{TargetType: targetType, TargetID: targetID, Metric: counters.MetricLikes}
	active, err := s.counterCache.IsActive(c.Context(), userID, key)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"active": active})
}

// ToggleFollow handles POST /api/users/:id/follow/toggle
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	followeeID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.interaction.ToggleFollow(c.Context(), userID, followeeID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(result)
}

// GetCounts handles GET /api/counts/:targetType/:targetId. It serves every
// metric for one target in a single round trip.
func (s *Server) GetCounts(c *fiber.Ctx) error {
	targetType := c.Params("targetType")
	targetID, err := s.parseID(c, "targetId")
	if err != nil {
		return nil
	}

	keys := []counters.Key{
		{TargetType: targetType, TargetID: targetID, Metric: counters.MetricLikes},
		{TargetType: targetType, TargetID: targetID, Metric: counters.MetricComments},
	}
	if targetType == models.TargetUser {
		keys = append(keys, counters.Key{
			TargetType: targetType, TargetID: targetID, Metric: counters.MetricFollowers})
	}

	counts, err := s.counterCache.BatchGetCounts(c.Context(), keys)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	out := fiber.Map{}
	for key, count := range counts {
		out[string(key.Metric)] = count
	}
	return c.JSON(fiber.Map{
		"target_type": targetType,
		"target_id":   targetID,
		"counts":      out,
	})
}

// ReconcileLikes handles POST /api/admin/reconcile/likes/:targetType
func (s *Server) ReconcileLikes(c *fiber.Ctx) error {
	targetType := c.Params("targetType")
	repair := c.QueryBool("repair", false)

	drifts, err := s.reconciler.SweepLikes(c.Context(), targetType, repair)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	out := make([]fiber.Map, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, fiber.Map{
			"key":           d.Key.String(),
			"cached":        d.Cached,
			"authoritative": d.Authoritative,
		})
	}
	return c.JSON(fiber.Map{
		"target_type": targetType,
		"repaired":    repair,
		"drifts":      out,
	})
}

// ReconcileComments handles POST /api/admin/reconcile/comments/:targetType
func (s *Server) ReconcileComments(c *fiber.Ctx) error {
	targetType := c.Params("targetType")
	repair := c.QueryBool("repair", false)

	drifts, err := s.reconciler.SweepComments(c.Context(), targetType, repair)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	out := make([]fiber.Map, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, fiber.Map{
			"key":           d.Key.String(),
			"cached":        d.Cached,
			"authoritative": d.Authoritative,
		})
	}
	return c.JSON(fiber.Map{
		"target_type": targetType,
		"repaired":    repair,
		"drifts":      out,
	})
}

// GetCounterSnapshot handles GET /api/admin/counters/:targetType/:metric
func (s *Server) GetCounterSnapshot(c *fiber.Ctx) error {
	targetType := c.Params("targetType")
	metric := counters.Metric(c.Params("metric"))

	entries, err := s.counterCache.Snapshot(c.Context(), targetType, metric)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"target_type": targetType,
		"metric":      string(metric),
		"entries":     entries,
	})
}
