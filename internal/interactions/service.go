// Package interactions ties the write path together: it records likes,
// follows and comments, keeps the counter cache in step, and publishes one
// event per applied interaction onto the bus.
package interactions

import (
	"context"
	"strconv"

	"tidepool/internal/comments"
	"tidepool/internal/counters"
	"tidepool/internal/events"
	"tidepool/internal/models"
	"tidepool/internal/observability"
	"tidepool/internal/repository"
)

// ToggleResult reports the outcome of a like or follow toggle.
type ToggleResult struct {
	Active  bool  `json:"active"`
	Count   int64 `json:"count"`
	Changed bool  `json:"changed"`
}

// Service coordinates interaction writes. The counter cache is the serving
// path for counts; rows are the authoritative record the reconciler checks
// against.
type Service struct {
	likes    repository.LikeRepository
	follows  repository.FollowRepository
	comments *comments.Service
	counters *counters.Cache
	bus      *events.Bus
	logger   *observability.Logger
}

func NewService(
	likes repository.LikeRepository,
	follows repository.FollowRepository,
	commentSvc *comments.Service,
	counterCache *counters.Cache,
	bus *events.Bus,
	logger *observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &Service{
		likes:    likes,
		follows:  follows,
		comments: commentSvc,
		counters: counterCache,
		bus:      bus,
		logger:   logger,
	}
}

// ToggleLike flips the actor's like on a target. The cache toggle is atomic
// server side, so two racing toggles for the same actor settle to exactly one
// state change and the count never double-moves.
func (s *Service) ToggleLike(ctx context.Context, actorID uint, targetType string, targetID uint) (*ToggleResult, error) {
	if !models.ValidTarget(targetType) {
		return nil, models.NewValidationError("invalid like target type")
	}

	key := counters.Key{TargetType: targetType, TargetID: targetID, Metric: counters.MetricLikes}
	res, err := s.counters.Toggle(ctx, actorID, key)
	if err != nil {
		return nil, err
	}

	if _, err := s.likes.SetActive(ctx, actorID, targetType, targetID, res.Active); err != nil {
		return nil, err
	}

	if res.Changed {
		eventType := events.EventUnlike
		if res.Active {
			eventType = events.EventLike
		}
		s.publish(ctx, events.NewInteractionEvent(eventType, actorID, targetID, targetType, nil))
	}

	return &ToggleResult{Active: res.Active, Count: res.Count, Changed: res.Changed}, nil
}

// ToggleFollow flips whether the actor follows the followee.
func (s *Service) ToggleFollow(ctx context.Context, actorID, followeeID uint) (*ToggleResult, error) {
	if actorID == followeeID {
		return nil, models.NewValidationError("users cannot follow themselves")
	}

	key := counters.Key{TargetType: models.TargetUser, TargetID: followeeID, Metric: counters.MetricFollowers}
	res, err := s.counters.Toggle(ctx, actorID, key)
	if err != nil {
		return nil, err
	}

	if _, err := s.follows.SetActive(ctx, actorID, followeeID, res.Active); err != nil {
		return nil, err
	}

	if res.Changed {
		eventType := events.EventUnfollow
		if res.Active {
			eventType = events.EventFollow
		}
		s.publish(ctx, events.NewInteractionEvent(eventType, actorID, followeeID, models.TargetUser, nil))
	}

	return &ToggleResult{Active: res.Active, Count: res.Count, Changed: res.Changed}, nil
}

// CreateComment persists a comment and publishes a comment or reply event.
// The payload carries enough for handlers to build notifications without a
// second lookup.
func (s *Service) CreateComment(ctx context.Context, input comments.CreateCommentInput) (*models.Comment, error) {
	comment, err := s.comments.CreateComment(ctx, input)
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"comment_id": strconv.FormatUint(uint64(comment.ID), 10),
		"content":    comment.Content,
	}
	eventType := events.EventComment
	if comment.ParentID != nil {
		eventType = events.EventReply
		payload["parent_id"] = strconv.FormatUint(uint64(*comment.ParentID), 10)
		if comment.ReplyToUserID != nil {
			payload["reply_to_user_id"] = strconv.FormatUint(uint64(*comment.ReplyToUserID), 10)
		}
	}
	s.publish(ctx, events.NewInteractionEvent(eventType, comment.UserID, comment.TargetID, comment.TargetType, payload))

	return comment, nil
}

// DeleteComment removes a comment tree and drops the removed comment IDs from
// the target's comment counter, so the cached count follows the cascade. A
// failed removal is logged and left to the reconciliation sweep.
func (s *Service) DeleteComment(ctx context.Context, commentID, requesterID uint) (int64, error) {
	res, err := s.comments.DeleteComment(ctx, commentID, requesterID)
	if err != nil {
		return 0, err
	}

	key := counters.Key{TargetType: res.TargetType, TargetID: res.TargetID, Metric: counters.MetricComments}
	if err := s.counters.RemoveMembers(ctx, key, res.RemovedIDs); err != nil {
		s.logger.Error("comment counter realign failed",
			"counter_key", key.String(),
			"removed", res.Removed,
			"error", err)
	}

	return res.Removed, nil
}

// publish blocks until the lane accepts the event. Losing an event here
// would desynchronize notifications and audit from applied writes, so the
// producer waits out backpressure instead of dropping.
func (s *Service) publish(ctx context.Context, event events.InteractionEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.LaneFor(event.Type), event); err != nil {
		s.logger.Error("interaction event publish failed",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"error", err)
	}
}
