package interactions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"tidepool/internal/counters"
	"tidepool/internal/events"
	"tidepool/internal/models"
	"tidepool/internal/notify"
	"tidepool/internal/repository"
)

const notificationPreviewRunes = 50

// CounterHandler keeps the comment counter in step with comment events. Each
// comment ID joins the target's comment set, so replayed or duplicated events
// cannot inflate the count.
type CounterHandler struct {
	counters *counters.Cache
}

func NewCounterHandler(counterCache *counters.Cache) *CounterHandler {
	return &CounterHandler{counters: counterCache}
}

func (h *CounterHandler) Name() string { return "counter" }

func (h *CounterHandler) Handle(ctx context.Context, event events.InteractionEvent) error {
	switch event.Type {
	case events.EventComment, events.EventReply:
		commentID, err := payloadUint(event, "comment_id")
		if err != nil {
			return err
		}
		key := counters.Key{
			TargetType: event.TargetType,
			TargetID:   event.TargetID,
			Metric:     counters.MetricComments,
		}
		_, err = h.counters.Activate(ctx, commentID, key)
		return err
	default:
		return nil
	}
}

// NotificationHandler turns interaction events into notifications for the
// affected user. Self-interactions never notify, and unlike/unfollow events
// produce nothing.
type NotificationHandler struct {
	dispatcher *notify.Dispatcher
	posts      repository.PostRepository
}

func NewNotificationHandler(dispatcher *notify.Dispatcher, posts repository.PostRepository) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, posts: posts}
}

func (h *NotificationHandler) Name() string { return "notification" }

func (h *NotificationHandler) Handle(ctx context.Context, event events.InteractionEvent) error {
	n, err := h.build(ctx, event)
	if err != nil || n == nil {
		return err
	}
	if n.ReceiverID == event.ActorID {
		return nil
	}
	return h.dispatcher.Dispatch(ctx, n)
}

func (h *NotificationHandler) build(ctx context.Context, event events.InteractionEvent) (*models.Notification, error) {
	switch event.Type {
	case events.EventLike:
		receiverID, err := h.ownerOf(ctx, event.TargetType, event.TargetID)
		if err != nil {
			return nil, err
		}
		return &models.Notification{
			Type:       models.NotificationLike,
			SenderID:   event.ActorID,
			ReceiverID: receiverID,
			Content:    "liked your " + event.TargetType,
			TargetType: event.TargetType,
			TargetID:   event.TargetID,
		}, nil

	case events.EventComment:
		receiverID, err := h.ownerOf(ctx, event.TargetType, event.TargetID)
		if err != nil {
			return nil, err
		}
		return &models.Notification{
			Type:       models.NotificationComment,
			SenderID:   event.ActorID,
			ReceiverID: receiverID,
			Content:    truncateRunes(event.Payload["content"], notificationPreviewRunes),
			TargetType: event.TargetType,
			TargetID:   event.TargetID,
		}, nil

	case events.EventReply:
		// A reply without an addressed user has nobody to notify.
		receiverID, err := payloadUint(event, "reply_to_user_id")
		if err != nil {
			return nil, nil
		}
		return &models.Notification{
			Type:       models.NotificationReply,
			SenderID:   event.ActorID,
			ReceiverID: receiverID,
			Content:    truncateRunes(event.Payload["content"], notificationPreviewRunes),
			TargetType: event.TargetType,
			TargetID:   event.TargetID,
		}, nil

	case events.EventFollow:
		return &models.Notification{
			Type:       models.NotificationFollow,
			SenderID:   event.ActorID,
			ReceiverID: event.TargetID,
			Content:    "started following you",
			TargetType: models.TargetUser,
			TargetID:   event.ActorID,
		}, nil

	default:
		return nil, nil
	}
}

// ownerOf resolves the user a notification about a target should reach.
func (h *NotificationHandler) ownerOf(ctx context.Context, targetType string, targetID uint) (uint, error) {
	switch targetType {
	case models.TargetUser:
		return targetID, nil
	case models.TargetPost, models.TargetArticle:
		post, err := h.posts.GetByID(ctx, targetID)
		if err != nil {
			return 0, err
		}
		return post.UserID, nil
	default:
		return 0, models.NewValidationError("unknown notification target type " + targetType)
	}
}

// AuditHandler persists one durable row per dispatched event. The event ID
// is uniquely indexed, so a redelivered event audits once.
type AuditHandler struct {
	repo repository.AuditRepository
}

func NewAuditHandler(repo repository.AuditRepository) *AuditHandler {
	return &AuditHandler{repo: repo}
}

func (h *AuditHandler) Name() string { return "audit" }

func (h *AuditHandler) Handle(ctx context.Context, event events.InteractionEvent) error {
	var payload string
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = string(raw)
	}
	return h.repo.Create(ctx, &models.AuditEntry{
		EventID:    event.ID,
		EventType:  string(event.Type),
		ActorID:    event.ActorID,
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		Payload:    payload,
		OccurredAt: event.OccurredAt,
	})
}

func payloadUint(event events.InteractionEvent, key string) (uint, error) {
	raw, ok := event.Payload[key]
	if !ok {
		return 0, fmt.Errorf("event %s missing payload key %q", event.ID, key)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("event %s payload key %q: %w", event.ID, key, err)
	}
	return uint(v), nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
