// Package events implements the in-process interaction event pipeline: a
// bounded, per-lane ordered bus that fans events out to registered handlers.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of interaction an event describes.
type EventType string

const (
	EventLike     EventType = "like"
	EventUnlike   EventType = "unlike"
	EventComment  EventType = "comment"
	EventReply    EventType = "reply"
	EventFollow   EventType = "follow"
	EventUnfollow EventType = "unfollow"
)

// Lane names one producer's ordered stream into the bus. Events in the same
// lane are delivered to handlers in publish order; across lanes there is no
// ordering guarantee.
type Lane string

const (
	LaneLike    Lane = "like"
	LaneComment Lane = "comment"
	LaneFollow  Lane = "follow"
)

// InteractionEvent is the transient dispatch unit for one interaction. It is
// immutable once published and is not itself persisted; durable audit state
// is a handler side effect. The schema is additive-only if it ever crosses a
// process boundary.
type InteractionEvent struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	ActorID    uint              `json:"actor_id"`
	TargetID   uint              `json:"target_id"`
	TargetType string            `json:"target_type"`
	Payload    map[string]string `json:"payload,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// LaneFor maps an event type onto the lane that carries it. Like/unlike and
// follow/unfollow pairs share a lane so a toggle's two halves stay ordered.
func LaneFor(t EventType) Lane {
	switch t {
	case EventLike, EventUnlike:
		return LaneLike
	case EventFollow, EventUnfollow:
		return LaneFollow
	default:
		return LaneComment
	}
}

// NewInteractionEvent builds an event with a fresh ID and timestamp.
func NewInteractionEvent(t EventType, actorID, targetID uint, targetType string, payload map[string]string) InteractionEvent {
	return InteractionEvent{
		ID:         uuid.NewString(),
		Type:       t,
		ActorID:    actorID,
		TargetID:   targetID,
		TargetType: targetType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}
