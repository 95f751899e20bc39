package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := HandlerFunc{HandlerName: "a", Fn: func(context.Context, InteractionEvent) error { return nil }}
	b := HandlerFunc{HandlerName: "b", Fn: func(context.Context, InteractionEvent) error { return nil }}

	r.Register(a, EventLike, EventUnlike)
	r.Register(b, EventLike)

	likeHandlers := r.HandlersFor(EventLike)
	assert.Len(t, likeHandlers, 2)
	assert.Equal(t, "a", likeHandlers[0].Name())
	assert.Equal(t, "b", likeHandlers[1].Name())

	assert.Len(t, r.HandlersFor(EventUnlike), 1)
	assert.Empty(t, r.HandlersFor(EventComment))
	assert.Equal(t, 3, r.Len())
}

func TestLaneFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		eventType EventType
		lane      Lane
	}{
		{EventLike, LaneLike},
		{EventUnlike, LaneLike},
		{EventFollow, LaneFollow},
		{EventUnfollow, LaneFollow},
		{EventComment, LaneComment},
		{EventReply, LaneComment},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.lane, LaneFor(tt.eventType), string(tt.eventType))
	}
}

func TestNewInteractionEvent(t *testing.T) {
	t.Parallel()

	e := NewInteractionEvent(EventComment, 7, 42, "post", map[string]string{"comment_id": "9"})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventComment, e.Type)
	assert.Equal(t, uint(7), e.ActorID)
	assert.Equal(t, uint(42), e.TargetID)
	assert.Equal(t, "post", e.TargetType)
	assert.Equal(t, "9", e.Payload["comment_id"])
	assert.False(t, e.OccurredAt.IsZero())

	other := NewInteractionEvent(EventComment, 7, 42, "post", nil)
	assert.NotEqual(t, e.ID, other.ID)
}
