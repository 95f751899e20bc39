package events

import (
	"context"
)

// Handler consumes dispatched events. Implementations must be safe for
// concurrent use across lanes; within one lane calls are sequential.
type Handler interface {
	// Name identifies the handler in logs and metrics.
	Name() string
	// Handle processes one event. A returned error is logged and counted as
	// a handler failure; it never halts the lane or other handlers.
	Handle(ctx context.Context, event InteractionEvent) error
}

// Registry maps event types to an ordered list of handlers. Registration
// order is dispatch order. The registry is assembled once at startup, before
// the bus starts, and is read-only afterwards.
type Registry struct {
	handlers map[EventType][]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[EventType][]Handler)}
}

// Register subscribes h to every listed event type, appended after any
// previously registered handlers.
func (r *Registry) Register(h Handler, types ...EventType) {
	for _, t := range types {
		r.handlers[t] = append(r.handlers[t], h)
	}
}

// HandlersFor returns the ordered handlers for an event type.
func (r *Registry) HandlersFor(t EventType) []Handler {
	return r.handlers[t]
}

// Len returns the total number of registrations across all event types.
func (r *Registry) Len() int {
	n := 0
	for _, hs := range r.handlers {
		n += len(hs)
	}
	return n
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, event InteractionEvent) error
}

// Name returns the handler's identifier.
func (h HandlerFunc) Name() string { return h.HandlerName }

// Handle invokes the wrapped function.
func (h HandlerFunc) Handle(ctx context.Context, event InteractionEvent) error {
	return h.Fn(ctx, event)
}
