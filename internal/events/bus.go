package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"tidepool/internal/models"
	"tidepool/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultLaneCapacity bounds each lane's ring. Publishers block when a
	// lane is full rather than dropping events.
	DefaultLaneCapacity = 1024

	// DefaultHandlerTimeout bounds one handler invocation. A handler that
	// exceeds it is treated as failed, not retried, and the lane moves on.
	DefaultHandlerTimeout = 5 * time.Second
)

// ErrBusClosed is returned by Publish after Stop has begun.
var ErrBusClosed = errors.New("event bus is stopped")

// Options configures a Bus.
type Options struct {
	// LaneCapacity is the buffered slot count per lane. Zero means
	// DefaultLaneCapacity.
	LaneCapacity int
	// HandlerTimeout bounds each handler call. Zero means
	// DefaultHandlerTimeout.
	HandlerTimeout time.Duration
	// Lanes lists the producer lanes to create. Empty means the three
	// interaction lanes (like, comment, follow).
	Lanes []Lane
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Bus is a bounded multi-lane event pipeline. Each lane owns one consumer
// goroutine, so handlers observe a lane's events in exact publish order.
// Handler failures (error, timeout, panic) are isolated per handler: logged
// and counted, never propagated to the producer or to sibling handlers.
//
// The Bus is constructed once at process start with an explicit registry and
// carries an explicit Start/Stop lifecycle.
type Bus struct {
	registry *Registry
	lanes    map[Lane]chan InteractionEvent
	capacity int
	timeout  time.Duration
	logger   *slog.Logger

	// quit is closed by Stop. Lane channels are never closed, so a Publish
	// racing Stop can never hit a closed channel; it observes quit instead.
	quit chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// NewBus creates a stopped Bus over the given registry.
func NewBus(registry *Registry, opts Options) *Bus {
	capacity := opts.LaneCapacity
	if capacity <= 0 {
		capacity = DefaultLaneCapacity
	}
	timeout := opts.HandlerTimeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	laneIDs := opts.Lanes
	if len(laneIDs) == 0 {
		laneIDs = []Lane{LaneLike, LaneComment, LaneFollow}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lanes := make(map[Lane]chan InteractionEvent, len(laneIDs))
	for _, id := range laneIDs {
		lanes[id] = make(chan InteractionEvent, capacity)
	}

	return &Bus{
		registry: registry,
		lanes:    lanes,
		capacity: capacity,
		timeout:  timeout,
		logger:   logger,
		quit:     make(chan struct{}),
	}
}

// Start launches one consumer goroutine per lane. Calling Start twice is an
// error.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("event bus already started")
	}
	b.started = true

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	for id, ch := range b.lanes {
		b.done.Add(1)
		go b.consume(ctx, id, ch)
	}

	b.logger.Info("event bus started",
		slog.Int("lanes", len(b.lanes)),
		slog.Int("lane_capacity", b.capacity),
		slog.Duration("handler_timeout", b.timeout),
		slog.Int("registrations", b.registry.Len()),
	)
	return nil
}

// Stop signals shutdown, drains buffered events, and waits for consumers to
// finish, bounded by ctx.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	close(b.quit)
	b.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		b.done.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		// Abandon in-flight handlers; their contexts are cancelled below.
		b.cancel()
		return fmt.Errorf("event bus drain interrupted: %w", ctx.Err())
	}
	b.cancel()
	b.logger.Info("event bus stopped")
	return nil
}

// Publish enqueues event on the given lane, blocking while the lane is full
// (backpressure; events are never silently dropped). It returns once the
// event is accepted; handler execution is asynchronous and its failures are
// never surfaced here.
func (b *Bus) Publish(ctx context.Context, lane Lane, event InteractionEvent) error {
	ch, err := b.lane(lane)
	if err != nil {
		return err
	}
	select {
	case ch <- event:
		observability.EventsPublished.WithLabelValues(string(lane), string(event.Type)).Inc()
		observability.EventLaneDepth.WithLabelValues(string(lane)).Set(float64(len(ch)))
		return nil
	case <-b.quit:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues without blocking and reports a CAPACITY_ERROR when the
// lane is saturated.
func (b *Bus) TryPublish(lane Lane, event InteractionEvent) error {
	ch, err := b.lane(lane)
	if err != nil {
		return err
	}
	select {
	case <-b.quit:
		return ErrBusClosed
	default:
	}
	select {
	case ch <- event:
		observability.EventsPublished.WithLabelValues(string(lane), string(event.Type)).Inc()
		observability.EventLaneDepth.WithLabelValues(string(lane)).Set(float64(len(ch)))
		return nil
	default:
		return models.NewCapacityError(string(lane))
	}
}

func (b *Bus) lane(lane Lane) (chan InteractionEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, ErrBusClosed
	}
	ch, ok := b.lanes[lane]
	if !ok {
		return nil, fmt.Errorf("unknown event lane %q", lane)
	}
	return ch, nil
}

// consume is one lane's delivery loop. It dispatches each event to every
// registered handler in registration order; on shutdown it drains whatever is
// already buffered before exiting.
func (b *Bus) consume(ctx context.Context, lane Lane, ch chan InteractionEvent) {
	defer b.done.Done()
	for {
		select {
		case event := <-ch:
			observability.EventLaneDepth.WithLabelValues(string(lane)).Set(float64(len(ch)))
			b.dispatch(ctx, lane, event)
		case <-b.quit:
			for {
				select {
				case event := <-ch:
					observability.EventLaneDepth.WithLabelValues(string(lane)).Set(float64(len(ch)))
					b.dispatch(ctx, lane, event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, lane Lane, event InteractionEvent) {
	spanCtx, span := observability.Tracer.Start(ctx, "events.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("event.type", string(event.Type)),
			attribute.String("event.lane", string(lane)),
		),
	)
	defer span.End()

	for _, h := range b.registry.HandlersFor(event.Type) {
		b.invoke(spanCtx, lane, h, event)
	}
	observability.EventsDispatched.WithLabelValues(string(lane), string(event.Type)).Inc()
}

// invoke runs one handler with the per-handler timeout and panic isolation.
func (b *Bus) invoke(ctx context.Context, lane Lane, h Handler, event InteractionEvent) {
	handlerCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		done <- h.Handle(handlerCtx, event)
	}()

	var err error
	select {
	case err = <-done:
	case <-handlerCtx.Done():
		// The handler goroutine is abandoned; its context is cancelled and
		// the lane moves on.
		err = fmt.Errorf("handler timed out after %s", b.timeout)
	}
	observability.EventHandlerDuration.WithLabelValues(h.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		failure := models.NewHandlerFailure(h.Name(), err)
		observability.EventHandlerFailures.WithLabelValues(h.Name(), string(event.Type)).Inc()
		observability.RecordError(ctx, failure)
		b.logger.ErrorContext(ctx, "event handler failed",
			slog.String("lane", string(lane)),
			slog.String("handler", h.Name()),
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("error", failure.Error()),
		)
	}
}
