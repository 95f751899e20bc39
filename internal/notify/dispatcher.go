package notify

import (
	"context"
	"fmt"
	"sync"

	"tidepool/internal/models"
	"tidepool/internal/observability"
)

// Dispatcher routes notifications to strategies by category. Registration is
// the extension point: a category not present in the routing table falls back
// to the site strategy, and a routed-but-unregistered strategy type is a
// dispatch error rather than a silent drop.
type Dispatcher struct {
	mu         sync.RWMutex
	strategies map[StrategyType]Strategy
	routing    map[string]StrategyType
	fallback   StrategyType
	logger     *observability.Logger
}

func NewDispatcher(logger *observability.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &Dispatcher{
		strategies: make(map[StrategyType]Strategy),
		routing:    make(map[string]StrategyType),
		fallback:   StrategySite,
		logger:     logger,
	}
}

// Register adds a strategy. Registering the same strategy type twice is a
// wiring bug and fails loudly.
func (d *Dispatcher) Register(s Strategy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.strategies[s.Type()]; exists {
		return fmt.Errorf("notification strategy %q already registered", s.Type())
	}
	d.strategies[s.Type()] = s
	return nil
}

// Route maps a notification category to a strategy type, replacing any
// previous mapping for that category.
func (d *Dispatcher) Route(category string, st StrategyType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routing[category] = st
}

// LoadRouting installs a whole routing table at once.
func (d *Dispatcher) LoadRouting(table map[string]StrategyType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for category, st := range table {
		d.routing[category] = st
	}
}

// strategyFor resolves the strategy for a category under the read lock.
func (d *Dispatcher) strategyFor(category string) (Strategy, StrategyType, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.routing[category]
	if !ok {
		st = d.fallback
	}
	s, ok := d.strategies[st]
	if !ok {
		return nil, st, models.NewInternalError(
			fmt.Errorf("no strategy registered for type %q (category %q)", st, category))
	}
	return s, st, nil
}

// Dispatch delivers one notification through the strategy its category routes
// to.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	s, st, err := d.strategyFor(n.Type)
	if err != nil {
		observability.NotificationsDispatched.WithLabelValues(string(st), "error").Inc()
		return err
	}
	if err := s.Send(ctx, n); err != nil {
		observability.NotificationsDispatched.WithLabelValues(string(st), "error").Inc()
		d.logger.Error("notification delivery failed",
			"strategy", string(st),
			"category", n.Type,
			"receiver_id", n.ReceiverID,
			"error", err)
		return err
	}
	observability.NotificationsDispatched.WithLabelValues(string(st), "ok").Inc()
	return nil
}
