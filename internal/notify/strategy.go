// Package notify implements notification delivery. A dispatcher routes each
// notification category to a registered delivery strategy; new channels plug
// in by registering another strategy, without touching dispatch code.
package notify

import (
	"context"

	"tidepool/internal/models"
)

// StrategyType names a delivery channel.
type StrategyType string

const (
	StrategyDatabase StrategyType = "database"
	StrategySite     StrategyType = "site"
	StrategyEmail    StrategyType = "email"
	StrategySMS      StrategyType = "sms"
	StrategyPush     StrategyType = "push"
)

// Strategy delivers one notification over one channel. Implementations must
// be safe for concurrent use; the dispatcher calls them from event handler
// goroutines.
type Strategy interface {
	// Type identifies the channel this strategy serves.
	Type() StrategyType
	// Send delivers the notification. A returned error marks the delivery
	// failed for this channel only; other channels are unaffected.
	Send(ctx context.Context, n *models.Notification) error
}
