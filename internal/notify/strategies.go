package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"tidepool/internal/models"
	"tidepool/internal/observability"
	"tidepool/internal/repository"

	"github.com/redis/go-redis/v9"
)

// SiteChannel returns the Redis pub/sub channel carrying a user's live site
// notifications.
func SiteChannel(receiverID uint) string {
	return fmt.Sprintf("notify:user:%d", receiverID)
}

// DatabaseStrategy persists the notification. It is the default channel:
// every category that the routing table does not claim lands here, and a
// persistence failure is surfaced rather than swallowed so the caller's
// failure isolation can count it.
type DatabaseStrategy struct {
	repo repository.NotificationRepository
}

func NewDatabaseStrategy(repo repository.NotificationRepository) *DatabaseStrategy {
	return &DatabaseStrategy{repo: repo}
}

func (s *DatabaseStrategy) Type() StrategyType { return StrategyDatabase }

func (s *DatabaseStrategy) Send(ctx context.Context, n *models.Notification) error {
	return s.repo.Create(ctx, n)
}

// SiteStrategy persists the notification and then announces it on the
// receiver's pub/sub channel so connected websocket clients see it live. The
// announce is best effort; the row is the source of truth.
type SiteStrategy struct {
	repo   repository.NotificationRepository
	rdb    *redis.Client
	logger *observability.Logger
}

func NewSiteStrategy(repo repository.NotificationRepository, rdb *redis.Client, logger *observability.Logger) *SiteStrategy {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &SiteStrategy{repo: repo, rdb: rdb, logger: logger}
}

func (s *SiteStrategy) Type() StrategyType { return StrategySite }

func (s *SiteStrategy) Send(ctx context.Context, n *models.Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	if s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return nil
	}
	if err := s.rdb.Publish(ctx, SiteChannel(n.ReceiverID), payload).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("notify_publish").Inc()
		s.logger.Warn("site notification publish failed",
			"receiver_id", n.ReceiverID,
			"error", err)
	}
	return nil
}

// EmailStrategy is a delivery stub pending an outbound mail integration. It
// records the send in the log so routed categories remain observable.
type EmailStrategy struct {
	logger *observability.Logger
}

func NewEmailStrategy(logger *observability.Logger) *EmailStrategy {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &EmailStrategy{logger: logger}
}

func (s *EmailStrategy) Type() StrategyType { return StrategyEmail }

func (s *EmailStrategy) Send(ctx context.Context, n *models.Notification) error {
	s.logger.Info("email notification dispatched",
		"receiver_id", n.ReceiverID,
		"type", n.Type)
	return nil
}

// SMSStrategy is a delivery stub pending an SMS provider integration.
type SMSStrategy struct {
	logger *observability.Logger
}

func NewSMSStrategy(logger *observability.Logger) *SMSStrategy {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &SMSStrategy{logger: logger}
}

func (s *SMSStrategy) Type() StrategyType { return StrategySMS }

func (s *SMSStrategy) Send(ctx context.Context, n *models.Notification) error {
	s.logger.Info("sms notification dispatched",
		"receiver_id", n.ReceiverID,
		"type", n.Type)
	return nil
}

// PushStrategy announces the notification on the receiver's pub/sub channel
// without persisting it, for transient push style delivery.
type PushStrategy struct {
	rdb    *redis.Client
	logger *observability.Logger
}

func NewPushStrategy(rdb *redis.Client, logger *observability.Logger) *PushStrategy {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &PushStrategy{rdb: rdb, logger: logger}
}

func (s *PushStrategy) Type() StrategyType { return StrategyPush }

func (s *PushStrategy) Send(ctx context.Context, n *models.Notification) error {
	if s.rdb == nil {
		s.logger.Info("push notification dispatched",
			"receiver_id", n.ReceiverID,
			"type", n.Type)
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, SiteChannel(n.ReceiverID), payload).Err()
}
