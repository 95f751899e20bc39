package realtime

import (
	"context"
	"runtime/debug"

	"tidepool/internal/notify"
	"tidepool/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Notifier bridges Redis pub/sub into the hub. Delivery strategies publish
// on per-user channels; each server instance subscribes to the pattern and
// fans messages into its local sockets.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends a raw payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, notify.SiteChannel(userID), payload).Err()
}

// StartSubscriber subscribes to the per-user notification pattern and calls
// onMessage for each incoming message until ctx ends. A panicking callback is
// contained so one bad payload cannot kill the subscription loop.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "notify:user:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("notification subscriber panic",
								"panic", r,
								"stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
