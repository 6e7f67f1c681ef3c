package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"support-chat/contract"
	"support-chat/domain/event"
	"support-chat/errors"

	"github.com/redis/go-redis/v9"
)

const DefaultFeedChannel = "support-chat:feed"

// Publisher sends change events to every instance through one pub/sub channel.
// Each instance runs a RelayWorker that republishes them locally, this one included.
type Publisher struct {
	client  *redis.Client
	channel string
}

var _ contract.IPublisher = Publisher{}

func NewPublisher(client *redis.Client, channel string) Publisher {
	return Publisher{client: client, channel: channel}
}

func (p Publisher) Publish(ctx context.Context, e event.ChangeEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err = p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}
	return nil
}

// RelayWorker copies the shared channel into the local broker.
type RelayWorker struct {
	client  *redis.Client
	channel string
	local   contract.IPublisher
	log     *slog.Logger
}

func NewRelayWorker(client *redis.Client, channel string, local contract.IPublisher, log *slog.Logger) *RelayWorker {
	return &RelayWorker{client: client, channel: channel, local: local, log: log}
}

// Run returns nil when ctx ends and ErrSubscriptionFailed when the channel
// closes under it, which lets the supervisor resubscribe.
func (w *RelayWorker) Run(ctx context.Context) error {
	pubsub := w.client.Subscribe(ctx, w.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err)
	}
	w.log.Info("Relaying change feed from Redis", "channel", w.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.ErrSubscriptionFailed
			}
			var e event.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				w.log.Warn("Malformed change event on feed channel", "error", err)
				continue
			}
			if err := w.local.Publish(ctx, e); err != nil {
				w.log.Warn("Local republish failed", "error", err)
			}
		}
	}
}
