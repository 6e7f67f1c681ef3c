package client

import (
	"context"
	"log/slog"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/event"
	"support-chat/projection"
)

// Console is the admin board. Every signal on the sessions feed triggers a
// full reload; the poll ticker is the backstop and, without a feed, the only
// source.
type Console struct {
	client   *Client
	board    *projection.ActivityBoard
	status   *chat.Status
	poll     time.Duration
	log      *slog.Logger
	onChange func(*projection.ActivityBoard)
}

func NewConsole(client *Client, status *chat.Status, poll time.Duration, log *slog.Logger) *Console {
	return &Console{
		client:   client,
		board:    projection.NewActivityBoard(),
		status:   status,
		poll:     poll,
		log:      log,
		onChange: func(*projection.ActivityBoard) {},
	}
}

func (c *Console) OnChange(fn func(*projection.ActivityBoard)) *Console {
	c.onChange = fn
	return c
}

func (c *Console) Board() *projection.ActivityBoard {
	return c.board
}

func (c *Console) Run(ctx context.Context) error {
	sub := c.subscribe(ctx)
	defer func() { closeSubscription(sub) }()

	c.refresh(ctx)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events(sub):
			if !ok {
				c.log.Warn("Sessions feed lost, polling only")
				sub = nil
				continue
			}
			c.refresh(ctx)
		case <-ticker.C:
			c.refresh(ctx)
			if sub == nil {
				sub = c.subscribe(ctx)
			}
		}
	}
}

func (c *Console) subscribe(ctx context.Context) *Subscription {
	sub, err := c.client.Subscribe(ctx, event.TopicSessions)
	if err != nil {
		c.log.Warn("Subscription failed, polling only", "topic", event.TopicSessions, "error", err)
		return nil
	}
	return sub
}

// refresh keeps the previous board when the reload fails.
func (c *Console) refresh(ctx context.Context) {
	rows, err := c.client.Board(ctx, c.status)
	if err != nil {
		c.log.Debug("Board reload failed", "error", err)
		return
	}
	c.board.Replace(rows)
	c.onChange(c.board)
}
