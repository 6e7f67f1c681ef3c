// Package client talks to the chat server over HTTP and WebSocket and runs
// the consumer loops of the customer widget and the admin console.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/presence"
	"support-chat/domain/search"
	"support-chat/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// APIError is a non 2xx answer. It unwraps to the matching sentinel of the
// errors package so callers can keep using errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

// known is ordered from the most specific message to the most generic.
var known = []error{
	errors.ErrEmptyMessage, errors.ErrContentTooLong, errors.ErrInvalidSender,
	errors.ErrInvalidStatus, errors.ErrInvalidTopic, errors.ErrInvalidSignal,
	errors.ErrSessionNotActive, errors.ErrInvalidTransition, errors.ErrStaleSession, errors.ErrConstraint,
	errors.ErrSessionNotFound, errors.ErrMessageNotFound, errors.ErrLeaseNotFound,
	errors.ErrForbiddenActor, errors.ErrUnauthenticated,
	errors.ErrTimeout, errors.ErrUnavailable,
}

func (e *APIError) Unwrap() error {
	if sentinel, ok := lo.Find(known, func(s error) bool {
		return strings.Contains(e.Message, s.Error())
	}); ok {
		return sentinel
	}
	switch e.Status {
	case http.StatusBadRequest:
		return errors.ErrValidation
	case http.StatusUnauthorized:
		return errors.ErrUnauthenticated
	case http.StatusForbidden:
		return errors.ErrForbiddenActor
	case http.StatusServiceUnavailable:
		return errors.ErrUnavailable
	}
	return nil
}

type Client struct {
	baseURL    *url.URL
	token      string
	http       *http.Client
	maxRetries uint64
	log        *slog.Logger
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid server url %q", errors.ErrValidation, cfg.ServerURL)
	}
	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		maxRetries: cfg.MaxRetries,
		log:        log,
	}, nil
}

// WithToken returns a copy acting as another caller.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

type CreatedSession struct {
	SessionID string       `json:"session_id"`
	Session   chat.Session `json:"session"`
	Message   chat.Message `json:"message"`
}

func (c *Client) CreateSession(ctx context.Context, cmd chat.CreateSessionCommand) (CreatedSession, error) {
	var out CreatedSession
	err := c.do(ctx, http.MethodPost, "/api/sessions", nil, cmd, &out)
	return out, err
}

// Board lists sessions with their unread badge; status may be nil.
func (c *Client) Board(ctx context.Context, status *chat.Status) ([]chat.Activity, error) {
	query := url.Values{}
	if status != nil {
		query.Set("status", status.String())
	}
	var out []chat.Activity
	err := c.do(ctx, http.MethodGet, "/api/sessions", query, nil, &out)
	return out, err
}

func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (chat.Session, error) {
	var out chat.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+id.String(), nil, nil, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, id uuid.UUID) ([]chat.Message, error) {
	var out []chat.Message
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+id.String()+"/messages", nil, nil, &out)
	return out, err
}

func (c *Client) Send(ctx context.Context, id uuid.UUID, content string) (chat.Message, error) {
	var out chat.Message
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id.String()+"/messages", nil,
		map[string]string{"content": content}, &out)
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, id uuid.UUID) (int, error) {
	var out map[string]int
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id.String()+"/read", nil, nil, &out)
	return out["marked"], err
}

func (c *Client) Unread(ctx context.Context, id uuid.UUID) (int, error) {
	var out map[string]int
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+id.String()+"/unread", nil, nil, &out)
	return out["unread"], err
}

type StatusChange struct {
	Session chat.Session  `json:"session"`
	Notice  *chat.Message `json:"notice,omitempty"`
}

// ChangeStatus moves the session; expectedRevision may be nil.
func (c *Client) ChangeStatus(ctx context.Context, id uuid.UUID, status chat.Status, expectedRevision *uint64) (StatusChange, error) {
	var out StatusChange
	body := map[string]any{"status": status}
	if expectedRevision != nil {
		body["expected_revision"] = *expectedRevision
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id.String()+"/status", nil, body, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (chat.Stats, error) {
	var out chat.Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &out)
	return out, err
}

func (c *Client) Heartbeat(ctx context.Context, deviceInfo string) (presence.Status, error) {
	var out presence.Status
	err := c.do(ctx, http.MethodPost, "/api/presence/heartbeat", nil, map[string]string{"device_info": deviceInfo}, &out)
	return out, err
}

func (c *Client) Signal(ctx context.Context, signal presence.Signal, deviceInfo string) (presence.Status, error) {
	var out presence.Status
	err := c.do(ctx, http.MethodPost, "/api/presence/signal", nil,
		map[string]string{"signal": string(signal), "device_info": deviceInfo}, &out)
	return out, err
}

type OnlineUser struct {
	UserID       string    `json:"user_id"`
	LastActivity time.Time `json:"last_activity"`
}

func (c *Client) Online(ctx context.Context, limit int) ([]OnlineUser, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []OnlineUser
	err := c.do(ctx, http.MethodGet, "/api/presence/online", query, nil, &out)
	return out, err
}

func (c *Client) UserStatus(ctx context.Context, userID string) (presence.Status, error) {
	var out presence.Status
	err := c.do(ctx, http.MethodGet, "/api/presence/"+url.PathEscape(userID), nil, nil, &out)
	return out, err
}

// Search sends the raw console input, inline flags included.
func (c *Client) Search(ctx context.Context, input string) (search.Result, error) {
	var out search.Result
	err := c.do(ctx, http.MethodGet, "/api/search", url.Values{"q": {input}}, nil, &out)
	return out, err
}

// do retries reads on transient failures only. Writes are sent once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	target := c.baseURL.JoinPath(path)
	target.RawQuery = query.Encode()

	attempt := func() error {
		err := c.roundTrip(ctx, method, target.String(), payload, out)
		if err != nil && !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if method == http.MethodGet {
		policy = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	}
	err := backoff.RetryNotify(attempt, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		c.log.Debug("Retrying request", "method", method, "path", path, "wait", wait, "error", err)
	})
	var permanent *backoff.PermanentError
	if stderrors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, target string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	r, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(r)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s answer: %w", target, err)
	}
	return nil
}
