package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"support-chat/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

const DefaultMaxContentLength = 4000

// CreateSessionCommand opens a session with its first customer message.
type CreateSessionCommand struct {
	Name         string  `json:"name" validate:"required,max=200"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Topic        string  `json:"topic" validate:"required,max=200"`
	FirstMessage string  `json:"first_message"`
	UserID       *string `json:"user_id,omitempty" validate:"omitempty,max=128"`
	RestaurantID *string `json:"restaurant_id,omitempty" validate:"omitempty,max=128"`
}

func (c *CreateSessionCommand) Validate(maxContent int) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Topic = strings.TrimSpace(c.Topic)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrValidation, err)
	}
	content, err := NormalizeContent(c.FirstMessage, maxContent)
	if err != nil {
		return err
	}
	c.FirstMessage = content
	return nil
}

// SendMessageCommand posts into an existing session.
type SendMessageCommand struct {
	SessionID uuid.UUID
	Sender    SenderKind `validate:"required"`
	UserID    *string    `validate:"omitempty,max=128"`
	Content   string
}

func (c *SendMessageCommand) Validate(maxContent int) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrValidation, err)
	}
	if c.SessionID == uuid.Nil {
		return fmt.Errorf("%w: session id is required", errors.ErrValidation)
	}
	// system notices come from transitions only
	if !c.Sender.Valid() || c.Sender == SenderSystem {
		return errors.ErrInvalidSender
	}
	content, err := NormalizeContent(c.Content, maxContent)
	if err != nil {
		return err
	}
	c.Content = content
	return nil
}

// ChangeStatusCommand requests a lifecycle transition.
// ExpectedRevision turns the write into a compare-and-swap.
type ChangeStatusCommand struct {
	SessionID        uuid.UUID
	Status           Status
	Actor            SenderKind
	ExpectedRevision *uint64
}

func (c ChangeStatusCommand) Validate() error {
	if c.SessionID == uuid.Nil {
		return fmt.Errorf("%w: session id is required", errors.ErrValidation)
	}
	if !c.Status.Valid() {
		return errors.ErrInvalidStatus
	}
	if !c.Actor.IsStaff() {
		return errors.ErrForbiddenActor
	}
	return nil
}

// StatusUpdate is what the store applies atomically on the session row.
type StatusUpdate struct {
	To               Status
	ExpectedRevision *uint64
	At               time.Time
}

// NormalizeContent trims the text and enforces the length bound in runes.
func NormalizeContent(raw string, maxContent int) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", errors.ErrEmptyMessage
	}
	if maxContent > 0 && utf8.RuneCountInString(content) > maxContent {
		return "", errors.ErrContentTooLong
	}
	return content, nil
}
