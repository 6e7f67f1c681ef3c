package event

import (
	"fmt"
	"strings"
	"time"

	"support-chat/errors"

	"github.com/google/uuid"
)

// Entity is the kind of record a change event refers to.
type Entity string

const (
	EntitySession Entity = "session"
	EntityMessage Entity = "message"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
)

// TopicSessions carries every change on every session, for list views.
const TopicSessions = "sessions"

const sessionTopicPrefix = "session:"

// SessionTopic is the fine-grained topic of one session.
func SessionTopic(id uuid.UUID) string {
	return sessionTopicPrefix + id.String()
}

// ValidateTopic accepts "sessions" and "session:<uuid>".
func ValidateTopic(topic string) error {
	if topic == TopicSessions {
		return nil
	}
	raw, ok := strings.CutPrefix(topic, sessionTopicPrefix)
	if !ok {
		return errors.ErrInvalidTopic
	}
	if _, err := uuid.Parse(raw); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidTopic, err)
	}
	return nil
}

// ChangeEvent is emitted after a successful write.
// It only identifies the row; consumers re-fetch what they display.
type ChangeEvent struct {
	Entity    Entity    `json:"entity"`
	Kind      Kind      `json:"kind"`
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	At        time.Time `json:"at"`
}

// Topics lists where the event is published.
func (e ChangeEvent) Topics() []string {
	return []string{TopicSessions, SessionTopic(e.SessionID)}
}

func SessionInserted(id uuid.UUID, at time.Time) ChangeEvent {
	return ChangeEvent{Entity: EntitySession, Kind: KindInsert, ID: id, SessionID: id, At: at}
}

func SessionUpdated(id uuid.UUID, at time.Time) ChangeEvent {
	return ChangeEvent{Entity: EntitySession, Kind: KindUpdate, ID: id, SessionID: id, At: at}
}

func MessageInserted(id, sessionID uuid.UUID, at time.Time) ChangeEvent {
	return ChangeEvent{Entity: EntityMessage, Kind: KindInsert, ID: id, SessionID: sessionID, At: at}
}

// MessagesUpdated signals read flags flipped in bulk; ID is the session.
func MessagesUpdated(sessionID uuid.UUID, at time.Time) ChangeEvent {
	return ChangeEvent{Entity: EntityMessage, Kind: KindUpdate, ID: sessionID, SessionID: sessionID, At: at}
}

// TopicLoad is a sample of one feed topic. Buffered is the fullest
// subscriber buffer, out of Capacity.
type TopicLoad struct {
	Topic       string
	Subscribers int
	Buffered    int
	Capacity    int
}

// Saturation is Buffered over Capacity, between 0 and 1.
func (l TopicLoad) Saturation() float64 {
	if l.Capacity == 0 {
		return 0
	}
	return float64(l.Buffered) / float64(l.Capacity)
}
