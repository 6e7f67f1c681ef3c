package chat

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Message is an entry of a session transcript.
// Seq is assigned by the store and breaks ties between equal timestamps.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	Seq       uint64     `json:"seq"`
	SessionID uuid.UUID  `json:"session_id"`
	UserID    *string    `json:"user_id,omitempty"`
	Sender    SenderKind `json:"sender_type"`
	Content   string     `json:"content"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

// Before is the transcript order: created_at, then seq.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

func SortMessages(messages []Message) {
	sortSlice(messages, Message.Before)
}

// NewSystemMessage builds the notice recorded for a transition.
func NewSystemMessage(sessionID uuid.UUID, t Transition, at time.Time) Message {
	return Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Sender:    SenderSystem,
		Content:   t.Notice,
		CreatedAt: at,
	}
}

func sortSlice[T any](items []T, less func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j])
	})
}
