// Package projection holds consumer side state rebuilt from the change feed.
// State only changes by applying fetched records; nothing here talks to the
// network.
package projection

import (
	"sync"

	"support-chat/domain/chat"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// SessionView is the local copy of one session and its transcript.
type SessionView struct {
	mu       sync.RWMutex
	session  chat.Session
	loaded   bool
	messages []chat.Message
	index    map[uuid.UUID]int
}

func NewSessionView() *SessionView {
	return &SessionView{index: make(map[uuid.UUID]int)}
}

// Load replaces the whole view, used on first display and after a poll.
func (v *SessionView) Load(session chat.Session, messages []chat.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.session = session
	v.loaded = true
	v.messages = append([]chat.Message(nil), messages...)
	chat.SortMessages(v.messages)
	v.reindex()
}

// ApplySession replaces the session unless the view already holds a newer
// revision. It reports whether the view changed.
func (v *SessionView) ApplySession(session chat.Session) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loaded && v.session.ID == session.ID && session.Revision < v.session.Revision {
		return false
	}
	v.session = session
	v.loaded = true
	return true
}

// ApplyMessage inserts the message at its transcript position, or replaces
// the copy already held. Messages of another session are ignored.
func (v *SessionView) ApplyMessage(msg chat.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loaded && msg.SessionID != v.session.ID {
		return false
	}
	if i, ok := v.index[msg.ID]; ok {
		v.messages[i] = msg
		return true
	}
	v.messages = append(v.messages, msg)
	chat.SortMessages(v.messages)
	v.reindex()
	v.session.Touch(msg.CreatedAt)
	return true
}

// MarkRead flips the read flag of what a reader of the given kind
// acknowledges and returns how many flags moved.
func (v *SessionView) MarkRead(reader chat.SenderKind) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	readable := reader.ReadableBy()
	flipped := 0
	for i := range v.messages {
		if !v.messages[i].IsRead && lo.Contains(readable, v.messages[i].Sender) {
			v.messages[i].IsRead = true
			flipped++
		}
	}
	return flipped
}

// Unread counts what a reader of the given kind has not acknowledged.
func (v *SessionView) Unread(reader chat.SenderKind) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	readable := reader.ReadableBy()
	return lo.CountBy(v.messages, func(m chat.Message) bool {
		return !m.IsRead && lo.Contains(readable, m.Sender)
	})
}

func (v *SessionView) Session() chat.Session {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session
}

// Messages returns a copy in transcript order.
func (v *SessionView) Messages() []chat.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]chat.Message(nil), v.messages...)
}

func (v *SessionView) reindex() {
	clear(v.index)
	for i, m := range v.messages {
		v.index[m.ID] = i
	}
}
