package chat

import (
	"time"

	"github.com/google/uuid"
)

// Session is a bounded support conversation.
// A session with a UserID was opened by an authenticated user, otherwise by a guest.
type Session struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         *string   `json:"email,omitempty"`
	UserID        *string   `json:"user_id,omitempty"`
	RestaurantID  *string   `json:"restaurant_id,omitempty"`
	Topic         string    `json:"topic"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Revision      uint64    `json:"revision"`
}

type Origin string

const (
	OriginGuest         Origin = "guest"
	OriginAuthenticated Origin = "authenticated"
)

func (s Session) Origin() Origin {
	if s.UserID != nil && *s.UserID != "" {
		return OriginAuthenticated
	}
	return OriginGuest
}

// Touch moves LastMessageAt forward, never backward.
func (s *Session) Touch(at time.Time) {
	if at.After(s.LastMessageAt) {
		s.LastMessageAt = at
	}
}

// SessionFilter narrows ListSessions. Nil fields match everything.
type SessionFilter struct {
	Status *Status
	UserID *string
}

func (f SessionFilter) Match(s Session) bool {
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	if f.UserID != nil && (s.UserID == nil || *s.UserID != *f.UserID) {
		return false
	}
	return true
}

// Stats counts sessions per status.
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Resolved int `json:"resolved"`
	Closed   int `json:"closed"`
}

func (s *Stats) Add(status Status) {
	s.AddCount(status, 1)
}

func (s *Stats) AddCount(status Status, n int) {
	s.Total += n
	switch status {
	case StatusActive:
		s.Active += n
	case StatusResolved:
		s.Resolved += n
	case StatusClosed:
		s.Closed += n
	}
}

// SortSessions orders by most recent activity first.
func SortSessions(sessions []Session) {
	sortSlice(sessions, func(a, b Session) bool {
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
