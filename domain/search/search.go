package search

import (
	"strconv"
	"strings"
	"time"

	"support-chat/domain/chat"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query is a transcript search request.
type Query struct {
	RawInput  string
	Terms     string
	SessionID *uuid.UUID
	Limit     int
}

// NewSearchQuery parses a console style input.
// Example: invoice refund --session 3f1c... --limit 5
// Unknown flags are dropped with their value.
func NewSearchQuery(input string) Query {
	query := Query{RawInput: input, Limit: DefaultLimit}

	parts := strings.Fields(input)
	var terms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			val := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "session":
				if id, err := uuid.Parse(val); err == nil {
					query.SessionID = &id
				}
			case "limit":
				if n, err := strconv.Atoi(val); err == nil {
					query.Limit = n
				}
			}
			i++
			continue
		}
		if !strings.HasPrefix(part, "/") {
			terms = append(terms, part)
		}
	}
	query.Terms = strings.Join(terms, " ")
	return query.Normalize()
}

// Normalize clamps the limit into [1, MaxLimit].
func (q Query) Normalize() Query {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	q.Terms = strings.TrimSpace(q.Terms)
	return q
}

// Hit is one matching message, best score first.
type Hit struct {
	MessageID uuid.UUID       `json:"message_id"`
	SessionID uuid.UUID       `json:"session_id"`
	Sender    chat.SenderKind `json:"sender_type"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	Score     float64         `json:"score"`
}

type Result struct {
	Hits  []Hit  `json:"hits"`
	Total uint64 `json:"total"`
}
