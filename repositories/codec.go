package repositories

import (
	"fmt"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/presence"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Records are the on-disk shape of the domain types.
// Times are stored as UnixNano to keep sub-second precision.

type sessionRecord struct {
	ID            string  `cbor:"id"`
	Name          string  `cbor:"name"`
	Email         *string `cbor:"email,omitempty"`
	UserID        *string `cbor:"user_id,omitempty"`
	RestaurantID  *string `cbor:"restaurant_id,omitempty"`
	Topic         string  `cbor:"topic"`
	Status        string  `cbor:"status"`
	CreatedAt     int64   `cbor:"created_at"`
	LastMessageAt int64   `cbor:"last_message_at"`
	UpdatedAt     int64   `cbor:"updated_at"`
	Revision      uint64  `cbor:"revision"`
}

type messageRecord struct {
	ID        string  `cbor:"id"`
	Seq       uint64  `cbor:"seq"`
	SessionID string  `cbor:"session_id"`
	UserID    *string `cbor:"user_id,omitempty"`
	Sender    string  `cbor:"sender"`
	Content   string  `cbor:"content"`
	IsRead    bool    `cbor:"is_read"`
	CreatedAt int64   `cbor:"created_at"`
}

type leaseRecord struct {
	UserID     string `cbor:"user_id"`
	LastSeenAt int64  `cbor:"last_seen_at"`
	ExpiresAt  int64  `cbor:"expires_at"`
	DeviceInfo string `cbor:"device_info,omitempty"`
}

func encodeSession(s chat.Session) ([]byte, error) {
	return cbor.Marshal(sessionRecord{
		ID:            s.ID.String(),
		Name:          s.Name,
		Email:         s.Email,
		UserID:        s.UserID,
		RestaurantID:  s.RestaurantID,
		Topic:         s.Topic,
		Status:        string(s.Status),
		CreatedAt:     toNanos(s.CreatedAt),
		LastMessageAt: toNanos(s.LastMessageAt),
		UpdatedAt:     toNanos(s.UpdatedAt),
		Revision:      s.Revision,
	})
}

func decodeSession(b []byte) (chat.Session, error) {
	var r sessionRecord
	if err := cbor.Unmarshal(b, &r); err != nil {
		return chat.Session{}, fmt.Errorf("decode session: %w", err)
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return chat.Session{}, fmt.Errorf("decode session id: %w", err)
	}
	return chat.Session{
		ID:            id,
		Name:          r.Name,
		Email:         r.Email,
		UserID:        r.UserID,
		RestaurantID:  r.RestaurantID,
		Topic:         r.Topic,
		Status:        chat.Status(r.Status),
		CreatedAt:     fromNanos(r.CreatedAt),
		LastMessageAt: fromNanos(r.LastMessageAt),
		UpdatedAt:     fromNanos(r.UpdatedAt),
		Revision:      r.Revision,
	}, nil
}

func encodeMessage(m chat.Message) ([]byte, error) {
	return cbor.Marshal(messageRecord{
		ID:        m.ID.String(),
		Seq:       m.Seq,
		SessionID: m.SessionID.String(),
		UserID:    m.UserID,
		Sender:    string(m.Sender),
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: toNanos(m.CreatedAt),
	})
}

func decodeMessage(b []byte) (chat.Message, error) {
	var r messageRecord
	if err := cbor.Unmarshal(b, &r); err != nil {
		return chat.Message{}, fmt.Errorf("decode message: %w", err)
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("decode message id: %w", err)
	}
	sessionID, err := uuid.Parse(r.SessionID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("decode message session id: %w", err)
	}
	return chat.Message{
		ID:        id,
		Seq:       r.Seq,
		SessionID: sessionID,
		UserID:    r.UserID,
		Sender:    chat.SenderKind(r.Sender),
		Content:   r.Content,
		IsRead:    r.IsRead,
		CreatedAt: fromNanos(r.CreatedAt),
	}, nil
}

func encodeLease(l presence.Lease) ([]byte, error) {
	return cbor.Marshal(leaseRecord{
		UserID:     l.UserID,
		LastSeenAt: toNanos(l.LastSeenAt),
		ExpiresAt:  toNanos(l.ExpiresAt),
		DeviceInfo: l.DeviceInfo,
	})
}

func decodeLease(b []byte) (presence.Lease, error) {
	var r leaseRecord
	if err := cbor.Unmarshal(b, &r); err != nil {
		return presence.Lease{}, fmt.Errorf("decode lease: %w", err)
	}
	return presence.Lease{
		UserID:     r.UserID,
		LastSeenAt: fromNanos(r.LastSeenAt),
		ExpiresAt:  fromNanos(r.ExpiresAt),
		DeviceInfo: r.DeviceInfo,
	}, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
