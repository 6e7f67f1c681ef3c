package postgres

import (
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/presence"

	"github.com/google/uuid"
)

// Timestamps are owned by the services, GORM must not fill them.

type SessionModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name          string    `gorm:"not null"`
	Email         *string
	UserID        *string `gorm:"index"`
	RestaurantID  *string
	Topic         string    `gorm:"not null"`
	Status        string    `gorm:"type:varchar(16);not null;index"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false;not null"`
	LastMessageAt time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false;not null"`
	Revision      uint64    `gorm:"not null;default:0"`
}

func (SessionModel) TableName() string {
	return "chat_sessions"
}

// MessageModel uses an auto increment seq as primary key: it is the
// insertion order that breaks created_at ties.
type MessageModel struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	ID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_messages_session_created,priority:1"`
	UserID     *string
	SenderType string    `gorm:"type:varchar(16);not null"`
	Content    string    `gorm:"type:text;not null"`
	IsRead     bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false;not null;index:idx_chat_messages_session_created,priority:2"`
}

func (MessageModel) TableName() string {
	return "chat_messages"
}

type PresenceModel struct {
	UserID     string    `gorm:"primaryKey"`
	LastSeenAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	DeviceInfo string
}

func (PresenceModel) TableName() string {
	return "user_presence"
}

func fromSession(s chat.Session) SessionModel {
	return SessionModel{
		ID:            s.ID,
		Name:          s.Name,
		Email:         s.Email,
		UserID:        s.UserID,
		RestaurantID:  s.RestaurantID,
		Topic:         s.Topic,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		LastMessageAt: s.LastMessageAt,
		UpdatedAt:     s.UpdatedAt,
		Revision:      s.Revision,
	}
}

func (m SessionModel) toDomain() chat.Session {
	return chat.Session{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		UserID:        m.UserID,
		RestaurantID:  m.RestaurantID,
		Topic:         m.Topic,
		Status:        chat.Status(m.Status),
		CreatedAt:     m.CreatedAt.UTC(),
		LastMessageAt: m.LastMessageAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
		Revision:      m.Revision,
	}
}

// fromMessage leaves Seq to the database.
func fromMessage(m chat.Message) MessageModel {
	return MessageModel{
		ID:         m.ID,
		SessionID:  m.SessionID,
		UserID:     m.UserID,
		SenderType: string(m.Sender),
		Content:    m.Content,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
	}
}

func (m MessageModel) toDomain() chat.Message {
	return chat.Message{
		ID:        m.ID,
		Seq:       m.Seq,
		SessionID: m.SessionID,
		UserID:    m.UserID,
		Sender:    chat.SenderKind(m.SenderType),
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func fromLease(l presence.Lease) PresenceModel {
	return PresenceModel{
		UserID:     l.UserID,
		LastSeenAt: l.LastSeenAt,
		ExpiresAt:  l.ExpiresAt,
		DeviceInfo: l.DeviceInfo,
	}
}

func (m PresenceModel) toDomain() presence.Lease {
	return presence.Lease{
		UserID:     m.UserID,
		LastSeenAt: m.LastSeenAt.UTC(),
		ExpiresAt:  m.ExpiresAt.UTC(),
		DeviceInfo: m.DeviceInfo,
	}
}
