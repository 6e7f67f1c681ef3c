package projection

import (
	"testing"
	"time"

	"support-chat/domain/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)

func message(sessionID uuid.UUID, sender chat.SenderKind, content string, at time.Time, seq uint64) chat.Message {
	return chat.Message{ID: uuid.New(), Seq: seq, SessionID: sessionID, Sender: sender, Content: content, CreatedAt: at}
}

func TestSessionView_Apply(t *testing.T) {
	req := require.New(t)
	session := chat.Session{ID: uuid.New(), Name: "Ivan", Topic: "Delivery", Status: chat.StatusActive, LastMessageAt: t0}
	first := message(session.ID, chat.SenderCustomer, "Where is my order?", t0, 1)

	view := NewSessionView()
	view.Load(session, []chat.Message{first})
	req.Equal(1, view.Unread(chat.SenderOperator))
	req.Zero(view.Unread(chat.SenderCustomer))

	reply := message(session.ID, chat.SenderOperator, "On its way", t0.Add(2*time.Second), 3)
	late := message(session.ID, chat.SenderCustomer, "Thanks", t0.Add(time.Second), 2)
	req.True(view.ApplyMessage(reply))
	req.True(view.ApplyMessage(late))
	req.True(view.ApplyMessage(reply))
	req.False(view.ApplyMessage(message(uuid.New(), chat.SenderCustomer, "elsewhere", t0, 9)))

	got := view.Messages()
	req.Len(got, 3)
	req.Equal([]string{"Where is my order?", "Thanks", "On its way"},
		[]string{got[0].Content, got[1].Content, got[2].Content})
	req.Equal(t0.Add(2*time.Second), view.Session().LastMessageAt)

	req.Equal(2, view.MarkRead(chat.SenderOperator))
	req.Zero(view.MarkRead(chat.SenderOperator))
	req.Zero(view.Unread(chat.SenderManager))
	req.Equal(1, view.Unread(chat.SenderCustomer))

	resolved := session
	resolved.Status = chat.StatusResolved
	resolved.Revision = 1
	req.True(view.ApplySession(resolved))
	req.False(view.ApplySession(session))
	req.Equal(chat.StatusResolved, view.Session().Status)
}

func TestActivityBoard(t *testing.T) {
	req := require.New(t)
	older := chat.Activity{Session: chat.Session{ID: uuid.New(), Status: chat.StatusActive, LastMessageAt: t0}, Unread: 2}
	newer := chat.Activity{Session: chat.Session{ID: uuid.New(), Status: chat.StatusResolved, LastMessageAt: t0.Add(time.Minute)}, Unread: 1}

	board := NewActivityBoard()
	board.Replace([]chat.Activity{older, newer})

	rows := board.Rows(nil)
	req.Len(rows, 2)
	req.Equal(newer.ID, rows[0].ID)
	req.Equal(3, board.TotalUnread())
	req.Equal(chat.Stats{Total: 2, Active: 1, Resolved: 1}, board.Stats())

	active := chat.StatusActive
	req.Len(board.Rows(&active), 1)

	bumped := older
	bumped.LastMessageAt = t0.Add(time.Hour)
	bumped.Revision = 2
	bumped.Unread = 3
	req.True(board.Apply(bumped))
	req.False(board.Apply(older))
	req.Equal(older.ID, board.Rows(nil)[0].ID)
	req.Equal(4, board.TotalUnread())

	board.Replace(nil)
	req.Empty(board.Rows(nil))
}
