package postgres

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/presence"
	"support-chat/errors"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)

// openTestDB runs the gateway against in-memory SQLite; one connection keeps
// every statement on the same database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	config := gormConfig("test")
	config.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open(":memory:"), config)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func createSession(t *testing.T, repo SessionRepository, name string, at time.Time) chat.Session {
	t.Helper()
	session := chat.Session{ID: uuid.New(), Name: name, Topic: "Delivery", Status: chat.StatusActive, CreatedAt: at, UpdatedAt: at}
	first := chat.Message{ID: uuid.New(), Sender: chat.SenderCustomer, Content: "Where is my order?", CreatedAt: at}
	created, msg, err := repo.CreateSession(context.Background(), session, first)
	require.NoError(t, err)
	require.NotZero(t, msg.Seq)
	return created
}

func TestSessionRepository(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()
	sessions := NewSessionRepository(db, slog.Default())

	ivan := createSession(t, sessions, "Ivan", t0)
	olga := createSession(t, sessions, "Olga", t0.Add(time.Hour))

	fetched, err := sessions.GetSession(ctx, ivan.ID)
	req.NoError(err)
	req.Equal("Ivan", fetched.Name)
	req.Equal(chat.StatusActive, fetched.Status)
	req.True(fetched.LastMessageAt.Equal(t0))

	_, err = sessions.GetSession(ctx, uuid.New())
	req.ErrorIs(err, errors.ErrSessionNotFound)

	_, _, err = sessions.CreateSession(ctx, ivan, chat.Message{ID: uuid.New(), CreatedAt: t0})
	req.ErrorIs(err, errors.ErrSessionExists)

	resolved, transition, err := sessions.UpdateStatus(ctx, ivan.ID, chat.StatusUpdate{To: chat.StatusResolved, At: t0.Add(2 * time.Hour)})
	req.NoError(err)
	req.Equal(chat.NoticeResolved, transition.Notice)
	req.Equal(uint64(1), resolved.Revision)

	_, _, err = sessions.UpdateStatus(ctx, ivan.ID, chat.StatusUpdate{To: chat.StatusClosed, At: t0.Add(2 * time.Hour)})
	req.ErrorIs(err, errors.ErrInvalidTransition)
	_, _, err = sessions.UpdateStatus(ctx, ivan.ID, chat.StatusUpdate{To: chat.StatusActive, At: t0.Add(2 * time.Hour), ExpectedRevision: lo.ToPtr(uint64(7))})
	req.ErrorIs(err, errors.ErrStaleSession)

	all, err := sessions.ListSessions(ctx, chat.SessionFilter{})
	req.NoError(err)
	req.Equal([]uuid.UUID{olga.ID, ivan.ID}, lo.Map(all, func(s chat.Session, _ int) uuid.UUID { return s.ID }))

	onlyResolved, err := sessions.ListSessions(ctx, chat.SessionFilter{Status: lo.ToPtr(chat.StatusResolved)})
	req.NoError(err)
	req.Len(onlyResolved, 1)
	req.Equal(ivan.ID, onlyResolved[0].ID)

	stats, err := sessions.Stats(ctx)
	req.NoError(err)
	req.Equal(chat.Stats{Total: 2, Active: 1, Resolved: 1}, stats)
}

func TestClassify_ConstraintViolationIsNotRetryable(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	sessions := NewSessionRepository(db, slog.Default())
	ivan := createSession(t, sessions, "Ivan", t0)

	duplicate := fromSession(ivan)
	err := classify(db.Create(&duplicate).Error)
	req.ErrorIs(err, errors.ErrConstraint)
	req.ErrorIs(err, gorm.ErrDuplicatedKey)
	req.False(errors.IsRetryable(err))
	req.Equal(http.StatusConflict, errors.MapToHTTPStatus(err))

	req.ErrorIs(classify(gorm.ErrForeignKeyViolated), errors.ErrConstraint)
	req.ErrorIs(classify(stderrors.New("connection reset")), errors.ErrUnavailable)
}

func TestMessageRepository(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()
	sessions := NewSessionRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	session := createSession(t, sessions, "Ivan", t0)

	// same instant, insertion order wins
	for _, content := range []string{"one", "two"} {
		_, _, err := messages.AppendMessage(ctx, chat.Message{ID: uuid.New(), SessionID: session.ID, Sender: chat.SenderOperator, Content: content, CreatedAt: t0.Add(time.Second)}, false)
		req.NoError(err)
	}
	late := chat.Message{ID: uuid.New(), SessionID: session.ID, Sender: chat.SenderCustomer, Content: "late", CreatedAt: t0.Add(-time.Second)}
	_, touched, err := messages.AppendMessage(ctx, late, true)
	req.NoError(err)
	req.True(touched.LastMessageAt.Equal(t0.Add(time.Second)))

	listed, err := messages.ListMessages(ctx, session.ID)
	req.NoError(err)
	req.Equal([]string{"late", "Where is my order?", "one", "two"}, lo.Map(listed, func(m chat.Message, _ int) string { return m.Content }))

	// replaying an id does not duplicate
	_, _, err = messages.AppendMessage(ctx, late, true)
	req.NoError(err)
	listed, err = messages.ListMessages(ctx, session.ID)
	req.NoError(err)
	req.Len(listed, 4)

	got, err := messages.GetMessage(ctx, session.ID, late.ID)
	req.NoError(err)
	req.Equal("late", got.Content)

	staffReads := chat.SenderOperator.ReadableBy()
	unread, err := messages.CountUnread(ctx, session.ID, staffReads)
	req.NoError(err)
	req.Equal(2, unread)
	flipped, err := messages.MarkRead(ctx, session.ID, staffReads)
	req.NoError(err)
	req.Equal(2, flipped)
	flipped, err = messages.MarkRead(ctx, session.ID, staffReads)
	req.NoError(err)
	req.Zero(flipped)
	unread, err = messages.CountUnread(ctx, session.ID, staffReads)
	req.NoError(err)
	req.Zero(unread)
}

func TestMessageRepository_RejectsCustomerOnInactiveSession(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()
	sessions := NewSessionRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	session := createSession(t, sessions, "Ivan", t0)

	closed, _, err := sessions.UpdateStatus(ctx, session.ID, chat.StatusUpdate{To: chat.StatusClosed, At: t0.Add(time.Minute)})
	req.NoError(err)

	_, _, err = messages.AppendMessage(ctx, chat.Message{ID: uuid.New(), SessionID: session.ID, Sender: chat.SenderCustomer, Content: "hello?", CreatedAt: t0.Add(2 * time.Minute)}, true)
	req.ErrorIs(err, errors.ErrSessionNotActive)

	listed, err := messages.ListMessages(ctx, session.ID)
	req.NoError(err)
	req.Len(listed, 1)
	after, err := sessions.GetSession(ctx, session.ID)
	req.NoError(err)
	req.True(after.LastMessageAt.Equal(closed.LastMessageAt))

	_, _, err = messages.AppendMessage(ctx, chat.Message{ID: uuid.New(), SessionID: uuid.New(), Sender: chat.SenderCustomer, Content: "x", CreatedAt: t0}, true)
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func TestLeaseRepository(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()
	leases := NewLeaseRepository(db, slog.Default())
	window := time.Minute

	req.NoError(leases.PutLease(ctx, presence.Lease{UserID: "op-1"}.Renew(t0, window)))
	req.NoError(leases.PutLease(ctx, presence.Lease{UserID: "op-2"}.Renew(t0.Add(10*time.Second), window)))
	// upsert on the same user
	req.NoError(leases.PutLease(ctx, presence.Lease{UserID: "op-1", DeviceInfo: "windows"}.Renew(t0.Add(20*time.Second), window)))

	lease, err := leases.GetLease(ctx, "op-1")
	req.NoError(err)
	req.Equal("windows", lease.DeviceInfo)
	req.True(lease.LastSeenAt.Equal(t0.Add(20 * time.Second)))

	roster, err := leases.ListLeases(ctx, t0.Add(30*time.Second), 10)
	req.NoError(err)
	req.Equal([]string{"op-1", "op-2"}, lo.Map(roster, func(l presence.Lease, _ int) string { return l.UserID }))

	roster, err = leases.ListLeases(ctx, t0.Add(75*time.Second), 10)
	req.NoError(err)
	req.Equal([]string{"op-1"}, lo.Map(roster, func(l presence.Lease, _ int) string { return l.UserID }))

	_, err = leases.GetLease(ctx, "nobody")
	req.ErrorIs(err, errors.ErrLeaseNotFound)
}
