//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/event"
	"support-chat/domain/presence"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself, the supervisor restarts it on panic.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging during supervision.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes change events out of the request path (search index...).
type EventSink interface {
	Consume(ctx context.Context, e event.ChangeEvent) error
}

// IPublisher pushes a change event to every topic it belongs to.
type IPublisher interface {
	Publish(ctx context.Context, e event.ChangeEvent) error
}

// ISubscriber hands out cancellable subscriptions on a topic.
type ISubscriber interface {
	Subscribe(topic string) (Subscription, error)
}

// Subscription must be closed by its owner on teardown.
type Subscription interface {
	Events() <-chan event.ChangeEvent
	Close()
}

// ISessionRepository persists sessions.
// CreateSession writes the session and its first message in one atomic step.
// UpdateStatus validates the transition against the stored status and, when
// ExpectedRevision is set, compares revisions before writing.
type ISessionRepository interface {
	CreateSession(ctx context.Context, session chat.Session, first chat.Message) (chat.Session, chat.Message, error)
	GetSession(ctx context.Context, id uuid.UUID) (chat.Session, error)
	ListSessions(ctx context.Context, filter chat.SessionFilter) ([]chat.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update chat.StatusUpdate) (chat.Session, chat.Transition, error)
	Stats(ctx context.Context) (chat.Stats, error)
}

// IMessageRepository persists messages.
// AppendMessage is idempotent on message ID and moves the session's
// last_message_at forward in the same atomic write. With requireActive the
// session status is checked in that write too.
type IMessageRepository interface {
	AppendMessage(ctx context.Context, msg chat.Message, requireActive bool) (chat.Message, chat.Session, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]chat.Message, error)
	GetMessage(ctx context.Context, sessionID, id uuid.UUID) (chat.Message, error)
	MarkRead(ctx context.Context, sessionID uuid.UUID, senders []chat.SenderKind) (int, error)
	CountUnread(ctx context.Context, sessionID uuid.UUID, senders []chat.SenderKind) (int, error)
}

// ILeaseRepository persists presence leases.
type ILeaseRepository interface {
	PutLease(ctx context.Context, lease presence.Lease) error
	GetLease(ctx context.Context, userID string) (presence.Lease, error)
	ListLeases(ctx context.Context, activeAt time.Time, limit int) ([]presence.Lease, error)
}

// IContentFilter masks censored words and reports which ones were hit.
type IContentFilter interface {
	Censor(content string) (string, []string)
}

// IIndexer feeds transcript search.
type IIndexer interface {
	Index(ctx context.Context, msg chat.Message) error
}
