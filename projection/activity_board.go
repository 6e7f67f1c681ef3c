package projection

import (
	"sync"

	"support-chat/domain/chat"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ActivityBoard is the admin list. It is reloaded in full on every signal of
// the sessions feed; Apply covers the single row refreshed in between.
type ActivityBoard struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]chat.Activity
}

func NewActivityBoard() *ActivityBoard {
	return &ActivityBoard{rows: make(map[uuid.UUID]chat.Activity)}
}

// Replace swaps the whole board.
func (b *ActivityBoard) Replace(rows []chat.Activity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = lo.SliceToMap(rows, func(a chat.Activity) (uuid.UUID, chat.Activity) {
		return a.ID, a
	})
}

// Apply upserts one row unless a newer revision is already shown.
func (b *ActivityBoard) Apply(row chat.Activity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.rows[row.ID]; ok && row.Revision < current.Revision {
		return false
	}
	b.rows[row.ID] = row
	return true
}

// Rows lists the board most recently active first, optionally narrowed to
// one status.
func (b *ActivityBoard) Rows(status *chat.Status) []chat.Activity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows := lo.Filter(lo.Values(b.rows), func(a chat.Activity, _ int) bool {
		return status == nil || a.Status == *status
	})
	sessions := lo.Map(rows, func(a chat.Activity, _ int) chat.Session { return a.Session })
	chat.SortSessions(sessions)
	byID := lo.KeyBy(rows, func(a chat.Activity) uuid.UUID { return a.ID })
	return lo.Map(sessions, func(s chat.Session, _ int) chat.Activity { return byID[s.ID] })
}

// TotalUnread is the badge shown next to the board title.
func (b *ActivityBoard) TotalUnread() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.SumBy(lo.Values(b.rows), func(a chat.Activity) int { return a.Unread })
}

func (b *ActivityBoard) Stats() chat.Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var stats chat.Stats
	for _, row := range b.rows {
		stats.Add(row.Status)
	}
	return stats
}
