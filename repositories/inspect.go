package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders raw badger entries for the debug inspector and chatctl.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Type, row.Detail = Describe(key, val)
	return row
}

// Describe decodes one entry into a short type tag and a readable line.
func Describe(key string, val []byte) (string, string) {
	switch {
	case strings.HasPrefix(key, sessionPrefix):
		s, err := decodeSession(val)
		if err != nil {
			return "SESSION", "Error: decode failed"
		}
		return "SESSION", fmt.Sprintf("%s | %s | %s | rev %d | last %s",
			s.Name, s.Topic, s.Status, s.Revision, s.LastMessageAt.Format(time.RFC3339))
	case strings.HasPrefix(key, msgIndexPrefix):
		return "INDEX", string(val)
	case strings.HasPrefix(key, messagePrefix):
		m, err := decodeMessage(val)
		if err != nil {
			return "MESSAGE", "Error: decode failed"
		}
		read := " "
		if m.IsRead {
			read = "✓"
		}
		return "MESSAGE", fmt.Sprintf("#%d [%s] %s: %s", m.Seq, read, m.Sender, m.Content)
	case strings.HasPrefix(key, leasePrefix):
		l, err := decodeLease(val)
		if err != nil {
			return "LEASE", "Error: decode failed"
		}
		return "LEASE", fmt.Sprintf("seen %s | expires %s | %s",
			l.LastSeenAt.Format(time.RFC3339), l.ExpiresAt.Format(time.RFC3339), l.DeviceInfo)
	default:
		return "RAW", fmt.Sprintf("%d bytes", len(val))
	}
}
