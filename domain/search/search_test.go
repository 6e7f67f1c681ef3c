package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery(t *testing.T) {
	req := require.New(t)
	id := uuid.New()

	q := NewSearchQuery("/find cold fries --session " + id.String() + " --limit 500 --mood 3")
	req.Equal("cold fries", q.Terms)
	req.Equal(&id, q.SessionID)
	req.Equal(MaxLimit, q.Limit)

	q = NewSearchQuery("refund --session nope")
	req.Equal("refund", q.Terms)
	req.Nil(q.SessionID)
	req.Equal(DefaultLimit, q.Limit)
}
