package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(maxSize int, ttl time.Duration) *Store {
	return New(Config{MaxSize: maxSize, TTL: ttl})
}

func TestStore_AddGet(t *testing.T) {
	s := newStore(10, time.Minute)
	defer s.Close()

	s.Add(Record{RequestID: "r-1", Endpoint: "shiro", Code: "ok"})

	record, ok := s.Get("r-1")
	require.True(t, ok)
	assert.Equal(t, "shiro", record.Endpoint)

	_, ok = s.Get("r-404")
	assert.False(t, ok)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestStore_EvictsOldest(t *testing.T) {
	s := newStore(2, time.Minute)
	defer s.Close()

	s.Add(Record{RequestID: "r-1"})
	s.Add(Record{RequestID: "r-2"})
	s.Add(Record{RequestID: "r-3"})

	_, ok := s.Get("r-1")
	assert.False(t, ok, "oldest record should be evicted")
	_, ok = s.Get("r-3")
	assert.True(t, ok)
	assert.Equal(t, int64(1), s.Stats().Evictions)
}

func TestStore_GetRefreshesRecency(t *testing.T) {
	s := newStore(2, time.Minute)
	defer s.Close()

	s.Add(Record{RequestID: "r-1"})
	s.Add(Record{RequestID: "r-2"})
	_, _ = s.Get("r-1")
	s.Add(Record{RequestID: "r-3"})

	_, ok := s.Get("r-1")
	assert.True(t, ok, "recently read record should survive eviction")
	_, ok = s.Get("r-2")
	assert.False(t, ok)
}

func TestStore_TTLExpiry(t *testing.T) {
	s := newStore(10, 10*time.Millisecond)
	defer s.Close()

	s.Add(Record{RequestID: "r-1"})
	time.Sleep(30 * time.Millisecond)

	_, ok := s.Get("r-1")
	assert.False(t, ok)
	assert.Empty(t, s.Recent(10))
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := newStore(10, time.Minute)
	defer s.Close()

	s.Add(Record{RequestID: "r-1"})
	s.Add(Record{RequestID: "r-2"})
	s.Add(Record{RequestID: "r-3"})

	records := s.Recent(2)
	require.Len(t, records, 2)
	assert.Equal(t, "r-3", records[0].RequestID)
	assert.Equal(t, "r-2", records[1].RequestID)
}
