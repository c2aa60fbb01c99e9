package history

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// Record is the stored outcome of one routed request
type Record struct {
	RequestID   string          `json:"request_id"`
	Endpoint    string          `json:"endpoint"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Code        string          `json:"code,omitempty"`
}

// Stats are the store's hit/miss counters
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	HitRate   float64 `json:"hit_rate"`
}

// Config bounds the store
type Config struct {
	MaxSize       int
	TTL           time.Duration
	CleanupPeriod time.Duration
}

// DefaultConfig keeps the last 500 outcomes for 15 minutes
func DefaultConfig() Config {
	return Config{
		MaxSize:       500,
		TTL:           15 * time.Minute,
		CleanupPeriod: time.Minute,
	}
}

type entry struct {
	record   Record
	storedAt time.Time
}

// Store keeps recent request outcomes so that a control caller can look up a
// result it missed, for instance after its own connection dropped mid-submit.
// Old records fall out by LRU eviction or TTL.
type Store struct {
	config       Config
	mu           sync.RWMutex
	items        map[string]*list.Element
	evictionList *list.List
	stats        Stats
	stopCleanup  chan struct{}
	cleanupDone  chan struct{}
}

// New creates a record store
func New(config Config) *Store {
	s := &Store{
		config:       config,
		items:        make(map[string]*list.Element),
		evictionList: list.New(),
		stats:        Stats{MaxSize: config.MaxSize},
		stopCleanup:  make(chan struct{}),
		cleanupDone:  make(chan struct{}),
	}
	if config.CleanupPeriod > 0 {
		go s.backgroundCleanup()
	}
	return s
}

// Add stores a request outcome, replacing any record under the same ID
func (s *Store) Add(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if element, exists := s.items[record.RequestID]; exists {
		e := element.Value.(*entry)
		e.record = record
		e.storedAt = time.Now()
		s.evictionList.MoveToFront(element)
		return
	}

	element := s.evictionList.PushFront(&entry{record: record, storedAt: time.Now()})
	s.items[record.RequestID] = element

	if s.evictionList.Len() > s.config.MaxSize {
		s.evictOldestLocked()
	}
}

// Get returns the record for a request ID
func (s *Store) Get(requestID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, exists := s.items[requestID]
	if !exists {
		s.stats.Misses++
		return Record{}, false
	}

	e := element.Value.(*entry)
	if s.expiredLocked(e) {
		s.removeElementLocked(element)
		s.stats.Misses++
		return Record{}, false
	}

	s.evictionList.MoveToFront(element)
	s.stats.Hits++
	return e.record, true
}

// Recent returns up to n records, newest first
func (s *Store) Recent(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, n)
	for element := s.evictionList.Front(); element != nil && len(records) < n; element = element.Next() {
		e := element.Value.(*entry)
		if !s.expiredLocked(e) {
			records = append(records, e.record)
		}
	}
	return records
}

// Stats returns a snapshot of the store's counters
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Size = len(s.items)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close stops the background cleanup and drops all records
func (s *Store) Close() error {
	if s.config.CleanupPeriod > 0 {
		close(s.stopCleanup)
		<-s.cleanupDone
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.evictionList = list.New()
	return nil
}

func (s *Store) expiredLocked(e *entry) bool {
	return s.config.TTL > 0 && time.Since(e.storedAt) > s.config.TTL
}

func (s *Store) removeElementLocked(element *list.Element) {
	e := element.Value.(*entry)
	delete(s.items, e.record.RequestID)
	s.evictionList.Remove(element)
}

func (s *Store) evictOldestLocked() {
	if oldest := s.evictionList.Back(); oldest != nil {
		s.removeElementLocked(oldest)
		s.stats.Evictions++
	}
}

func (s *Store) backgroundCleanup() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*list.Element
	for element := s.evictionList.Back(); element != nil; element = element.Prev() {
		if s.expiredLocked(element.Value.(*entry)) {
			expired = append(expired, element)
		}
	}
	for _, element := range expired {
		s.removeElementLocked(element)
	}
}
