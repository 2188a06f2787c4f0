// Package history keeps a journal of completed translations.
//
// The session controller hands every successful translation to a [Store].
// [MemStore] keeps the most recent exchanges in memory; the postgres
// subpackage persists them.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Exchange is one completed translation.
type Exchange struct {
	ID             uuid.UUID     `json:"id"`
	Direction      string        `json:"direction"`
	Source         string        `json:"source"`
	Target         string        `json:"target"`
	SourceText     string        `json:"source_text"`
	TranslatedText string        `json:"translated_text"`
	CreatedAt      time.Time     `json:"created_at"`
	Latency        time.Duration `json:"latency"`
}

// Store records exchanges and lists the most recent ones, newest first.
type Store interface {
	Record(ctx context.Context, ex Exchange) error
	Recent(ctx context.Context, limit int) ([]Exchange, error)
}

// Normalize fills a missing ID and timestamp.
func Normalize(ex Exchange) Exchange {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	return ex
}

// DefaultMaxEntries bounds a MemStore created with a non-positive capacity.
const DefaultMaxEntries = 200

// MemStore is a fixed-size in-memory ring of exchanges. It is safe for
// concurrent use.
type MemStore struct {
	mu    sync.Mutex
	buf   []Exchange
	next  int
	count int
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a MemStore holding at most capacity exchanges.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMaxEntries
	}
	return &MemStore{buf: make([]Exchange, capacity)}
}

// Record implements Store. The oldest exchange is overwritten when full.
func (m *MemStore) Record(_ context.Context, ex Exchange) error {
	ex = Normalize(ex)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = ex
	m.next = (m.next + 1) % len(m.buf)
	if m.count < len(m.buf) {
		m.count++
	}
	return nil
}

// Recent implements Store. A non-positive limit returns everything held.
func (m *MemStore) Recent(_ context.Context, limit int) ([]Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > m.count {
		limit = m.count
	}
	out := make([]Exchange, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.buf)) % len(m.buf)
		out = append(out, m.buf[idx])
	}
	return out, nil
}

// Len returns the number of exchanges held.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
