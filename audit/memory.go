package audit

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and by tools that only
// need a transient audit trail.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []LogEntry
	requests []RequestLog
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// InsertLogEntry appends e, assigning an ID when it has none.
func (m *MemoryStore) InsertLogEntry(_ context.Context, e *LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

// InsertRequestLog appends r, assigning an ID when it has none.
func (m *MemoryStore) InsertRequestLog(_ context.Context, r *RequestLog) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, *r)
	return nil
}

func (m *MemoryStore) GetLogEntry(_ context.Context, id string) (LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return LogEntry{}, ErrNotFound
}

func (m *MemoryStore) ListLogEntries(_ context.Context, f LogEntryFilter) ([]LogEntry, int64, error) {
	m.mu.RLock()
	var out []LogEntry
	for _, e := range m.entries {
		if matchEntry(e, f) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b LogEntry) int { return b.Timestamp.Compare(a.Timestamp) })
	return paginate(out, f.Page)
}

func (m *MemoryStore) ListRequestLogs(_ context.Context, f RequestLogFilter) ([]RequestLog, int64, error) {
	m.mu.RLock()
	var out []RequestLog
	for _, r := range m.requests {
		if (f.UserID == "" || r.UserID == f.UserID) &&
			(f.IPAddress == "" || r.IPAddress == f.IPAddress) &&
			(f.Since.IsZero() || !r.CreatedOn.Before(f.Since)) &&
			(f.Until.IsZero() || r.CreatedOn.Before(f.Until)) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b RequestLog) int { return b.CreatedOn.Compare(a.CreatedOn) })
	return paginate(out, f.Page)
}

func (m *MemoryStore) ResourceTypes(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var types []string
	for _, e := range m.entries {
		if !slices.Contains(types, e.ResourceType) {
			types = append(types, e.ResourceType)
		}
	}
	slices.SortFunc(types, cmp.Compare[string])
	return types, nil
}

func matchEntry(e LogEntry, f LogEntryFilter) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := strings.ToLower(e.ObjectRepr + "\n" + e.Msg() + "\n" + e.ActorName)
		return strings.Contains(hay, q)
	}
	return true
}

func paginate[T any](items []T, p Page) ([]T, int64, error) {
	total := int64(len(items))
	p = p.Normalize()
	start := min(p.Offset(), len(items))
	end := min(start+p.Size, len(items))
	return items[start:end], total, nil
}
