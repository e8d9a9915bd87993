package audit

import (
	"context"
	"time"
)

// DefaultPageSize and MaxPageSize bound list queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page selects a window of results, 1-based.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows skipped before the page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}

// LogEntryFilter narrows ListLogEntries. Zero fields do not filter.
type LogEntryFilter struct {
	Action       Action
	ResourceType string
	ActorID      string
	// Search matches object repr, changes and actor name, case-insensitively.
	Search string
	Since  time.Time
	Until  time.Time
	Page   Page
}

// RequestLogFilter narrows ListRequestLogs. Zero fields do not filter.
type RequestLogFilter struct {
	UserID    string
	IPAddress string
	Since     time.Time
	Until     time.Time
	Page      Page
}

// Store persists audit data. The audit trail is append-only: there is no
// update or delete.
type Store interface {
	InsertLogEntry(ctx context.Context, e *LogEntry) error
	InsertRequestLog(ctx context.Context, r *RequestLog) error
	GetLogEntry(ctx context.Context, id string) (LogEntry, error)
	ListLogEntries(ctx context.Context, f LogEntryFilter) ([]LogEntry, int64, error)
	ListRequestLogs(ctx context.Context, f RequestLogFilter) ([]RequestLog, int64, error)
	ResourceTypes(ctx context.Context) ([]string, error)
}
