package audit

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// Change describes a mutation to be recorded.
type Change struct {
	Action       Action
	ResourceType string
	ObjectID     string
	ObjectRepr   string
	Changes      map[string]FieldChange
}

// Observer is notified of every entry the Recorder persisted.
type Observer func(LogEntry)

// Recorder turns changes into log entries attributed to the actor bound to
// the context, and writes them to a Store.
type Recorder struct {
	store    Store
	now      func() time.Time
	observer Observer
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithObserver registers fn to be called after each successful write.
func WithObserver(fn Observer) RecorderOption {
	return func(r *Recorder) { r.observer = fn }
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// WithStore returns a copy of r that writes to s, keeping clock and
// observer. The gorm capture plugin uses it to write inside the transaction
// that made the change.
func (r *Recorder) WithStore(s Store) *Recorder {
	c := *r
	c.store = s
	return &c
}

// Entry builds the log entry for c without persisting it. The actor, remote
// address and request ID come from ctx.
func (r *Recorder) Entry(ctx context.Context, c Change) LogEntry {
	e := LogEntry{
		ID:           uuid.NewString(),
		Timestamp:    r.now().UTC(),
		Action:       c.Action,
		ResourceType: c.ResourceType,
		ObjectID:     c.ObjectID,
		ObjectRepr:   c.ObjectRepr,
		Changes:      c.Changes,
		RequestID:    contextx.RequestIDFromContext(ctx),
	}
	if b, ok := contextx.CurrentBinding(ctx); ok {
		e.RemoteAddr = b.RemoteAddr
		if b.Actor != nil {
			e.ActorID = b.Actor.Subject
			e.ActorName = b.Actor.DisplayName()
		}
	}
	return e
}

// Record persists c. Updates without any changed field are skipped and
// reported with ok=false.
func (r *Recorder) Record(ctx context.Context, c Change) (e LogEntry, ok bool, err error) {
	if _, err := ParseAction(string(c.Action)); err != nil {
		return LogEntry{}, false, err
	}
	if c.Action == ActionUpdate && len(c.Changes) == 0 {
		return LogEntry{}, false, nil
	}

	e = r.Entry(ctx, c)
	if err := r.store.InsertLogEntry(ctx, &e); err != nil {
		slog.ErrorContext(ctx, "failed to record audit entry",
			"action", e.Action,
			"resource_type", e.ResourceType,
			"object_id", e.ObjectID,
			"error", err,
		)
		return LogEntry{}, false, fmt.Errorf("audit: record %s %s: %w", e.Action, e.ResourceType, err)
	}
	if r.observer != nil {
		r.observer(e)
	}
	return e, true, nil
}

// Diff compares two field snapshots and returns the fields whose rendered
// value differs. Fields missing on one side render as "None".
func Diff(before, after map[string]any) map[string]FieldChange {
	keys := slices.Collect(maps.Keys(before))
	for k := range after {
		if _, ok := before[k]; !ok {
			keys = append(keys, k)
		}
	}

	out := make(map[string]FieldChange)
	for _, k := range keys {
		oldV, newV := render(before, k), render(after, k)
		if oldV != newV {
			out[k] = FieldChange{Old: oldV, New: newV}
		}
	}
	return out
}

func render(m map[string]any, k string) string {
	v, ok := m[k]
	if !ok || v == nil {
		return "None"
	}
	return fmt.Sprint(v)
}
