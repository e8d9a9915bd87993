package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/Keksclan/goRawrAudit/audit"
)

var _ audit.Store = (*DB)(nil)

// InsertLogEntry stores e. An empty ID is filled in.
func (s *DB) InsertLogEntry(ctx context.Context, e *audit.LogEntry) error {
	m, err := newLogEntryModel(e)
	if err != nil {
		return fmt.Errorf("store: encode changes: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		slog.ErrorContext(ctx, "failed to insert log entry",
			"operation", "insert_log_entry",
			"resource_type", e.ResourceType,
			"object_id", e.ObjectID,
			"error", err,
		)
		return err
	}
	e.ID = m.ID
	return nil
}

// InsertRequestLog stores r. An empty ID and creation time are filled in.
func (s *DB) InsertRequestLog(ctx context.Context, r *audit.RequestLog) error {
	m := &requestLogModel{
		ID:        r.ID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		IPAddress: r.IPAddress,
		Method:    r.Method,
		FullPath:  r.FullPath,
		CreatedOn: r.CreatedOn,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		slog.ErrorContext(ctx, "failed to insert request log",
			"operation", "insert_request_log",
			"user_id", r.UserID,
			"error", err,
		)
		return err
	}
	r.ID = m.ID
	r.CreatedOn = m.CreatedOn
	return nil
}

// GetLogEntry returns the entry with id or audit.ErrNotFound.
func (s *DB) GetLogEntry(ctx context.Context, id string) (audit.LogEntry, error) {
	var m logEntryModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return audit.LogEntry{}, audit.ErrNotFound
		}
		slog.ErrorContext(ctx, "failed to get log entry",
			"operation", "get_log_entry",
			"id", id,
			"error", err,
		)
		return audit.LogEntry{}, err
	}
	return m.toDomain()
}

// ListLogEntries returns one page of entries matching f, newest first, and
// the total number of matches.
func (s *DB) ListLogEntries(ctx context.Context, f audit.LogEntryFilter) ([]audit.LogEntry, int64, error) {
	q := s.db.WithContext(ctx).Model(&logEntryModel{})
	if f.Action != "" {
		q = q.Where("action = ?", string(f.Action))
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp < ?", f.Until)
	}
	if f.Search != "" {
		like := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		q = q.Where(
			"LOWER(object_repr) LIKE ? ESCAPE '!' OR LOWER(changes) LIKE ? ESCAPE '!' OR LOWER(actor_name) LIKE ? ESCAPE '!'",
			like, like, like,
		)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		slog.ErrorContext(ctx, "failed to count log entries", "operation", "list_log_entries", "error", err)
		return nil, 0, err
	}

	page := f.Page.Normalize()
	var models []logEntryModel
	err := q.Order("timestamp DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.Size).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list log entries", "operation", "list_log_entries", "error", err)
		return nil, 0, err
	}

	entries := make([]audit.LogEntry, 0, len(models))
	for i := range models {
		e, err := models[i].toDomain()
		if err != nil {
			return nil, 0, fmt.Errorf("store: decode entry %s: %w", models[i].ID, err)
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}

// ListRequestLogs returns one page of request logs matching f, newest first.
func (s *DB) ListRequestLogs(ctx context.Context, f audit.RequestLogFilter) ([]audit.RequestLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&requestLogModel{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.IPAddress != "" {
		q = q.Where("ip_address = ?", f.IPAddress)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_on >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("created_on < ?", f.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		slog.ErrorContext(ctx, "failed to count request logs", "operation", "list_request_logs", "error", err)
		return nil, 0, err
	}

	page := f.Page.Normalize()
	var models []requestLogModel
	err := q.Order("created_on DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.Size).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list request logs", "operation", "list_request_logs", "error", err)
		return nil, 0, err
	}

	logs := make([]audit.RequestLog, len(models))
	for i := range models {
		logs[i] = models[i].toDomain()
	}
	return logs, total, nil
}

// ResourceTypes lists the distinct resource types that have entries.
func (s *DB) ResourceTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := s.db.WithContext(ctx).
		Model(&logEntryModel{}).
		Distinct("resource_type").
		Order("resource_type ASC").
		Pluck("resource_type", &types).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list resource types", "operation", "resource_types", "error", err)
		return nil, err
	}
	return types, nil
}

// escapeLike escapes LIKE wildcards with '!', which needs no quoting in
// either MySQL or SQLite string literals.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
