package admin

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Keksclan/goRawrAudit/audit"
	"github.com/Keksclan/goRawrAudit/internal/httputil"
)

var (
	entryColumns = []string{
		"id", "timestamp", "action", "resource_type", "object_id", "object_repr",
		"resource_url", "msg", "actor_id", "actor_name", "user_url", "remote_addr", "request_id",
	}
	requestColumns = []string{
		"id", "user_id", "user_name", "full_path", "created_on", "ip_address", "method",
	}
)

// ErrRowLimit is returned by the CSV writers when the result set exceeds
// the row limit. The rows written up to the limit are complete.
var ErrRowLimit = errors.New("admin: export row limit reached")

// ExportEntries streams the log entries matching the query as CSV.
func (h *Handler) ExportEntries(w http.ResponseWriter, r *http.Request) {
	f, err := entryFilter(r)
	if err != nil {
		httputil.Error(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	setCSVHeaders(w, "log_entries.csv")
	n, err := WriteEntries(r.Context(), w, h.store, f, h.maxRows)
	logExport(r.Context(), "log_entries.csv", n, err)
}

// ExportRequests streams the request logs matching the query as CSV.
func (h *Handler) ExportRequests(w http.ResponseWriter, r *http.Request) {
	f, err := requestFilter(r)
	if err != nil {
		httputil.Error(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	setCSVHeaders(w, "user_request_logs.csv")
	n, err := WriteRequests(r.Context(), w, h.store, f, h.maxRows)
	logExport(r.Context(), "user_request_logs.csv", n, err)
}

func setCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
}

// The status is committed with the first byte, so export failures can only
// be logged.
func logExport(ctx context.Context, file string, rows int, err error) {
	switch {
	case errors.Is(err, ErrRowLimit):
		slog.WarnContext(ctx, "admin: csv export truncated", "file", file, "rows", rows)
	case err != nil:
		slog.ErrorContext(ctx, "admin: csv export failed", "file", file, "rows", rows, "error", err)
	default:
		slog.InfoContext(ctx, "admin: csv export", "file", file, "rows", rows)
	}
}

// WriteEntries writes the log entries matching f (newest first) to w as
// CSV, at most maxRows of them, and returns the number of rows written.
// f.Page is ignored.
func WriteEntries(ctx context.Context, w io.Writer, s audit.Store, f audit.LogEntryFilter, maxRows int) (int, error) {
	return writeCSV(w, entryColumns, maxRows, func(emit func([]string) error) error {
		for p := (audit.Page{Number: 1, Size: audit.MaxPageSize}); ; p.Number++ {
			f.Page = p
			entries, total, err := s.ListLogEntries(ctx, f)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if err := emit(entryRecord(e)); err != nil {
					return err
				}
			}
			if lastPage(p, len(entries), total) {
				return nil
			}
		}
	})
}

// WriteRequests is WriteEntries for user request logs.
func WriteRequests(ctx context.Context, w io.Writer, s audit.Store, f audit.RequestLogFilter, maxRows int) (int, error) {
	return writeCSV(w, requestColumns, maxRows, func(emit func([]string) error) error {
		for p := (audit.Page{Number: 1, Size: audit.MaxPageSize}); ; p.Number++ {
			f.Page = p
			logs, total, err := s.ListRequestLogs(ctx, f)
			if err != nil {
				return err
			}
			for _, l := range logs {
				if err := emit(requestRecord(l)); err != nil {
					return err
				}
			}
			if lastPage(p, len(logs), total) {
				return nil
			}
		}
	})
}

func lastPage(p audit.Page, n int, total int64) bool {
	return n < p.Size || int64(p.Offset()+n) >= total
}

func entryRecord(e audit.LogEntry) []string {
	return []string{
		e.ID, e.Timestamp.UTC().Format(time.RFC3339), string(e.Action), e.ResourceType,
		e.ObjectID, e.ObjectRepr, e.ResourceURL(), e.Msg(), e.ActorID, e.ActorName,
		e.UserURL(), e.RemoteAddr, e.RequestID,
	}
}

func requestRecord(l audit.RequestLog) []string {
	return []string{
		l.ID, l.UserID, l.UserName, l.FullPath, l.CreatedOn.UTC().Format(time.RFC3339),
		l.IPAddress, l.Method,
	}
}

// writeCSV writes header followed by the rows fill emits. A maxRows of zero
// or less means unlimited.
func writeCSV(w io.Writer, header []string, maxRows int, fill func(emit func([]string) error) error) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	rows := 0
	err := fill(func(record []string) error {
		if maxRows > 0 && rows == maxRows {
			return ErrRowLimit
		}
		rows++
		return cw.Write(record)
	})
	cw.Flush()
	if err == nil {
		err = cw.Error()
	}
	return rows, err
}
