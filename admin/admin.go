// Package admin serves the read-only audit views over the change log and the
// user request log, including their CSV exports.
package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Keksclan/goRawrAudit/audit"
	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/internal/httputil"
	"github.com/Keksclan/goRawrAudit/ratelimit"
)

// DefaultScope is the scope a caller needs to read the audit views.
const DefaultScope = "audit:read"

// defaultExportMaxRows caps a single CSV export.
const defaultExportMaxRows = 10000

// Config configures the admin handler.
type Config struct {
	Store audit.Store
	// Scope required from the actor. Empty admits any authenticated actor.
	Scope string
	// Export throttles CSV exports per actor. Nil disables throttling.
	Export *ratelimit.Keyed
	// ExportMaxRows caps the rows of one export, defaultExportMaxRows if 0.
	ExportMaxRows int
}

// Handler serves the audit views.
type Handler struct {
	store   audit.Store
	scope   string
	export  *ratelimit.Keyed
	maxRows int
}

// New returns a Handler for cfg.
func New(cfg Config) *Handler {
	maxRows := cfg.ExportMaxRows
	if maxRows <= 0 {
		maxRows = defaultExportMaxRows
	}
	return &Handler{
		store:   cfg.Store,
		scope:   cfg.Scope,
		export:  cfg.Export,
		maxRows: maxRows,
	}
}

// Routes returns the router of the audit views, to be mounted under
// /admin/audit.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requireReader)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "the audit trail is read-only")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, r, http.StatusNotFound, "NOT_FOUND", "not found")
	})

	r.Route("/entries", func(r chi.Router) {
		r.Get("/", h.ListEntries)
		r.With(h.throttleExport).Get("/export.csv", h.ExportEntries)
		r.Get("/{id}", h.GetEntry)
	})
	r.Route("/requests", func(r chi.Router) {
		r.Get("/", h.ListRequests)
		r.With(h.throttleExport).Get("/export.csv", h.ExportRequests)
	})
	r.Get("/resource-types", h.ResourceTypes)
	return r
}

// requireReader admits only actors holding the configured scope.
func (h *Handler) requireReader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := contextx.Current(r.Context())
		if !ok {
			httputil.Error(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
			return
		}
		if h.scope != "" && !actor.HasScope(h.scope) {
			httputil.Error(w, r, http.StatusForbidden, "FORBIDDEN", "missing scope "+h.scope)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// throttleExport limits how often one actor may export.
func (h *Handler) throttleExport(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.export != nil {
			actor, _ := contextx.Current(r.Context())
			if !h.export.Allow(actor.Subject) {
				httputil.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many exports, try again later")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// EntryView is a log entry as listed by the admin.
type EntryView struct {
	audit.LogEntry
	MsgShort    string `json:"msg_short"`
	ResourceURL string `json:"resource_url,omitempty"`
	UserURL     string `json:"user_url,omitempty"`
}

// EntryDetail is a single log entry with its full message.
type EntryDetail struct {
	EntryView
	Msg string `json:"msg"`
}

// EntryListResponse is the body of GET /entries.
type EntryListResponse struct {
	Entries []EntryView `json:"entries"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	Size    int         `json:"size"`
}

// RequestListResponse is the body of GET /requests.
type RequestListResponse struct {
	Requests []audit.RequestLog `json:"requests"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

func newEntryView(e audit.LogEntry) EntryView {
	return EntryView{
		LogEntry:    e,
		MsgShort:    e.MsgShort(),
		ResourceURL: e.ResourceURL(),
		UserURL:     e.UserURL(),
	}
}

// ListEntries lists log entries newest first.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	f, err := entryFilter(r)
	if err != nil {
		httputil.Error(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	entries, total, err := h.store.ListLogEntries(r.Context(), f)
	if err != nil {
		internalError(w, r, err)
		return
	}
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newEntryView(e))
	}
	page := f.Page.Normalize()
	httputil.JSON(w, r, http.StatusOK, EntryListResponse{
		Entries: views,
		Total:   total,
		Page:    page.Number,
		Size:    page.Size,
	})
}

// GetEntry returns one log entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.GetLogEntry(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, audit.ErrNotFound) {
		httputil.Error(w, r, http.StatusNotFound, "NOT_FOUND", "log entry not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	httputil.JSON(w, r, http.StatusOK, EntryDetail{EntryView: newEntryView(e), Msg: e.Msg()})
}

// ListRequests lists user request logs newest first.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	f, err := requestFilter(r)
	if err != nil {
		httputil.Error(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	logs, total, err := h.store.ListRequestLogs(r.Context(), f)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if logs == nil {
		logs = []audit.RequestLog{}
	}
	page := f.Page.Normalize()
	httputil.JSON(w, r, http.StatusOK, RequestListResponse{
		Requests: logs,
		Total:    total,
		Page:     page.Number,
		Size:     page.Size,
	})
}

// ResourceTypes lists the distinct resource types present in the log, for
// filtering.
func (h *Handler) ResourceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ResourceTypes(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	if types == nil {
		types = []string{}
	}
	httputil.JSON(w, r, http.StatusOK, map[string][]string{"resource_types": types})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "admin: store query failed", "path", r.URL.Path, "error", err)
	httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
}
