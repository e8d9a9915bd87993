package admin

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Keksclan/goRawrAudit/audit"
)

// timeLayouts are the accepted formats of the since/until parameters.
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

func entryFilter(r *http.Request) (audit.LogEntryFilter, error) {
	q := r.URL.Query()
	f := audit.LogEntryFilter{
		ResourceType: q.Get("resource_type"),
		ActorID:      q.Get("actor"),
		Search:       q.Get("q"),
	}
	if v := q.Get("action"); v != "" {
		a, err := audit.ParseAction(v)
		if err != nil {
			return f, err
		}
		f.Action = a
	}
	var err error
	if f.Since, f.Until, err = timeRange(r); err != nil {
		return f, err
	}
	f.Page, err = page(r)
	return f, err
}

func requestFilter(r *http.Request) (audit.RequestLogFilter, error) {
	q := r.URL.Query()
	f := audit.RequestLogFilter{
		UserID:    q.Get("user"),
		IPAddress: q.Get("ip"),
	}
	var err error
	if f.Since, f.Until, err = timeRange(r); err != nil {
		return f, err
	}
	f.Page, err = page(r)
	return f, err
}

func timeRange(r *http.Request) (since, until time.Time, err error) {
	q := r.URL.Query()
	if since, err = parseTime("since", q.Get("since")); err != nil {
		return
	}
	if until, err = parseTime("until", q.Get("until")); err != nil {
		return
	}
	if !since.IsZero() && !until.IsZero() && !since.Before(until) {
		err = fmt.Errorf("since must be before until")
	}
	return
}

func parseTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: expected RFC 3339 timestamp or YYYY-MM-DD, got %q", name, v)
}

func page(r *http.Request) (audit.Page, error) {
	q := r.URL.Query()
	var p audit.Page
	for _, param := range []struct {
		name string
		dst  *int
	}{{"page", &p.Number}, {"size", &p.Size}} {
		v := q.Get(param.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("%s: expected a positive integer, got %q", param.name, v)
		}
		*param.dst = n
	}
	return p.Normalize(), nil
}
