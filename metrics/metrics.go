// Package metrics exposes Prometheus counters for actor binding and audit
// writes. All methods are safe on a nil *Collector so callers can treat
// metrics as optional.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/goRawrAudit/audit"
)

const namespace = "rawraudit"

// Binding kinds.
const (
	KindActor     = "actor"
	KindAnonymous = "anonymous"
)

// Collector groups the audit counters.
type Collector struct {
	bindings    *prometheus.CounterVec
	entries     *prometheus.CounterVec
	requestLogs prometheus.Counter
	storeErrors *prometheus.CounterVec
}

// New creates the counters and registers them on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		bindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actor_bindings_total",
			Help:      "Units of work started, by whether an actor was bound.",
		}, []string{"kind"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Audit log entries written, by action.",
		}, []string{"action"}),
		requestLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_logs_total",
			Help:      "Authenticated requests logged.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed audit store writes, by operation.",
		}, []string{"op"}),
	}

	var errs []error
	for _, col := range []prometheus.Collector{c.bindings, c.entries, c.requestLogs, c.storeErrors} {
		errs = append(errs, reg.Register(col))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// ObserveBinding counts a started unit of work.
func (c *Collector) ObserveBinding(authenticated bool) {
	if c == nil {
		return
	}
	kind := KindAnonymous
	if authenticated {
		kind = KindActor
	}
	c.bindings.WithLabelValues(kind).Inc()
}

// ObserveEntry counts a written log entry. It has the audit.Observer
// signature.
func (c *Collector) ObserveEntry(e audit.LogEntry) {
	if c == nil {
		return
	}
	c.entries.WithLabelValues(string(e.Action)).Inc()
}

// ObserveRequestLog counts a logged request.
func (c *Collector) ObserveRequestLog() {
	if c == nil {
		return
	}
	c.requestLogs.Inc()
}

// ObserveStoreError counts a failed write. It has the signature of
// audit.ResilientConfig.OnError.
func (c *Collector) ObserveStoreError(op string, _ error) {
	if c == nil {
		return
	}
	c.storeErrors.WithLabelValues(op).Inc()
}
