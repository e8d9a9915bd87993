// Package audit defines audit log entries and user request logs, the Store
// they are persisted to, and the Recorder that stamps every recorded change
// with the actor bound to the current unit of work.
package audit

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("audit: not found")

// Action is what happened to an audited resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAccess Action = "access"
)

// Actions lists every valid action in display order.
var Actions = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionAccess}

// ParseAction validates s as an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Actions, a) {
		return a, nil
	}
	return "", fmt.Errorf("audit: unknown action %q", s)
}

// FieldChange is the before/after rendering of one changed field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// LogEntry records a change made to a resource and who made it.
type LogEntry struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       Action                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ObjectID     string                 `json:"object_id"`
	ObjectRepr   string                 `json:"object_repr"`
	Changes      map[string]FieldChange `json:"changes,omitempty"`
	ActorID      string                 `json:"actor_id,omitempty"`
	ActorName    string                 `json:"actor_name,omitempty"`
	RemoteAddr   string                 `json:"remote_addr,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
}

// msgShortLen is the rune budget of MsgShort.
const msgShortLen = 64

// Msg renders the changes one field per line, sorted by field name.
func (e LogEntry) Msg() string {
	if len(e.Changes) == 0 {
		return string(e.Action) + " " + e.ObjectRepr
	}
	var b strings.Builder
	for i, field := range slices.Sorted(maps.Keys(e.Changes)) {
		if i > 0 {
			b.WriteByte('\n')
		}
		c := e.Changes[field]
		fmt.Fprintf(&b, "%s: %s → %s", field, c.Old, c.New)
	}
	return b.String()
}

// MsgShort is Msg flattened to one line and truncated for list views.
func (e LogEntry) MsgShort() string {
	msg := strings.ReplaceAll(e.Msg(), "\n", "; ")
	if utf8.RuneCountInString(msg) <= msgShortLen {
		return msg
	}
	r := []rune(msg)
	return string(r[:msgShortLen-3]) + "..."
}

// ResourceURL is the admin path of the audited object.
func (e LogEntry) ResourceURL() string {
	if e.ObjectID == "" {
		return ""
	}
	return "/" + e.ResourceType + "/" + e.ObjectID
}

// UserURL is the admin path of the actor, empty for anonymous changes.
func (e LogEntry) UserURL() string {
	if e.ActorID == "" {
		return ""
	}
	return "/users/" + e.ActorID
}

// RequestLog is one authenticated page view.
type RequestLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	IPAddress string    `json:"ip_address"`
	Method    string    `json:"method"`
	FullPath  string    `json:"full_path"`
	CreatedOn time.Time `json:"created_on"`
}

// Line renders the request log in the file-log format
// "user ip method path".
func (r RequestLog) Line() string {
	return strings.Join([]string{r.UserName, r.IPAddress, r.Method, r.FullPath}, " ")
}
