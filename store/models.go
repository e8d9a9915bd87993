package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Keksclan/goRawrAudit/audit"
)

// logEntryModel is the gorm row of an audit.LogEntry. Changes are stored as
// JSON text so free-text search can match field names and values.
type logEntryModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	Timestamp    time.Time `gorm:"not null;index:idx_audit_entries_timestamp"`
	Action       string    `gorm:"type:varchar(16);not null;index:idx_audit_entries_action"`
	ResourceType string    `gorm:"type:varchar(100);not null;index:idx_audit_entries_resource"`
	ObjectID     string    `gorm:"type:varchar(255);not null;index:idx_audit_entries_resource"`
	ObjectRepr   string    `gorm:"type:text"`
	Changes      string    `gorm:"type:text"`
	ActorID      string    `gorm:"type:varchar(255);index:idx_audit_entries_actor"`
	ActorName    string    `gorm:"type:varchar(255)"`
	RemoteAddr   string    `gorm:"type:varchar(45)"`
	RequestID    string    `gorm:"type:varchar(64)"`
}

func (logEntryModel) TableName() string {
	return "audit_log_entries"
}

func (m *logEntryModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func newLogEntryModel(e *audit.LogEntry) (*logEntryModel, error) {
	var changes string
	if len(e.Changes) > 0 {
		b, err := json.Marshal(e.Changes)
		if err != nil {
			return nil, err
		}
		changes = string(b)
	}
	return &logEntryModel{
		ID:           e.ID,
		Timestamp:    e.Timestamp,
		Action:       string(e.Action),
		ResourceType: e.ResourceType,
		ObjectID:     e.ObjectID,
		ObjectRepr:   e.ObjectRepr,
		Changes:      changes,
		ActorID:      e.ActorID,
		ActorName:    e.ActorName,
		RemoteAddr:   e.RemoteAddr,
		RequestID:    e.RequestID,
	}, nil
}

func (m *logEntryModel) toDomain() (audit.LogEntry, error) {
	e := audit.LogEntry{
		ID:           m.ID,
		Timestamp:    m.Timestamp.UTC(),
		Action:       audit.Action(m.Action),
		ResourceType: m.ResourceType,
		ObjectID:     m.ObjectID,
		ObjectRepr:   m.ObjectRepr,
		ActorID:      m.ActorID,
		ActorName:    m.ActorName,
		RemoteAddr:   m.RemoteAddr,
		RequestID:    m.RequestID,
	}
	if m.Changes != "" {
		if err := json.Unmarshal([]byte(m.Changes), &e.Changes); err != nil {
			return audit.LogEntry{}, err
		}
	}
	return e, nil
}

// requestLogModel is the gorm row of an audit.RequestLog.
type requestLogModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(255);not null;index:idx_audit_requests_user"`
	UserName  string    `gorm:"type:varchar(255)"`
	IPAddress string    `gorm:"type:varchar(45);index:idx_audit_requests_ip"`
	Method    string    `gorm:"type:varchar(16);not null"`
	FullPath  string    `gorm:"type:text;not null"`
	CreatedOn time.Time `gorm:"not null;index:idx_audit_requests_created"`
}

func (requestLogModel) TableName() string {
	return "audit_request_logs"
}

func (m *requestLogModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedOn.IsZero() {
		m.CreatedOn = time.Now().UTC()
	}
	return nil
}

func (m *requestLogModel) toDomain() audit.RequestLog {
	return audit.RequestLog{
		ID:        m.ID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		IPAddress: m.IPAddress,
		Method:    m.Method,
		FullPath:  m.FullPath,
		CreatedOn: m.CreatedOn.UTC(),
	}
}
