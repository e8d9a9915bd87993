package store

import (
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Keksclan/goRawrAudit/audit"
)

// Auditable is implemented by gorm models whose changes are recorded.
type Auditable interface {
	AuditResource() (resourceType, objectID, repr string)
}

// FieldAuditable models additionally expose the field values that are
// diffed between versions.
type FieldAuditable interface {
	Auditable
	AuditFields() map[string]any
}

const snapshotKey = "rawraudit:before"

// ChangeCapture is a gorm plugin recording create, update and delete of
// Auditable models through a Recorder. The entry is written in the same
// transaction as the change and attributed to the actor bound to the
// statement context (db.WithContext(ctx)).
//
// Updates are only recorded for FieldAuditable models saved with a primary
// key, since the previous version has to be loaded to compute the diff.
type ChangeCapture struct {
	recorder *audit.Recorder
}

// NewChangeCapture returns the plugin. Register it with db.Use.
func NewChangeCapture(r *audit.Recorder) *ChangeCapture {
	return &ChangeCapture{recorder: r}
}

func (*ChangeCapture) Name() string {
	return "rawraudit:change_capture"
}

func (c *ChangeCapture) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().After("gorm:create").Register("rawraudit:after_create", c.afterCreate); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("rawraudit:before_update", c.beforeUpdate); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("rawraudit:after_update", c.afterUpdate); err != nil {
		return err
	}
	return cb.Delete().After("gorm:delete").Register("rawraudit:after_delete", c.afterDelete)
}

func (c *ChangeCapture) afterCreate(tx *gorm.DB) {
	if tx.Error != nil {
		return
	}
	eachAuditable(tx, func(_ reflect.Value, a Auditable) {
		c.record(tx, audit.ActionCreate, a, audit.Diff(nil, fieldsOf(a)))
	})
}

func (c *ChangeCapture) beforeUpdate(tx *gorm.DB) {
	if tx.Error != nil || tx.Statement.Schema == nil {
		return
	}
	pk := tx.Statement.Schema.PrioritizedPrimaryField
	if pk == nil {
		return
	}

	snapshots := make(map[string]map[string]any)
	eachAuditable(tx, func(rv reflect.Value, a Auditable) {
		if _, ok := a.(FieldAuditable); !ok {
			return
		}
		id, zero := pk.ValueOf(tx.Statement.Context, rv)
		if zero {
			return
		}
		prev := reflect.New(tx.Statement.Schema.ModelType)
		err := tx.Session(&gorm.Session{NewDB: true, SkipHooks: true}).
			Table(tx.Statement.Table).
			Where(clause.Eq{Column: clause.Column{Name: pk.DBName}, Value: id}).
			Take(prev.Interface()).Error
		if err != nil {
			return
		}
		if fa, ok := prev.Interface().(FieldAuditable); ok {
			_, objectID, _ := a.AuditResource()
			snapshots[objectID] = fa.AuditFields()
		}
	})
	tx.InstanceSet(snapshotKey, snapshots)
}

func (c *ChangeCapture) afterUpdate(tx *gorm.DB) {
	if tx.Error != nil || tx.RowsAffected == 0 {
		return
	}
	var snapshots map[string]map[string]any
	if v, ok := tx.InstanceGet(snapshotKey); ok {
		snapshots, _ = v.(map[string]map[string]any)
	}
	eachAuditable(tx, func(_ reflect.Value, a Auditable) {
		fa, ok := a.(FieldAuditable)
		if !ok {
			return
		}
		_, objectID, _ := a.AuditResource()
		before, ok := snapshots[objectID]
		if !ok {
			return
		}
		c.record(tx, audit.ActionUpdate, a, audit.Diff(before, fa.AuditFields()))
	})
}

func (c *ChangeCapture) afterDelete(tx *gorm.DB) {
	if tx.Error != nil || tx.RowsAffected == 0 {
		return
	}
	eachAuditable(tx, func(_ reflect.Value, a Auditable) {
		c.record(tx, audit.ActionDelete, a, audit.Diff(fieldsOf(a), nil))
	})
}

func (c *ChangeCapture) record(tx *gorm.DB, action audit.Action, a Auditable, changes map[string]audit.FieldChange) {
	resourceType, objectID, repr := a.AuditResource()
	inTx := New(tx.Session(&gorm.Session{NewDB: true}))
	_, _, err := c.recorder.WithStore(inTx).Record(tx.Statement.Context, audit.Change{
		Action:       action,
		ResourceType: resourceType,
		ObjectID:     objectID,
		ObjectRepr:   repr,
		Changes:      changes,
	})
	if err != nil {
		_ = tx.AddError(fmt.Errorf("store: capture %s %s/%s: %w", action, resourceType, objectID, err))
	}
}

func fieldsOf(a Auditable) map[string]any {
	if fa, ok := a.(FieldAuditable); ok {
		return fa.AuditFields()
	}
	return nil
}

// eachAuditable calls fn for every Auditable value the statement operates
// on: the model itself or each element of a slice.
func eachAuditable(tx *gorm.DB, fn func(reflect.Value, Auditable)) {
	rv := tx.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			visit(rv.Index(i), fn)
		}
	case reflect.Struct:
		visit(rv, fn)
	}
}

func visit(rv reflect.Value, fn func(reflect.Value, Auditable)) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}
	var v any
	if rv.CanAddr() {
		v = rv.Addr().Interface()
	} else {
		v = rv.Interface()
	}
	if a, ok := v.(Auditable); ok {
		fn(rv, a)
	}
}
