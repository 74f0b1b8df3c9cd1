// Package mixin provides reusable attribute sets for relgraph entity types.
//
// These mixins are OPTIONAL and provided as convenient starting points.
//
// Available mixins:
//   - CreateTime: Adds created_at timestamp attribute
//   - UpdateTime: Adds updated_at timestamp attribute
//   - Time: Combines CreateTime and UpdateTime
//   - SoftDelete: Adds deleted_at attribute for soft deletion
//   - TenantID: Adds tenant_id attribute for multi-tenancy
//   - TimeSoftDelete: Combines Time and SoftDelete
//
// Usage:
//
//	schema.NewBuilder(1).
//	    Entity("Car",
//	        schema.Fields(field.String("name")),
//	        mixin.Of(mixin.Time{}, mixin.SoftDelete{}),
//	    )
//
// YAML schemas name mixins with the keys accepted by Lookup:
//
//	- name: Car
//	  mixins: [time, soft_delete]
//
// Timestamps are not filled by the store. Stamp and Touch set them on
// creation payloads and update attributes.
package mixin

import (
	"time"

	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/field"
)

// Attribute names used by the mixins.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
	DeletedAt = "deleted_at"
	Tenant    = "tenant_id"
)

// Mixin is a set of attributes shared by several entity types.
type Mixin interface {
	Fields() []schema.Field
}

// Of returns an option adding the attributes of ms to an entity type.
func Of(ms ...Mixin) schema.Option {
	var fs []schema.Field
	for _, m := range ms {
		fs = append(fs, m.Fields()...)
	}
	return schema.Fields(fs...)
}

// CreateTime adds the created_at time attribute.
type CreateTime struct{}

// Fields of the create time mixin.
func (CreateTime) Fields() []schema.Field {
	return []schema.Field{
		field.Time(CreatedAt).Optional().Comment("Set by Stamp on creation."),
	}
}

// UpdateTime adds the updated_at time attribute.
type UpdateTime struct{}

// Fields of the update time mixin.
func (UpdateTime) Fields() []schema.Field {
	return []schema.Field{
		field.Time(UpdatedAt).Optional().Comment("Set by Stamp and Touch."),
	}
}

// Time composes CreateTime and UpdateTime mixins.
type Time struct{}

// Fields of the time mixin.
func (Time) Fields() []schema.Field {
	return append(
		CreateTime{}.Fields(),
		UpdateTime{}.Fields()...,
	)
}

// SoftDelete adds a deleted_at attribute for instances that are marked
// instead of being removed.
type SoftDelete struct{}

// Fields of the SoftDelete mixin.
func (SoftDelete) Fields() []schema.Field {
	return []schema.Field{
		field.Time(DeletedAt).Optional(),
	}
}

// TenantID adds a required tenant_id attribute, checked against the
// viewer by privacy.TenantRule.
type TenantID struct{}

// Fields of the TenantID mixin.
func (TenantID) Fields() []schema.Field {
	return []schema.Field{
		field.String(Tenant),
	}
}

// TimeSoftDelete composes Time and SoftDelete mixins.
type TimeSoftDelete struct{}

// Fields of the TimeSoftDelete mixin.
func (TimeSoftDelete) Fields() []schema.Field {
	return append(
		Time{}.Fields(),
		SoftDelete{}.Fields()...,
	)
}

var registry = map[string]Mixin{
	"create_time":      CreateTime{},
	"update_time":      UpdateTime{},
	"time":             Time{},
	"soft_delete":      SoftDelete{},
	"tenant_id":        TenantID{},
	"time_soft_delete": TimeSoftDelete{},
}

// Lookup returns the mixin with the given name.
func Lookup(name string) (Mixin, bool) {
	m, ok := registry[name]
	return m, ok
}

func hasTime(t *schema.EntityType, name string) bool {
	a, ok := t.Attribute(name)
	return ok && a.Type == field.TypeTime && !a.IsDerived()
}

// Stamp sets created_at and updated_at on every node of the payload tree
// whose type declares them and that does not carry a value yet. Unknown
// types are left for the create call to report.
func Stamp(s *schema.Schema, p *entity.Payload, now time.Time) {
	_ = p.Walk(func(_ *entity.Payload, _ string, n *entity.Payload) error {
		t, ok := s.Type(n.Type)
		if !ok {
			return nil
		}
		for _, name := range []string{CreatedAt, UpdatedAt} {
			if _, set := n.Attrs[name]; !set && hasTime(t, name) {
				n.Set(name, now)
			}
		}
		return nil
	})
}

// Touch sets updated_at in attrs when t declares it. attrs may be nil.
func Touch(t *schema.EntityType, attrs map[string]any, now time.Time) map[string]any {
	if !hasTime(t, UpdatedAt) {
		return attrs
	}
	if attrs == nil {
		attrs = make(map[string]any, 1)
	}
	if _, set := attrs[UpdatedAt]; !set {
		attrs[UpdatedAt] = now
	}
	return attrs
}
