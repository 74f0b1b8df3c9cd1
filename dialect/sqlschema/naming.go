// Package sqlschema maps entity types and relation members to SQL table
// and column names.
//
// Instances are stored one row per concrete entity type, with their stored
// attributes encoded in a single blob column. A shared index table maps
// every identifier to its concrete type, and every stored relation member
// owns an edge table:
//
//	instances(id, type)
//	cars(id, attrs)            -- Car
//	car_wheels(from_id, to_id, seq)  -- Car.wheels
//
// Table names default to the pluralized snake case type name and may be
// overridden with WithTable.
package sqlschema

import (
	"github.com/go-openapi/inflect"

	"github.com/syssam/relgraph/schema"
)

// Shared table and column names.
const (
	InstancesTable = "instances"

	ColumnID    = "id"
	ColumnType  = "type"
	ColumnAttrs = "attrs"
	ColumnFrom  = "from_id"
	ColumnTo    = "to_id"
	ColumnSeq   = "seq"
)

// Naming resolves table names. The zero value is not usable; use NewNaming.
type Naming struct {
	tables map[string]string
	edges  map[string]string
}

// Option configures a Naming.
type Option func(*Naming)

// WithTable overrides the table name of the named entity type.
func WithTable(typeName, table string) Option {
	return func(n *Naming) {
		n.tables[typeName] = table
	}
}

// WithEdgeTable overrides the edge table of a member, given by its
// qualified name (Owner.member).
func WithEdgeTable(member, table string) Option {
	return func(n *Naming) {
		n.edges[member] = table
	}
}

// NewNaming returns a Naming with the given overrides.
func NewNaming(opts ...Option) *Naming {
	n := &Naming{tables: make(map[string]string), edges: make(map[string]string)}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Table returns the table holding the instances of the concrete type t.
func (n *Naming) Table(t *schema.EntityType) string {
	if name, ok := n.tables[t.Name]; ok {
		return name
	}
	return inflect.Pluralize(inflect.Underscore(t.Name))
}

// EdgeTable returns the edge table of the member under which m is stored.
func (n *Naming) EdgeTable(m *schema.RelationMember) string {
	sm, _ := m.Storage()
	if name, ok := n.edges[sm.String()]; ok {
		return name
	}
	return inflect.Underscore(sm.Owner.Name) + "_" + inflect.Underscore(sm.Name)
}
