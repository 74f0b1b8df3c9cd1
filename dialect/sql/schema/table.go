// Package schema derives the SQL table layout of an entity schema and
// migrates databases to it with Atlas.
package schema

import (
	"fmt"

	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sqlschema"
	"github.com/syssam/relgraph/schema"
)

// ColumnType is the logical type of a column.
type ColumnType uint8

// Column types used by the store layout.
const (
	TypeString ColumnType = iota + 1
	TypeBytes
	TypeInt
)

// Column describes a table column.
type Column struct {
	Name     string
	Type     ColumnType
	Raw      string // Database type, e.g. "bytea".
	Size     int64
	Nullable bool
	Unique   bool
	Default  any
}

// Index describes a table index.
type Index struct {
	Name    string
	Unique  bool
	Columns []*Column
}

// ForeignKey describes a foreign key constraint.
type ForeignKey struct {
	Symbol     string
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
}

// Table describes a table.
type Table struct {
	Name        string
	Columns     []*Column
	PrimaryKey  []*Column
	Indexes     []*Index
	ForeignKeys []*ForeignKey
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (t *Table) addColumns(cs ...*Column) *Table {
	t.Columns = append(t.Columns, cs...)
	return t
}

// rawType returns the database type of a logical column type.
func rawType(d string, t ColumnType) string {
	switch d {
	case dialect.Postgres:
		return map[ColumnType]string{TypeString: "character varying", TypeBytes: "bytea", TypeInt: "bigint"}[t]
	case dialect.MySQL:
		return map[ColumnType]string{TypeString: "varchar", TypeBytes: "longblob", TypeInt: "bigint"}[t]
	default:
		return map[ColumnType]string{TypeString: "text", TypeBytes: "blob", TypeInt: "integer"}[t]
	}
}

func column(d, name string, t ColumnType) *Column {
	c := &Column{Name: name, Type: t, Raw: rawType(d, t)}
	if t == TypeString {
		// Identifiers are UUID strings and type names.
		c.Size = 255
	}
	return c
}

// Tables returns the table layout storing instances of s.
func Tables(s *schema.Schema, n *sqlschema.Naming, d string) ([]*Table, error) {
	if n == nil {
		n = sqlschema.NewNaming()
	}
	instances := &Table{Name: sqlschema.InstancesTable}
	iid := column(d, sqlschema.ColumnID, TypeString)
	ityp := column(d, sqlschema.ColumnType, TypeString)
	instances.addColumns(iid, ityp)
	instances.PrimaryKey = []*Column{iid}
	instances.Indexes = []*Index{{Name: "instances_type", Columns: []*Column{ityp}}}
	tables := []*Table{instances}

	for _, t := range s.Types() {
		if t.Abstract {
			continue
		}
		tt := &Table{Name: n.Table(t)}
		id := column(d, sqlschema.ColumnID, TypeString)
		attrs := column(d, sqlschema.ColumnAttrs, TypeBytes)
		attrs.Nullable = true
		tt.addColumns(id, attrs)
		tt.PrimaryKey = []*Column{id}
		tt.ForeignKeys = []*ForeignKey{{
			Symbol:     tt.Name + "_instance",
			Columns:    []*Column{id},
			RefTable:   instances,
			RefColumns: []*Column{iid},
		}}
		tables = append(tables, tt)
	}
	for _, m := range s.StoredMembers() {
		et := &Table{Name: n.EdgeTable(m)}
		from := column(d, sqlschema.ColumnFrom, TypeString)
		to := column(d, sqlschema.ColumnTo, TypeString)
		seq := column(d, sqlschema.ColumnSeq, TypeInt)
		et.addColumns(from, to, seq)
		et.PrimaryKey = []*Column{from, to}
		et.Indexes = []*Index{{Name: et.Name + "_" + sqlschema.ColumnTo, Columns: []*Column{to}}}
		et.ForeignKeys = []*ForeignKey{
			{Symbol: et.Name + "_from", Columns: []*Column{from}, RefTable: instances, RefColumns: []*Column{iid}},
			{Symbol: et.Name + "_to", Columns: []*Column{to}, RefTable: instances, RefColumns: []*Column{iid}},
		}
		tables = append(tables, et)
	}
	if r := ValidateSchema(tables); r.HasErrors() {
		return nil, fmt.Errorf("sql/schema: invalid layout:\n%s", r)
	}
	return tables, nil
}
