package schema

import (
	"context"
	stdsql "database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sql"
	"github.com/syssam/relgraph/dialect/sqlschema"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/schema/field"
)

func carSchema(withTruck bool) *schema.Schema {
	b := schema.NewBuilder(1).
		Entity("Vehicle", schema.Abstract(), schema.Fields(field.String("name"))).
		Entity("Car", schema.Extends("Vehicle"), schema.Edges(edge.Contains("wheels", "Wheel").Bounds(0, 5))).
		Entity("Wheel", schema.Fields(field.Int("position").Optional()))
	if withTruck {
		b.Entity("Truck", schema.Extends("Vehicle"))
	}
	return b.MustBuild()
}

func TestTables(t *testing.T) {
	t.Parallel()
	tables, err := Tables(carSchema(true), nil, dialect.SQLite)
	require.NoError(t, err)
	var names []string
	for _, tt := range tables {
		names = append(names, tt.Name)
	}
	// Abstract types have no table.
	assert.Equal(t, []string{"instances", "cars", "wheels", "trucks", "car_wheels"}, names)

	edges := tables[4]
	assert.Len(t, edges.PrimaryKey, 2)
	assert.Len(t, edges.ForeignKeys, 2)
	attrs, ok := tables[1].Column(sqlschema.ColumnAttrs)
	require.True(t, ok)
	assert.True(t, attrs.Nullable)
	assert.Equal(t, "blob", attrs.Raw)

	pg, err := Tables(carSchema(false), nil, dialect.Postgres)
	require.NoError(t, err)
	attrs, _ = pg[1].Column(sqlschema.ColumnAttrs)
	assert.Equal(t, "bytea", attrs.Raw)
}

func TestTablesNameClash(t *testing.T) {
	t.Parallel()
	s := schema.NewBuilder(1).
		Entity("Car", schema.Edges(edge.To("wheels", "Wheel"))).
		Entity("Wheel").
		Entity("CarWheel").
		MustBuild()
	_, err := Tables(s, sqlschema.NewNaming(sqlschema.WithTable("CarWheel", "car_wheels")), dialect.SQLite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate table name")
}

func TestMigrateSQLite(t *testing.T) {
	db, err := stdsql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()
	drv := sql.OpenDB(dialect.SQLite, db)
	ctx := context.Background()

	tables, err := Tables(carSchema(true), nil, dialect.SQLite)
	require.NoError(t, err)
	m := NewMigrate(drv)

	p, err := m.Plan(ctx, tables)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Statements)
	assert.False(t, p.Validation.HasErrors())

	_, err = m.Create(ctx, tables)
	require.NoError(t, err)
	for _, name := range []string{"instances", "cars", "trucks", "wheels", "car_wheels"} {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n), name)
	}

	p, err = m.Plan(ctx, tables)
	require.NoError(t, err)
	assert.Empty(t, p.Statements, "migration is idempotent")

	// Removing the Truck type drops its table.
	smaller, err := Tables(carSchema(false), nil, dialect.SQLite)
	require.NoError(t, err)
	_, err = m.Create(ctx, smaller)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trucks: table will be dropped")

	_, err = NewMigrate(drv, WithValidateOptions(AllowDropTable())).Create(ctx, smaller)
	require.NoError(t, err)
	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trucks").Scan(&n)
	assert.Error(t, err)
}

func TestValidateDiff(t *testing.T) {
	t.Parallel()
	id := &Column{Name: "id", Type: TypeString}
	attrs := &Column{Name: "attrs", Type: TypeBytes, Nullable: true}
	current := []*Table{
		{Name: "cars", Columns: []*Column{id, attrs, {Name: "legacy", Type: TypeInt}}, PrimaryKey: []*Column{id}},
		{Name: "boats", Columns: []*Column{id}, PrimaryKey: []*Column{id}},
		{Name: "goose_db_version", Columns: []*Column{id}},
	}
	desired := []*Table{
		{Name: "cars", Columns: []*Column{id, {Name: "attrs", Type: TypeInt}}, PrimaryKey: []*Column{id}},
	}

	r := ValidateDiff(current, desired, IgnoreTables(func(name string) bool { return name == "goose_db_version" }))
	require.True(t, r.HasErrors())
	assert.True(t, r.HasBreakingChanges())
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	assert.ElementsMatch(t, []string{
		"cars.legacy: column will be dropped",
		"cars.attrs: column type changing from bytes to int",
		"cars.attrs: column changing from NULL to NOT NULL may fail if column has NULL values",
		"boats: table will be dropped",
	}, msgs)

	r = ValidateDiff(current[:2], current[:1], AllowDropTable())
	assert.False(t, r.HasErrors())
	assert.True(t, r.HasWarnings())
	assert.Contains(t, r.String(), "[BREAKING]")
	assert.Equal(t, "No issues found", ValidateDiff(nil, desired).String())
}

func TestValidateTable(t *testing.T) {
	t.Parallel()
	id := &Column{Name: "id"}
	r := ValidateTable(&Table{
		Name:    "cars",
		Columns: []*Column{id, {Name: "id"}},
		Indexes: []*Index{{Name: "i", Columns: []*Column{{Name: "missing"}}}, {Name: "i"}},
	})
	assert.Len(t, r.Errors, 3)
	assert.Len(t, r.Warnings, 1)
}
