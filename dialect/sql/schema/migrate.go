package schema

import (
	"context"
	"fmt"
	"log/slog"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sql"
)

// Migrate applies a table layout to a database.
type Migrate struct {
	drv      *sql.Driver
	logger   *slog.Logger
	validate []ValidateOption
	force    bool
}

// MigrateOption configures a Migrate.
type MigrateOption func(*Migrate)

// WithLogger sets the logger reporting applied statements.
func WithLogger(l *slog.Logger) MigrateOption {
	return func(m *Migrate) { m.logger = l }
}

// WithValidateOptions relaxes the checks run on the computed diff.
func WithValidateOptions(opts ...ValidateOption) MigrateOption {
	return func(m *Migrate) { m.validate = append(m.validate, opts...) }
}

// WithForce applies changes even when the diff has breaking changes.
func WithForce() MigrateOption {
	return func(m *Migrate) { m.force = true }
}

// NewMigrate returns a Migrate for the database behind drv.
func NewMigrate(drv *sql.Driver, opts ...MigrateOption) *Migrate {
	m := &Migrate{drv: drv, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Plan describes the changes needed to reach a layout.
type Plan struct {
	Statements []string
	Validation *ValidationResult
	changes    []atlas.Change
}

// Plan computes the statements that migrate the database to tables
// without executing them.
func (m *Migrate) Plan(ctx context.Context, tables []*Table) (*Plan, error) {
	drv, err := m.atlasDriver()
	if err != nil {
		return nil, err
	}
	current, err := drv.InspectSchema(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("sql/schema: inspect: %w", err)
	}
	desired := toAtlas(current.Name, tables)
	changes, err := drv.SchemaDiff(current, desired)
	if err != nil {
		return nil, fmt.Errorf("sql/schema: diff: %w", err)
	}
	p := &Plan{
		Validation: ValidateDiff(fromAtlas(current), tables, m.validate...),
		changes:    changes,
	}
	if len(changes) == 0 {
		return p, nil
	}
	ap, err := drv.PlanChanges(ctx, "relgraph", changes)
	if err != nil {
		return nil, fmt.Errorf("sql/schema: plan: %w", err)
	}
	for _, c := range ap.Changes {
		p.Statements = append(p.Statements, c.Cmd)
	}
	return p, nil
}

// Create migrates the database to tables. Breaking changes are rejected
// unless WithForce or the matching validate options are set.
func (m *Migrate) Create(ctx context.Context, tables []*Table) (*Plan, error) {
	p, err := m.Plan(ctx, tables)
	if err != nil {
		return nil, err
	}
	if p.Validation.HasErrors() && !m.force {
		return p, fmt.Errorf("sql/schema: refusing to migrate:\n%s", p.Validation)
	}
	for _, w := range p.Validation.Warnings {
		m.logger.WarnContext(ctx, "migration warning", "table", w.Table, "column", w.Column, "message", w.Message)
	}
	if len(p.changes) == 0 {
		return p, nil
	}
	drv, err := m.atlasDriver()
	if err != nil {
		return nil, err
	}
	if err := drv.ApplyChanges(ctx, p.changes); err != nil {
		return nil, fmt.Errorf("sql/schema: apply: %w", err)
	}
	m.logger.InfoContext(ctx, "schema migrated", "statements", len(p.Statements))
	return p, nil
}

func (m *Migrate) atlasDriver() (migrate.Driver, error) {
	switch d := m.drv.Dialect(); d {
	case dialect.SQLite:
		return sqlite.Open(m.drv.DB())
	case dialect.Postgres:
		return postgres.Open(m.drv.DB())
	case dialect.MySQL:
		return mysql.Open(m.drv.DB())
	default:
		return nil, fmt.Errorf("sql/schema: unsupported dialect %q", d)
	}
}

// toAtlas converts tables to an Atlas schema with the given name.
func toAtlas(name string, tables []*Table) *atlas.Schema {
	s := atlas.New(name)
	byName := make(map[string]*atlas.Table, len(tables))
	cols := make(map[*Column]*atlas.Column)
	for _, t := range tables {
		at := atlas.NewTable(t.Name)
		for _, c := range t.Columns {
			ac := atlasColumn(c)
			cols[c] = ac
			at.AddColumns(ac)
		}
		if len(t.PrimaryKey) > 0 {
			pk := make([]*atlas.Column, len(t.PrimaryKey))
			for i, c := range t.PrimaryKey {
				pk[i] = cols[c]
			}
			at.SetPrimaryKey(atlas.NewPrimaryKey(pk...))
		}
		for _, idx := range t.Indexes {
			ai := atlas.NewIndex(idx.Name).SetUnique(idx.Unique)
			for _, c := range idx.Columns {
				ai.AddColumns(cols[c])
			}
			at.AddIndexes(ai)
		}
		byName[t.Name] = at
		s.AddTables(at)
	}
	for _, t := range tables {
		at := byName[t.Name]
		for _, fk := range t.ForeignKeys {
			afk := atlas.NewForeignKey(fk.Symbol).
				SetRefTable(byName[fk.RefTable.Name]).
				SetOnDelete(atlas.NoAction)
			for _, c := range fk.Columns {
				afk.AddColumns(cols[c])
			}
			for _, c := range fk.RefColumns {
				afk.AddRefColumns(cols[c])
			}
			at.AddForeignKeys(afk)
		}
	}
	return s
}

func atlasColumn(c *Column) *atlas.Column {
	var ac *atlas.Column
	switch c.Type {
	case TypeBytes:
		ac = atlas.NewBinaryColumn(c.Name, c.Raw)
	case TypeInt:
		ac = atlas.NewIntColumn(c.Name, c.Raw)
	default:
		var opts []atlas.StringOption
		if c.Size > 0 && c.Raw != "text" {
			opts = append(opts, atlas.StringSize(int(c.Size)))
		}
		ac = atlas.NewStringColumn(c.Name, c.Raw, opts...)
	}
	return ac.SetNull(c.Nullable)
}

// fromAtlas converts an inspected schema to tables for diff validation.
func fromAtlas(s *atlas.Schema) []*Table {
	tables := make([]*Table, 0, len(s.Tables))
	for _, at := range s.Tables {
		t := &Table{Name: at.Name}
		for _, ac := range at.Columns {
			c := &Column{Name: ac.Name}
			if ac.Type != nil {
				c.Nullable = ac.Type.Null
				c.Raw = ac.Type.Raw
				switch ct := ac.Type.Type.(type) {
				case *atlas.StringType:
					c.Type, c.Size = TypeString, int64(ct.Size)
				case *atlas.BinaryType:
					c.Type = TypeBytes
				case *atlas.IntegerType:
					c.Type = TypeInt
				}
			}
			t.Columns = append(t.Columns, c)
		}
		if at.PrimaryKey != nil {
			for _, p := range at.PrimaryKey.Parts {
				if c, ok := t.Column(columnName(p)); ok {
					t.PrimaryKey = append(t.PrimaryKey, c)
				}
			}
		}
		for _, ai := range at.Indexes {
			idx := &Index{Name: ai.Name, Unique: ai.Unique}
			for _, p := range ai.Parts {
				if c, ok := t.Column(columnName(p)); ok {
					idx.Columns = append(idx.Columns, c)
				}
			}
			t.Indexes = append(t.Indexes, idx)
		}
		tables = append(tables, t)
	}
	return tables
}

func columnName(p *atlas.IndexPart) string {
	if p.C == nil {
		return ""
	}
	return p.C.Name
}
