// Package sqlstore implements store.Store on a relational database.
//
// Every instance has a row in the instances table (id, type) and a row in
// the table of its concrete type holding the msgpack encoded attributes.
// Edges of each stored relation member live in their own table
// (from_id, to_id, seq). Use package dialect/sql/schema to create the
// tables.
package sqlstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"    // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	"github.com/jmoiron/sqlx"

	"github.com/syssam/relgraph/contrib/dataloader"
	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sql"
	"github.com/syssam/relgraph/dialect/sql/sqlgraph"
	"github.com/syssam/relgraph/dialect/sqlschema"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

// Store is a store.Store backed by a dialect.Driver.
type Store struct {
	drv    dialect.Driver
	schema *schema.Schema
	naming *sqlschema.Naming
	b      goqu.DialectWrapper
}

// Option configures a Store.
type Option func(*Store)

// WithNaming sets the table naming. It must match the naming the tables
// were created with.
func WithNaming(n *sqlschema.Naming) Option {
	return func(s *Store) { s.naming = n }
}

// New returns a store for the instances of s in the database behind drv.
func New(drv dialect.Driver, s *schema.Schema, opts ...Option) (*Store, error) {
	name, err := goquDialect(drv.Dialect())
	if err != nil {
		return nil, err
	}
	st := &Store{drv: drv, schema: s, naming: sqlschema.NewNaming(), b: goqu.Dialect(name)}
	for _, opt := range opts {
		opt(st)
	}
	return st, nil
}

func goquDialect(d string) (string, error) {
	switch d {
	case dialect.Postgres:
		return "postgres", nil
	case dialect.MySQL:
		return "mysql", nil
	case dialect.SQLite:
		return "sqlite3", nil
	}
	return "", fmt.Errorf("sqlstore: unsupported dialect %q", d)
}

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin: %w", err)
	}
	return &Tx{Store: s, tx: tx}, nil
}

// Close closes the driver.
func (s *Store) Close() error { return s.drv.Close() }

// Tx is a database transaction.
type Tx struct {
	*Store
	tx   dialect.Tx
	done bool
}

var _ store.Tx = (*Tx)(nil)

// Commit implements store.Tx.
func (tx *Tx) Commit() error {
	if tx.done {
		return store.ErrTxDone
	}
	tx.done = true
	return tx.tx.Commit()
}

// Rollback implements store.Tx.
func (tx *Tx) Rollback() error {
	if tx.done {
		return store.ErrTxDone
	}
	tx.done = true
	return tx.tx.Rollback()
}

// maxBatch bounds the number of identifiers bound in a single IN list.
const maxBatch = 500

type builder interface {
	ToSQL() (string, []any, error)
}

func (tx *Tx) query(ctx context.Context, ds builder, dest any) error {
	if tx.done {
		return store.ErrTxDone
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("sqlstore: build query: %w", err)
	}
	var rows sql.Rows
	if err := tx.tx.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	return sqlx.StructScan(rows, dest)
}

func (tx *Tx) exec(ctx context.Context, ds builder) (int64, error) {
	if tx.done {
		return 0, store.ErrTxDone
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: build statement: %w", err)
	}
	var res sql.Result
	if err := tx.tx.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type instanceRow struct {
	ID   string `db:"id"`
	Type string `db:"type"`
}

type idRow struct {
	ID string `db:"id"`
}

type seqRow struct {
	Seq int64 `db:"seq"`
}

type attrsRow struct {
	ID    string `db:"id"`
	Attrs []byte `db:"attrs"`
}

func (tx *Tx) typeOf(name string) (*schema.EntityType, error) {
	t, ok := tx.schema.Type(name)
	if !ok || t.Abstract {
		return nil, fmt.Errorf("sqlstore: stored type %q is not a concrete type of the schema", name)
	}
	return t, nil
}

func rowType(r instanceRow) string { return r.Type }

func rowIDs(rows []instanceRow) []string {
	ids := make([]string, len(rows))
	for k, r := range rows {
		ids[k] = r.ID
	}
	return ids
}

// instanceRows reads the type of the given instances in batches of at most
// maxBatch identifiers. Missing identifiers are left out.
func (tx *Tx) instanceRows(ctx context.Context, ids []string) ([]instanceRow, error) {
	var all []instanceRow
	for _, chunk := range dataloader.Chunks(ids, maxBatch) {
		var rows []instanceRow
		err := tx.query(ctx, tx.b.From(sqlschema.InstancesTable).
			Select(sqlschema.ColumnID, sqlschema.ColumnType).
			Where(goqu.Ex{sqlschema.ColumnID: chunk}).
			Prepared(true), &rows)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// loadBatch reads the given instances in no particular order. Missing
// identifiers are left out.
func (tx *Tx) loadBatch(ctx context.Context, ids []string) ([]*entity.Instance, error) {
	rows, err := tx.instanceRows(ctx, ids)
	if err != nil {
		return nil, err
	}
	byType := dataloader.GroupByKey(rows, rowType)
	names := entity.SortedKeys(byType)
	all := make([]*entity.Instance, 0, len(rows))
	for k, group := range dataloader.OrderGroupsByKeys(names, byType) {
		t, err := tx.typeOf(names[k])
		if err != nil {
			return nil, err
		}
		var attrs []attrsRow
		err = tx.query(ctx, tx.b.From(tx.naming.Table(t)).
			Select(sqlschema.ColumnID, sqlschema.ColumnAttrs).
			Where(goqu.Ex{sqlschema.ColumnID: rowIDs(group)}).
			Prepared(true), &attrs)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			i, err := decode(t, a)
			if err != nil {
				return nil, err
			}
			all = append(all, i)
		}
	}
	return all, nil
}

// Get implements store.Reader.
func (tx *Tx) Get(ctx context.Context, id string) (*entity.Instance, error) {
	is, err := tx.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return is[0], nil
}

// GetMany implements store.Reader.
func (tx *Tx) GetMany(ctx context.Context, ids []string) ([]*entity.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ordered, errs, err := dataloader.Load(ctx, ids, maxBatch, tx.loadBatch, func(i *entity.Instance) string { return i.ID })
	if err != nil {
		return nil, err
	}
	if k, err := dataloader.FirstError(errs); err != nil {
		return nil, store.NotFound(ids[k])
	}
	return ordered, nil
}

// Instances implements store.Reader.
func (tx *Tx) Instances(ctx context.Context, t *schema.EntityType) ([]*entity.Instance, error) {
	var out []*entity.Instance
	for _, u := range tx.schema.Concrete(t) {
		var attrs []attrsRow
		err := tx.query(ctx, tx.b.From(tx.naming.Table(u)).
			Select(sqlschema.ColumnID, sqlschema.ColumnAttrs).
			Order(goqu.I(sqlschema.ColumnID).Asc()).
			Prepared(true), &attrs)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			i, err := decode(u, a)
			if err != nil {
				return nil, err
			}
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// endpoints returns the edge table of m and the columns holding the owner
// and the target of m.
func (tx *Tx) endpoints(m *schema.RelationMember) (table, owner, target string) {
	sm, rev := m.Storage()
	table = tx.naming.EdgeTable(sm)
	if rev {
		return table, sqlschema.ColumnTo, sqlschema.ColumnFrom
	}
	return table, sqlschema.ColumnFrom, sqlschema.ColumnTo
}

func (tx *Tx) linked(ctx context.Context, table, by, sel, id string) ([]string, error) {
	var rows []idRow
	err := tx.query(ctx, tx.b.From(table).
		Select(goqu.C(sel).As(sqlschema.ColumnID)).
		Where(goqu.Ex{by: id}).
		Order(goqu.I(sqlschema.ColumnSeq).Asc()).
		Prepared(true), &rows)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for k, r := range rows {
		ids[k] = r.ID
	}
	return ids, nil
}

// Targets implements store.Reader.
func (tx *Tx) Targets(ctx context.Context, id string, m *schema.RelationMember) ([]string, error) {
	table, owner, target := tx.endpoints(m)
	return tx.linked(ctx, table, owner, target, id)
}

// Sources implements store.Reader.
func (tx *Tx) Sources(ctx context.Context, id string, m *schema.RelationMember) ([]string, error) {
	table, owner, target := tx.endpoints(m)
	return tx.linked(ctx, table, target, owner, id)
}

// Insert implements store.Writer.
func (tx *Tx) Insert(ctx context.Context, i *entity.Instance) error {
	attrs, err := encode(i.Attrs)
	if err != nil {
		return err
	}
	_, err = tx.exec(ctx, tx.b.Insert(sqlschema.InstancesTable).
		Rows(goqu.Record{sqlschema.ColumnID: i.ID, sqlschema.ColumnType: i.Type.Name}).
		Prepared(true))
	if err != nil {
		return sqlgraph.Wrap(err, i.String())
	}
	_, err = tx.exec(ctx, tx.b.Insert(tx.naming.Table(i.Type)).
		Rows(goqu.Record{sqlschema.ColumnID: i.ID, sqlschema.ColumnAttrs: attrs}).
		Prepared(true))
	return sqlgraph.Wrap(err, i.String())
}

// Update implements store.Writer.
func (tx *Tx) Update(ctx context.Context, id string, attrs map[string]any) error {
	rows, err := tx.instanceRows(ctx, []string{id})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return store.NotFound(id)
	}
	t, err := tx.typeOf(rows[0].Type)
	if err != nil {
		return err
	}
	b, err := encode(attrs)
	if err != nil {
		return err
	}
	_, err = tx.exec(ctx, tx.b.Update(tx.naming.Table(t)).
		Set(goqu.Record{sqlschema.ColumnAttrs: b}).
		Where(goqu.Ex{sqlschema.ColumnID: id}).
		Prepared(true))
	return sqlgraph.Wrap(err, t.Name+"("+id+")")
}

// Delete implements store.Writer.
func (tx *Tx) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := tx.instanceRows(ctx, ids)
	if err != nil {
		return err
	}
	found := make(map[string]bool, len(rows))
	for _, r := range rows {
		found[r.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return store.NotFound(id)
		}
	}
	chunks := dataloader.Chunks(ids, maxBatch)
	for _, m := range tx.schema.StoredMembers() {
		for _, chunk := range chunks {
			_, err := tx.exec(ctx, tx.b.Delete(tx.naming.EdgeTable(m)).
				Where(goqu.Or(
					goqu.C(sqlschema.ColumnFrom).In(chunk),
					goqu.C(sqlschema.ColumnTo).In(chunk),
				)).
				Prepared(true))
			if err != nil {
				return err
			}
		}
	}
	byType := dataloader.GroupByKey(rows, rowType)
	names := entity.SortedKeys(byType)
	for k, group := range dataloader.OrderGroupsByKeys(names, byType) {
		t, err := tx.typeOf(names[k])
		if err != nil {
			return err
		}
		for _, chunk := range dataloader.Chunks(rowIDs(group), maxBatch) {
			if _, err := tx.exec(ctx, tx.b.Delete(tx.naming.Table(t)).
				Where(goqu.Ex{sqlschema.ColumnID: chunk}).
				Prepared(true)); err != nil {
				return sqlgraph.Wrap(err, "delete "+names[k])
			}
		}
	}
	for _, chunk := range chunks {
		if _, err := tx.exec(ctx, tx.b.Delete(sqlschema.InstancesTable).
			Where(goqu.Ex{sqlschema.ColumnID: chunk}).
			Prepared(true)); err != nil {
			return sqlgraph.Wrap(err, "delete instances")
		}
	}
	return nil
}

// AddEdges implements store.Writer.
func (tx *Tx) AddEdges(ctx context.Context, m *schema.RelationMember, from string, to ...string) error {
	if len(to) == 0 {
		return nil
	}
	table, owner, target := tx.endpoints(m)
	var seq []seqRow
	err := tx.query(ctx, tx.b.From(table).
		Select(goqu.COALESCE(goqu.MAX(sqlschema.ColumnSeq), 0).As(sqlschema.ColumnSeq)).
		Prepared(true), &seq)
	if err != nil {
		return err
	}
	next := int64(1)
	if len(seq) > 0 {
		next = seq[0].Seq + 1
	}
	for k, t := range to {
		_, err := tx.exec(ctx, tx.b.Insert(table).
			Rows(goqu.Record{owner: from, target: t, sqlschema.ColumnSeq: next + int64(k)}).
			Prepared(true))
		if err != nil {
			return sqlgraph.Wrap(err, fmt.Sprintf("%s: edge %s -> %s", m, from, t))
		}
	}
	return nil
}

// RemoveEdges implements store.Writer.
func (tx *Tx) RemoveEdges(ctx context.Context, m *schema.RelationMember, from string, to ...string) error {
	if len(to) == 0 {
		return nil
	}
	table, owner, target := tx.endpoints(m)
	_, err := tx.exec(ctx, tx.b.Delete(table).
		Where(goqu.Ex{owner: from, target: to}).
		Prepared(true))
	return err
}
