package sqlstore

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sql"
	sqlschema "github.com/syssam/relgraph/dialect/sql/schema"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
	"github.com/syssam/relgraph/store/storetest"
)

// openSQLite returns a store on a fresh in-memory SQLite database with the
// tables of s.
func openSQLite(t *testing.T, s *schema.Schema) *Store {
	t.Helper()
	db, err := stdsql.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	drv := sql.OpenDB(dialect.SQLite, db)
	tables, err := sqlschema.Tables(s, nil, dialect.SQLite)
	require.NoError(t, err)
	_, err = sqlschema.NewMigrate(drv).Create(context.Background(), tables)
	require.NoError(t, err)
	st, err := New(drv, s)
	require.NoError(t, err)
	return st
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, s *schema.Schema) store.Store { return openSQLite(t, s) })
}

func TestConformanceWithStats(t *testing.T) {
	var st *sql.StatsDriver
	storetest.Run(t, func(t *testing.T, s *schema.Schema) store.Store {
		inner := openSQLite(t, s)
		st = sql.NewStatsDriver(inner.drv.(*sql.Driver))
		s2, err := New(st, s)
		require.NoError(t, err)
		return s2
	})
	assert.Positive(t, st.QueryStats().Stats().Transactions)
}

func TestBatchesAcrossChunks(t *testing.T) {
	s := storetest.Schema()
	st := openSQLite(t, s)
	ctx := context.Background()
	n := 2*maxBatch + 7
	ids := make([]string, n)
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	for k := range ids {
		ids[k] = fmt.Sprintf("w%04d", k)
		require.NoError(t, tx.Insert(ctx, &entity.Instance{ID: ids[k], Type: s.MustType("Wheel"), Attrs: map[string]any{"position": int64(k)}}))
	}
	require.NoError(t, tx.Commit())

	tx, err = st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	reversed := slices.Clone(ids)
	slices.Reverse(reversed)
	got, err := tx.GetMany(ctx, reversed)
	require.NoError(t, err)
	require.Len(t, got, n)
	assert.Equal(t, reversed, entity.IDs(got))

	err = tx.Delete(ctx, append(slices.Clone(ids), "missing")...)
	assert.True(t, relgraph.IsNotFound(err), "got %v", err)
	require.NoError(t, tx.Delete(ctx, ids...))
	left, err := tx.Instances(ctx, s.MustType("Wheel"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestNewUnsupportedDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, err = New(sql.OpenDB("oracle", db), storetest.Schema())
	assert.Error(t, err)
}

func TestPostgresStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := storetest.Schema()
	st, err := New(sql.OpenDB(dialect.Postgres, db), s)
	require.NoError(t, err)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "instances" \("id", "type"\) VALUES \(\$1, \$2\)`).
		WithArgs("w1", "Wheel").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "wheels" \("attrs", "id"\) VALUES \(\$1, \$2\)`).
		WithArgs(sqlmock.AnyArg(), "w1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "instances"`).
		WithArgs("w1", "Wheel").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	w := &entity.Instance{ID: "w1", Type: s.MustType("Wheel"), Attrs: map[string]any{"position": int64(1)}}
	require.NoError(t, tx.Insert(ctx, w))
	err = tx.Insert(ctx, w)
	require.True(t, relgraph.IsConstraintError(err), "got %v", err)
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPairReversed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := storetest.Schema()
	st, err := New(sql.OpenDB(dialect.Postgres, db), s)
	require.NoError(t, err)
	ctx := context.Background()

	// Person.drives is stored under Car.driver with the columns swapped.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "from_id" AS "id" FROM "car_driver" WHERE \("to_id" = \$1\) ORDER BY "seq" ASC`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1").AddRow("c2"))
	mock.ExpectCommit()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	ids, err := tx.Targets(ctx, "p1", s.MustType("Person").MustMember("drives"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), store.ErrTxDone)
	_, err = tx.Targets(ctx, "p1", s.MustType("Person").MustMember("drives"))
	assert.ErrorIs(t, err, store.ErrTxDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeDropsUnknownAttributes(t *testing.T) {
	t.Parallel()
	s := storetest.Schema()
	b, err := encode(map[string]any{"position": 4, "color": "red"})
	require.NoError(t, err)
	i, err := decode(s.MustType("Wheel"), attrsRow{ID: "w1", Attrs: b})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"position": int64(4)}, i.Attrs)

	b, err = encode(map[string]any{"position": "four"})
	require.NoError(t, err)
	_, err = decode(s.MustType("Wheel"), attrsRow{ID: "w1", Attrs: b})
	assert.Error(t, err)

	b, err = encode(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}
