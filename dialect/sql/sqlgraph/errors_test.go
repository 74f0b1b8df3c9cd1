package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/relgraph"
)

type stateErr string

func (e stateErr) Error() string    { return "pg: " + string(e) }
func (e stateErr) SQLState() string { return string(e) }

func TestClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name               string
		err                error
		unique, fk, check bool
	}{
		{name: "nil"},
		{name: "plain", err: errors.New("connection reset")},
		{name: "pq_unique", err: &pq.Error{Code: pgUniqueViolation}, unique: true},
		{name: "pq_fk", err: &pq.Error{Code: pgForeignKeyViolation}, fk: true},
		{name: "pgx_check", err: fmt.Errorf("exec: %w", stateErr(pgCheckViolation)), check: true},
		{name: "mysql_duplicate", err: &mysql.MySQLError{Number: mysqlDuplicateEntry}, unique: true},
		{name: "mysql_fk_child", err: &mysql.MySQLError{Number: mysqlForeignKeyChild}, fk: true},
		{name: "sqlite_unique", err: errors.New("constraint failed: UNIQUE constraint failed: car_wheels.from_id, car_wheels.to_id (2067)"), unique: true},
		{name: "sqlite_fk", err: errors.New("FOREIGN KEY constraint failed (787)"), fk: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.unique, IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.fk, IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.check, IsCheckConstraintError(tt.err))
			assert.Equal(t, tt.unique || tt.fk || tt.check, IsConstraintError(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Wrap(nil, "insert"))

	plain := errors.New("disk full")
	assert.Same(t, plain, Wrap(plain, "insert"))

	cause := &pq.Error{Code: pgUniqueViolation}
	err := Wrap(cause, "add edge Car.wheels")
	assert.True(t, relgraph.IsConstraintError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "duplicate key")

	// Already classified errors pass through.
	assert.Equal(t, err, Wrap(err, "again"))
}
