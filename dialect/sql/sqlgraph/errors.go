// Package sqlgraph classifies driver errors raised while writing instances
// and edges.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/syssam/relgraph"
)

// IsConstraintError reports if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return relgraph.IsConstraintError(err) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// Wrap converts driver constraint violations into relgraph.ConstraintError
// and returns other errors unchanged. what names the rejected write.
func Wrap(err error, what string) error {
	if err == nil || relgraph.IsConstraintError(err) {
		return err
	}
	switch {
	case IsUniqueConstraintError(err):
		return relgraph.NewConstraintError(what+": duplicate key", err)
	case IsForeignKeyConstraintError(err):
		return relgraph.NewConstraintError(what+": dangling reference", err)
	case IsCheckConstraintError(err):
		return relgraph.NewConstraintError(what+": check failed", err)
	}
	return err
}

// errorCoder is implemented by pq.Error and some sqlite errors.
type errorCoder interface {
	Code() string
}

// errorNumberer is implemented by mysql.MySQLError.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is implemented by pgconn.PgError.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes (class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
	mysqlCheckViolation   = 3819
)

type violation struct {
	state   string
	numbers []uint16
	texts   []string
}

var (
	uniqueViolation = violation{
		state:   pgUniqueViolation,
		numbers: []uint16{mysqlDuplicateEntry},
		texts:   []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	}
	foreignKeyViolation = violation{
		state:   pgForeignKeyViolation,
		numbers: []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		texts:   []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	}
	checkViolation = violation{
		state:   pgCheckViolation,
		numbers: []uint16{mysqlCheckViolation},
		texts:   []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	}
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool { return uniqueViolation.match(err) }

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool { return foreignKeyViolation.match(err) }

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool { return checkViolation.match(err) }

func (v violation) match(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == v.state {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == v.state {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok {
		for _, n := range v.numbers {
			if e.Number() == n {
				return true
			}
		}
	}
	// Fallback for drivers that expose no codes (modernc sqlite).
	msg := err.Error()
	for _, s := range v.texts {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// asError extracts an error implementing T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}
