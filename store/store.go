// Package store defines the primitive read and write operations the engine
// performs inside a transaction.
//
// Edges are addressed by relation member. Both ends of a two-way relation
// see the same edges; implementations store them once under the member
// returned by RelationMember.Storage and reverse them for the other end.
package store

import (
	"context"
	"errors"

	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
)

// ErrTxDone is returned by operations on a committed or rolled back
// transaction.
var ErrTxDone = errors.New("store: transaction has already been committed or rolled back")

// ErrReadOnly is returned by the writes of a read-only transaction.
var ErrReadOnly = errors.New("store: write in a read-only transaction")

// Reader reads instances and edges visible to a transaction.
type Reader interface {
	// Get returns the instance with the given id or a *relgraph.NotFoundError.
	Get(ctx context.Context, id string) (*entity.Instance, error)
	// GetMany returns the instances in the order of ids. Missing ids fail
	// with a *relgraph.NotFoundError.
	GetMany(ctx context.Context, ids []string) ([]*entity.Instance, error)
	// Instances returns every instance of t and its subtypes, ordered by id.
	Instances(ctx context.Context, t *schema.EntityType) ([]*entity.Instance, error)
	// Targets returns the ids linked from id through m, in insertion order.
	Targets(ctx context.Context, id string, m *schema.RelationMember) ([]string, error)
	// Sources returns the ids of instances linking to id through m.
	Sources(ctx context.Context, id string, m *schema.RelationMember) ([]string, error)
}

// Writer mutates instances and edges.
type Writer interface {
	// Insert stores a new instance.
	Insert(ctx context.Context, i *entity.Instance) error
	// Update replaces the stored attributes of an instance.
	Update(ctx context.Context, id string, attrs map[string]any) error
	// Delete removes the instances together with every incident edge.
	Delete(ctx context.Context, ids ...string) error
	// AddEdges links from to each of to through m. Existing edges fail with
	// a relgraph.ConstraintError.
	AddEdges(ctx context.Context, m *schema.RelationMember, from string, to ...string) error
	// RemoveEdges unlinks from and each of to. Missing edges are ignored.
	RemoveEdges(ctx context.Context, m *schema.RelationMember, from string, to ...string) error
}

// Tx is a store transaction.
type Tx interface {
	Reader
	Writer
	Commit() error
	Rollback() error
}

// Store opens transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// ReadBeginner is implemented by stores that open read-only transactions
// without waiting for running write transactions.
type ReadBeginner interface {
	BeginRead(ctx context.Context) (Tx, error)
}

// BeginRead starts a transaction that is only used for reading. Stores that
// do not implement ReadBeginner start a regular transaction.
func BeginRead(ctx context.Context, s Store) (Tx, error) {
	if rb, ok := s.(ReadBeginner); ok {
		return rb.BeginRead(ctx)
	}
	return s.Begin(ctx)
}

// Count returns the number of edges of id through m.
func Count(ctx context.Context, r Reader, id string, m *schema.RelationMember) (int, error) {
	ids, err := r.Targets(ctx, id, m)
	return len(ids), err
}

// Exists reports if an instance with the given id exists.
func Exists(ctx context.Context, r Reader, id string) (bool, error) {
	_, err := r.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}
