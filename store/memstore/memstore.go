// Package memstore provides an in-memory transactional store.
//
// A transaction works on a private copy of the committed state and swaps it
// in on commit. Transactions are serialized: Begin blocks until the previous
// transaction finished. Read-only transactions work on a snapshot of the
// committed state and never wait.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

type edges struct {
	out map[string][]string
	in  map[string][]string
}

func newEdges() *edges {
	return &edges{out: make(map[string][]string), in: make(map[string][]string)}
}

type state struct {
	instances map[string]*entity.Instance
	edges     map[string]*edges // By storage member.
}

func newState() *state {
	return &state{instances: make(map[string]*entity.Instance), edges: make(map[string]*edges)}
}

func (s *state) clone() *state {
	c := &state{
		instances: make(map[string]*entity.Instance, len(s.instances)),
		edges:     make(map[string]*edges, len(s.edges)),
	}
	for id, i := range s.instances {
		c.instances[id] = i.Clone()
	}
	for name, e := range s.edges {
		ce := &edges{out: make(map[string][]string, len(e.out)), in: make(map[string][]string, len(e.in))}
		for k, v := range e.out {
			ce.out[k] = slices.Clone(v)
		}
		for k, v := range e.in {
			ce.in[k] = slices.Clone(v)
		}
		c.edges[name] = ce
	}
	return c
}

func (s *state) edgesOf(m *schema.RelationMember) (*edges, bool) {
	sm, rev := m.Storage()
	e, ok := s.edges[sm.String()]
	if !ok {
		e = newEdges()
		s.edges[sm.String()] = e
	}
	return e, rev
}

// Store is an in-memory store.Store.
type Store struct {
	sem       chan struct{}
	mu        sync.RWMutex // Guards committed.
	committed *state
}

// New returns an empty store.
func New() *Store {
	return &Store{sem: make(chan struct{}, 1), committed: newState()}
}

// Begin starts a transaction, waiting for the running one to finish.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{store: s, state: s.snapshot()}, nil
}

// BeginRead starts a read-only transaction on the committed state.
func (s *Store) BeginRead(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: s, state: s.snapshot(), readOnly: true}, nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed.clone()
}

// Close implements store.Store.
func (*Store) Close() error { return nil }

// Len returns the number of committed instances.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.committed.instances)
}

// Tx is a memstore transaction.
type Tx struct {
	store    *Store
	state    *state
	done     bool
	readOnly bool
}

var _ store.Tx = (*Tx)(nil)

// Commit publishes the changes of the transaction.
func (tx *Tx) Commit() error {
	if tx.done {
		return store.ErrTxDone
	}
	tx.done = true
	if tx.readOnly {
		return nil
	}
	tx.store.mu.Lock()
	tx.store.committed = tx.state
	tx.store.mu.Unlock()
	<-tx.store.sem
	return nil
}

// Rollback discards the changes of the transaction.
func (tx *Tx) Rollback() error {
	if tx.done {
		return store.ErrTxDone
	}
	tx.done = true
	if !tx.readOnly {
		<-tx.store.sem
	}
	return nil
}

func (tx *Tx) check(ctx context.Context) error {
	if tx.done {
		return store.ErrTxDone
	}
	return ctx.Err()
}

func (tx *Tx) checkWrite(ctx context.Context) error {
	if tx.readOnly {
		return store.ErrReadOnly
	}
	return tx.check(ctx)
}

// Get implements store.Reader.
func (tx *Tx) Get(ctx context.Context, id string) (*entity.Instance, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	i, ok := tx.state.instances[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	return i.Clone(), nil
}

// GetMany implements store.Reader.
func (tx *Tx) GetMany(ctx context.Context, ids []string) ([]*entity.Instance, error) {
	out := make([]*entity.Instance, 0, len(ids))
	for _, id := range ids {
		i, err := tx.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

// Instances implements store.Reader.
func (tx *Tx) Instances(ctx context.Context, t *schema.EntityType) ([]*entity.Instance, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	var out []*entity.Instance
	for _, i := range tx.state.instances {
		if i.Type.IsA(t) {
			out = append(out, i.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// Targets implements store.Reader.
func (tx *Tx) Targets(ctx context.Context, id string, m *schema.RelationMember) ([]string, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	e, rev := tx.state.edgesOf(m)
	if rev {
		return slices.Clone(e.in[id]), nil
	}
	return slices.Clone(e.out[id]), nil
}

// Sources implements store.Reader.
func (tx *Tx) Sources(ctx context.Context, id string, m *schema.RelationMember) ([]string, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	e, rev := tx.state.edgesOf(m)
	if rev {
		return slices.Clone(e.out[id]), nil
	}
	return slices.Clone(e.in[id]), nil
}

// Insert implements store.Writer.
func (tx *Tx) Insert(ctx context.Context, i *entity.Instance) error {
	if err := tx.checkWrite(ctx); err != nil {
		return err
	}
	if _, ok := tx.state.instances[i.ID]; ok {
		return relgraph.NewConstraintError(fmt.Sprintf("%s: duplicate key", i), nil)
	}
	tx.state.instances[i.ID] = i.Clone()
	return nil
}

// Update implements store.Writer.
func (tx *Tx) Update(ctx context.Context, id string, attrs map[string]any) error {
	if err := tx.checkWrite(ctx); err != nil {
		return err
	}
	i, ok := tx.state.instances[id]
	if !ok {
		return store.NotFound(id)
	}
	i.Attrs = maps.Clone(attrs)
	if i.Attrs == nil {
		i.Attrs = make(map[string]any)
	}
	return nil
}

// Delete implements store.Writer.
func (tx *Tx) Delete(ctx context.Context, ids ...string) error {
	if err := tx.checkWrite(ctx); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := tx.state.instances[id]; !ok {
			return store.NotFound(id)
		}
	}
	for _, id := range ids {
		delete(tx.state.instances, id)
		for _, e := range tx.state.edges {
			for _, to := range e.out[id] {
				e.in[to] = remove(e.in[to], id)
			}
			delete(e.out, id)
			for _, from := range e.in[id] {
				e.out[from] = remove(e.out[from], id)
			}
			delete(e.in, id)
		}
	}
	return nil
}

// AddEdges implements store.Writer.
func (tx *Tx) AddEdges(ctx context.Context, m *schema.RelationMember, from string, to ...string) error {
	if err := tx.checkWrite(ctx); err != nil {
		return err
	}
	e, rev := tx.state.edgesOf(m)
	for _, t := range to {
		for _, id := range []string{from, t} {
			if _, ok := tx.state.instances[id]; !ok {
				return relgraph.NewConstraintError(fmt.Sprintf("%s: dangling reference %s", m, id), nil)
			}
		}
		a, b := from, t
		if rev {
			a, b = b, a
		}
		if slices.Contains(e.out[a], b) {
			return store.DuplicateEdge(m, from, t)
		}
		e.out[a] = append(e.out[a], b)
		e.in[b] = append(e.in[b], a)
	}
	return nil
}

// RemoveEdges implements store.Writer.
func (tx *Tx) RemoveEdges(ctx context.Context, m *schema.RelationMember, from string, to ...string) error {
	if err := tx.checkWrite(ctx); err != nil {
		return err
	}
	e, rev := tx.state.edgesOf(m)
	for _, t := range to {
		a, b := from, t
		if rev {
			a, b = b, a
		}
		e.out[a] = remove(e.out[a], b)
		e.in[b] = remove(e.in[b], a)
	}
	return nil
}

func remove(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(s string) bool { return s == id })
}
