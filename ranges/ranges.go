// Package ranges computes the legal targets of relation members.
//
// A member without a range accepts every instance of its target type. A
// static range is evaluated once and cached until Invalidate. A range that
// references the owner is evaluated with the owner bound to Self, which may
// be a persisted instance or a node of a creation payload that has not been
// written yet. Results only ever contain live instances of the target type.
package ranges

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/expr"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

// Owner is the owner of the relation slot whose range is computed: a
// Persisted instance, a Transient payload node, or nil.
type Owner interface {
	owner()
}

// Persisted is an owner read from the store.
type Persisted struct {
	ID string
}

// Transient is an owner that is part of a creation payload.
type Transient struct {
	// Root is the root of the payload tree.
	Root *entity.Payload
	// Node is the owner within the tree.
	Node *entity.Payload
	// IDs are the identifiers planned for the payload nodes. Nodes without
	// one get a fresh identifier for the evaluation.
	IDs map[*entity.Payload]string
}

func (Persisted) owner() {}
func (Transient) owner() {}

// Resolver evaluates ranges. It caches static ranges and is safe for
// concurrent use.
type Resolver struct {
	schema *schema.Schema
	mu     sync.Mutex
	static map[*schema.RelationMember][]string
}

// NewResolver returns a resolver for members of s.
func NewResolver(s *schema.Schema) *Resolver {
	return &Resolver{schema: s, static: make(map[*schema.RelationMember][]string)}
}

// Invalidate drops the cached static ranges.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.static)
}

func (r *Resolver) env(ctx context.Context, rd store.Reader, owner Owner) (*env, expr.Node, error) {
	e := &env{ctx: ctx, r: rd, s: r.schema}
	switch o := owner.(type) {
	case nil:
		return e, nil, nil
	case Persisted:
		i, err := rd.Get(ctx, o.ID)
		if err != nil {
			return nil, nil, err
		}
		return e, e.persisted(i), nil
	case *Persisted:
		return r.env(ctx, rd, *o)
	case Transient:
		t, err := newTree(r.schema, o.Root, o.IDs)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := t.types[o.Node]; !ok {
			return nil, nil, errors.New("ranges: owner node is not part of the payload")
		}
		e.tree = t
		return e, t.node(e, o.Node), nil
	case *Transient:
		return r.env(ctx, rd, *o)
	default:
		return nil, nil, fmt.Errorf("ranges: unknown owner %T", owner)
	}
}

// RangeOf returns the legal targets of m for the given owner. Payload
// nodes are returned as instances carrying their planned identifier.
func (r *Resolver) RangeOf(ctx context.Context, rd store.Reader, m *schema.RelationMember, owner Owner) ([]*entity.Instance, error) {
	e, self, err := r.env(ctx, rd, owner)
	if err != nil {
		return nil, err
	}
	nodes, err := r.candidates(e, m, self)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Instance, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *persistedNode:
			out = append(out, n.inst)
		case *transientNode:
			out = append(out, n.tree.instance(n.p))
		}
	}
	return out, nil
}

// Check verifies that every id is a legal target of m for the given owner.
// Identifiers of payload nodes are known to exist; other identifiers must
// exist in the store.
func (r *Resolver) Check(ctx context.Context, rd store.Reader, m *schema.RelationMember, owner Owner, ids ...string) error {
	e, self, err := r.env(ctx, rd, owner)
	if err != nil {
		return err
	}
	planned := func(id string) bool {
		if e.tree == nil {
			return false
		}
		_, ok := e.tree.byID[id]
		return ok
	}
	if m.Range == nil {
		for _, id := range ids {
			if planned(id) {
				continue
			}
			if _, err := rd.Get(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}
	nodes, err := r.candidates(e, m, self)
	if err != nil {
		return err
	}
	legal := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		legal[n.ID()] = true
	}
	for _, id := range ids {
		if legal[id] {
			continue
		}
		if !planned(id) {
			if _, err := rd.Get(ctx, id); err != nil {
				return err
			}
		}
		return &relgraph.RangeError{Entity: m.Owner.Name, Relation: m.Name, Target: id}
	}
	return nil
}

func (r *Resolver) candidates(e *env, m *schema.RelationMember, self expr.Node) ([]expr.Node, error) {
	switch {
	case m.Range == nil:
		is, err := e.r.Instances(e.ctx, m.Target)
		if err != nil {
			return nil, err
		}
		return e.persistedAll(is), nil
	case !m.Range.Self:
		return r.staticRange(e, m)
	default:
		v, err := e.eval(m.Range.Eval, self)
		if err != nil {
			return nil, fmt.Errorf("ranges: range of %s: %w", m, err)
		}
		nodes, err := asNodes(m, v)
		if err != nil {
			return nil, err
		}
		return r.filter(m, nodes), nil
	}
}

// staticRange evaluates the range of m once and re-reads the cached
// identifiers so that deleted candidates drop out.
func (r *Resolver) staticRange(e *env, m *schema.RelationMember) ([]expr.Node, error) {
	r.mu.Lock()
	ids, ok := r.static[m]
	r.mu.Unlock()
	if !ok {
		v, err := e.eval(m.Range.Eval, nil)
		if err != nil {
			return nil, fmt.Errorf("ranges: range of %s: %w", m, err)
		}
		nodes, err := asNodes(m, v)
		if err != nil {
			return nil, err
		}
		for _, n := range r.filter(m, nodes) {
			if n.ID() != "" {
				ids = append(ids, n.ID())
			}
		}
		r.mu.Lock()
		r.static[m] = ids
		r.mu.Unlock()
	}
	live, err := e.r.Instances(e.ctx, m.Target)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entity.Instance, len(live))
	for _, i := range live {
		byID[i.ID] = i
	}
	out := make([]expr.Node, 0, len(ids))
	for _, id := range ids {
		if i, ok := byID[id]; ok {
			out = append(out, e.persisted(i))
		}
	}
	return out, nil
}

// filter keeps the nodes of the target type of m, dropping duplicates.
func (r *Resolver) filter(m *schema.RelationMember, nodes []expr.Node) []expr.Node {
	seen := make(map[string]bool, len(nodes))
	out := make([]expr.Node, 0, len(nodes))
	for _, n := range nodes {
		t, ok := r.schema.Type(n.Type())
		if !ok || !t.IsA(m.Target) || seen[n.ID()] {
			continue
		}
		seen[n.ID()] = true
		out = append(out, n)
	}
	return out
}

func asNodes(m *schema.RelationMember, v any) ([]expr.Node, error) {
	ns, err := expr.AsNodes(v)
	if err != nil {
		return nil, fmt.Errorf("ranges: range of %s: %w", m, err)
	}
	return ns, nil
}

// Derived returns the values of the derived attributes of i.
func (r *Resolver) Derived(ctx context.Context, rd store.Reader, i *entity.Instance) (map[string]any, error) {
	e := &env{ctx: ctx, r: rd, s: r.schema}
	n := e.persisted(i)
	var out map[string]any
	for _, a := range i.Type.AllAttributes() {
		if !a.IsDerived() {
			continue
		}
		v, err := derived(e, a, n)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[a.Name] = v
	}
	return out, nil
}
