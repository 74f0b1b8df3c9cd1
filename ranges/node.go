package ranges

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/expr"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

// env is shared by the nodes and contexts of one evaluation.
type env struct {
	ctx  context.Context
	r    store.Reader
	s    *schema.Schema
	tree *tree // Nil without a transient owner.
}

func (e *env) persisted(i *entity.Instance) *persistedNode {
	return &persistedNode{env: e, inst: i}
}

func (e *env) persistedAll(is []*entity.Instance) []expr.Node {
	out := make([]expr.Node, len(is))
	for k, i := range is {
		out[k] = e.persisted(i)
	}
	return out
}

func (e *env) eval(fn expr.Func, self expr.Node) (any, error) {
	return fn(&evalContext{env: e, self: self})
}

// evalContext implements expr.Context.
type evalContext struct {
	*env
	self expr.Node
}

func (c *evalContext) Context() context.Context { return c.ctx }

func (c *evalContext) Self() expr.Node { return c.self }

func (c *evalContext) All(typeName string) ([]expr.Node, error) {
	t, ok := c.s.Type(typeName)
	if !ok {
		return nil, fmt.Errorf("ranges: unknown type %q", typeName)
	}
	is, err := c.r.Instances(c.ctx, t)
	if err != nil {
		return nil, err
	}
	return c.persistedAll(is), nil
}

func (c *evalContext) Lookup(id string) (expr.Node, error) {
	if c.tree != nil {
		if p, ok := c.tree.byID[id]; ok {
			return c.tree.node(c.env, p), nil
		}
	}
	i, err := c.r.Get(c.ctx, id)
	if err != nil {
		return nil, err
	}
	return c.persisted(i), nil
}

// derived evaluates a derived attribute with n as the owner.
func derived(e *env, a *schema.Attribute, n expr.Node) (any, error) {
	v, err := e.eval(a.Derived, n)
	if err != nil {
		return nil, fmt.Errorf("ranges: derived attribute %s.%s: %w", a.Owner.Name, a.Name, err)
	}
	return a.Type.Coerce(v)
}

// persistedNode is an instance read from the store.
type persistedNode struct {
	*env
	inst *entity.Instance
}

func (n *persistedNode) ID() string   { return n.inst.ID }
func (n *persistedNode) Type() string { return n.inst.Type.Name }

func (n *persistedNode) Attr(name string) (any, bool) {
	a, ok := n.inst.Type.Attribute(name)
	if !ok {
		return nil, false
	}
	if a.IsDerived() {
		v, err := derived(n.env, a, n)
		return v, err == nil
	}
	return n.inst.Attr(name)
}

func (n *persistedNode) Related(_ expr.Context, member string) ([]expr.Node, error) {
	m, ok := n.inst.Type.Member(member)
	if !ok {
		return nil, fmt.Errorf("ranges: %s has no member %q", n.inst.Type.Name, member)
	}
	ids, err := n.r.Targets(n.ctx, n.inst.ID, m)
	if err != nil {
		return nil, err
	}
	is, err := n.r.GetMany(n.ctx, ids)
	if err != nil {
		return nil, err
	}
	out := n.persistedAll(is)
	// Payload nodes referring to n through the partner end.
	if p := m.Partner(); p != nil && n.tree != nil {
		for _, x := range n.tree.nodes {
			if slices.Contains(x.Refs[p.Name], entity.RefID(n.inst.ID)) {
				out = append(out, n.tree.node(n.env, x))
			}
		}
	}
	return out, nil
}

// transientNode is a node of a creation payload.
type transientNode struct {
	*env
	p *entity.Payload
	t *schema.EntityType
}

func (n *transientNode) ID() string   { return n.tree.ids[n.p] }
func (n *transientNode) Type() string { return n.p.Type }

func (n *transientNode) Attr(name string) (any, bool) {
	a, ok := n.t.Attribute(name)
	if !ok {
		return nil, false
	}
	if a.IsDerived() {
		v, err := derived(n.env, a, n)
		return v, err == nil
	}
	v, ok := n.p.Attrs[name]
	if !ok {
		return nil, false
	}
	cv, err := a.Type.Coerce(v)
	return cv, err == nil
}

func (n *transientNode) Related(c expr.Context, member string) ([]expr.Node, error) {
	m, ok := n.t.Member(member)
	if !ok {
		return nil, fmt.Errorf("ranges: %s has no member %q", n.t.Name, member)
	}
	var out []expr.Node
	for _, child := range n.p.Children[member] {
		out = append(out, n.tree.node(n.env, child))
	}
	for _, ref := range n.p.Refs[member] {
		if ref.Key != "" {
			target, ok := n.tree.byKey[ref.Key]
			if !ok {
				return nil, fmt.Errorf("ranges: unknown payload key %q", ref.Key)
			}
			out = append(out, n.tree.node(n.env, target))
			continue
		}
		target, err := c.Lookup(ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	p := m.Partner()
	if p == nil {
		return out, nil
	}
	if up, ok := n.tree.parent[n.p]; ok && up.member == p.Name {
		out = append(out, n.tree.node(n.env, up.node))
	}
	if n.p.Key != "" {
		for _, x := range n.tree.nodes {
			if slices.Contains(x.Refs[p.Name], entity.RefKey(n.p.Key)) {
				out = append(out, n.tree.node(n.env, x))
			}
		}
	}
	return out, nil
}

type parentLink struct {
	node   *entity.Payload
	member string
}

// tree indexes a creation payload.
type tree struct {
	nodes  []*entity.Payload // Pre-order.
	types  map[*entity.Payload]*schema.EntityType
	ids    map[*entity.Payload]string
	byID   map[string]*entity.Payload
	byKey  map[string]*entity.Payload
	parent map[*entity.Payload]parentLink
}

func newTree(s *schema.Schema, root *entity.Payload, ids map[*entity.Payload]string) (*tree, error) {
	t := &tree{
		types:  make(map[*entity.Payload]*schema.EntityType),
		ids:    make(map[*entity.Payload]string),
		byID:   make(map[string]*entity.Payload),
		byKey:  make(map[string]*entity.Payload),
		parent: make(map[*entity.Payload]parentLink),
	}
	err := root.Walk(func(parent *entity.Payload, member string, p *entity.Payload) error {
		typ, ok := s.Type(p.Type)
		if !ok {
			return fmt.Errorf("ranges: unknown type %q in payload", p.Type)
		}
		t.nodes = append(t.nodes, p)
		t.types[p] = typ
		id, ok := ids[p]
		if !ok {
			id = entity.NewID()
		}
		t.ids[p] = id
		t.byID[id] = p
		if p.Key != "" {
			t.byKey[p.Key] = p
		}
		if parent != nil {
			t.parent[p] = parentLink{node: parent, member: member}
		}
		return nil
	})
	return t, err
}

func (t *tree) node(e *env, p *entity.Payload) *transientNode {
	return &transientNode{env: e, p: p, t: t.types[p]}
}

func (t *tree) instance(p *entity.Payload) *entity.Instance {
	return &entity.Instance{ID: t.ids[p], Type: t.types[p], Attrs: p.Attrs}
}
