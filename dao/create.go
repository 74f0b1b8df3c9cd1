package dao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/cardinality"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/privacy"
	"github.com/syssam/relgraph/ranges"
	"github.com/syssam/relgraph/schema"
)

// planNode is a payload node with its planned identifier.
type planNode struct {
	p     *entity.Payload
	t     *schema.EntityType
	id    string
	path  string
	attrs map[string]any
}

// plannedEdge is an edge as supplied by the payload: m is a member of the
// type of from.
type plannedEdge struct {
	m        *schema.RelationMember
	from, to string
	path     string
}

// createPlan is the validated, not yet written result of a create call.
type createPlan struct {
	root    *entity.Payload
	nodes   []*planNode
	byP     map[*entity.Payload]*planNode
	byKey   map[string]*planNode
	byID    map[string]*planNode
	edges   []plannedEdge
	targets map[string]*entity.Instance // Persisted reference targets.
}

func (p *createPlan) planned(id string) bool {
	_, ok := p.byID[id]
	return ok
}

func (p *createPlan) owner(id string) ranges.Owner {
	n, ok := p.byID[id]
	if !ok {
		return ranges.Persisted{ID: id}
	}
	ids := make(map[*entity.Payload]string, len(p.nodes))
	for _, n := range p.nodes {
		ids[n.p] = n.id
	}
	return ranges.Transient{Root: p.root, Node: n.p, IDs: ids}
}

// Create creates the instances of the payload tree in one step and returns
// the root instance. The whole tree is planned and validated before the
// first write.
func (tx *Tx) Create(ctx context.Context, p *entity.Payload) (*entity.Instance, error) {
	var root *entity.Instance
	typ := ""
	if p != nil {
		typ = p.Type
	}
	err := tx.mutate(ctx, "create", &typ, func(ctx context.Context) error {
		plan, err := tx.planCreate(ctx, p)
		if err != nil {
			return err
		}
		for _, n := range plan.nodes {
			if err := tx.st.Insert(ctx, &entity.Instance{ID: n.id, Type: n.t, Attrs: n.attrs}); err != nil {
				return err
			}
		}
		for _, e := range plan.edges {
			if err := tx.st.AddEdges(ctx, e.m, e.from, e.to); err != nil {
				return err
			}
		}
		tx.ranges.Invalidate()
		n := plan.nodes[0]
		root = &entity.Instance{ID: n.id, Type: n.t, Attrs: n.attrs}
		return nil
	})
	return root, err
}

func (tx *Tx) planCreate(ctx context.Context, root *entity.Payload) (*createPlan, error) {
	plan := &createPlan{
		root:    root,
		byP:     make(map[*entity.Payload]*planNode),
		byKey:   make(map[string]*planNode),
		byID:    make(map[string]*planNode),
		targets: make(map[string]*entity.Instance),
	}
	if root == nil {
		return nil, relgraph.NewValidationError("payload", errors.New("empty payload"))
	}
	if err := tx.collectNodes(plan, nil, nil, root, root.Type); err != nil {
		return nil, err
	}
	for _, n := range plan.nodes {
		attrs, err := coerceAttrs(n.t, n.path, n.p.Attrs)
		if err != nil {
			return nil, err
		}
		if err := requireAttrs(n.t, n.path, attrs); err != nil {
			return nil, err
		}
		n.attrs = attrs
	}
	for _, n := range plan.nodes {
		if err := tx.resolveRefs(ctx, plan, n); err != nil {
			return nil, err
		}
	}
	if err := tx.checkStructure(ctx, plan); err != nil {
		return nil, err
	}
	if err := tx.checkCreateRanges(ctx, plan); err != nil {
		return nil, err
	}
	if err := tx.checkCreateCardinality(ctx, plan); err != nil {
		return nil, err
	}
	return plan, tx.checkCreatePolicy(ctx, plan)
}

// collectNodes assigns identifiers to the payload nodes in pre-order and
// records the edges to nested children.
func (tx *Tx) collectNodes(plan *createPlan, parent *planNode, m *schema.RelationMember, p *entity.Payload, path string) error {
	if p == nil {
		return relgraph.NewValidationError(path, errors.New("nil payload node"))
	}
	if prev, ok := plan.byP[p]; ok {
		return relgraph.NewStructuralConflictError(path, "node created twice, also at %s", prev.path)
	}
	t, ok := tx.client.schema.Type(p.Type)
	switch {
	case !ok:
		return relgraph.NewValidationError(path, fmt.Errorf("unknown entity type %q", p.Type))
	case t.Abstract:
		return relgraph.NewValidationError(path, fmt.Errorf("abstract type %s cannot be instantiated", t.Name))
	case m != nil && !t.IsA(m.Target):
		return relgraph.NewStructuralConflictError(path, "child of type %s is not a %s", t.Name, m.Target.Name)
	}
	n := &planNode{p: p, t: t, id: entity.NewID(), path: path}
	if p.Key != "" {
		if prev, ok := plan.byKey[p.Key]; ok {
			return relgraph.NewStructuralConflictError(path, "duplicate key %q, also used at %s", p.Key, prev.path)
		}
		plan.byKey[p.Key] = n
	}
	plan.nodes = append(plan.nodes, n)
	plan.byP[p] = n
	plan.byID[n.id] = n
	if parent != nil {
		plan.edges = append(plan.edges, plannedEdge{m: m, from: parent.id, to: n.id, path: path})
	}
	for _, name := range entity.SortedKeys(p.Children) {
		cm, ok := t.Member(name)
		if !ok {
			return relgraph.NewValidationError(path+"."+name, errors.New("unknown relation member"))
		}
		for i, c := range p.Children[name] {
			if err := tx.collectNodes(plan, n, cm, c, fmt.Sprintf("%s.%s[%d]", path, name, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveRefs turns the references of n into planned edges.
func (tx *Tx) resolveRefs(ctx context.Context, plan *createPlan, n *planNode) error {
	for _, name := range entity.SortedKeys(n.p.Refs) {
		m, ok := n.t.Member(name)
		if !ok {
			return relgraph.NewValidationError(n.path+"."+name, errors.New("unknown relation member"))
		}
		for _, r := range n.p.Refs[name] {
			path := fmt.Sprintf("%s.%s->%s", n.path, name, r)
			var (
				to  string
				typ *schema.EntityType
			)
			switch {
			case r.Key != "" && r.ID != "":
				return relgraph.NewValidationError(path, errors.New("reference sets both id and key"))
			case r.Key != "":
				target, ok := plan.byKey[r.Key]
				if !ok {
					return relgraph.NewStructuralConflictError(path, "unknown key %q", r.Key)
				}
				to, typ = target.id, target.t
			case r.ID != "":
				i, ok := plan.targets[r.ID]
				if !ok {
					var err error
					if i, err = tx.st.Get(ctx, r.ID); err != nil {
						return err
					}
					plan.targets[r.ID] = i
				}
				to, typ = i.ID, i.Type
			default:
				return relgraph.NewValidationError(path, errors.New("empty reference"))
			}
			if !typ.IsA(m.Target) {
				return relgraph.NewValidationError(path, fmt.Errorf("target of type %s is not a %s", typ.Name, m.Target.Name))
			}
			plan.edges = append(plan.edges, plannedEdge{m: m, from: n.id, to: to, path: path})
		}
	}
	return nil
}

// contained returns the instance an edge of m from -> to places under a
// container, if any.
func contained(m *schema.RelationMember, from, to string) (string, bool) {
	if m.IsContainment() {
		return to, true
	}
	if p := m.Partner(); p != nil && p.IsContainment() {
		return from, true
	}
	return "", false
}

// checkStructure rejects edges given twice and instances contained twice
// or already contained.
func (tx *Tx) checkStructure(ctx context.Context, plan *createPlan) error {
	type edgeKey struct {
		m    *schema.RelationMember
		a, b string
	}
	var (
		seen       = make(map[edgeKey]string)
		containers = make(map[string]string)
	)
	for _, e := range plan.edges {
		sm, rev := e.m.Storage()
		k := edgeKey{m: sm, a: e.from, b: e.to}
		if rev {
			k.a, k.b = e.to, e.from
		}
		if prev, ok := seen[k]; ok {
			return relgraph.NewStructuralConflictError(e.path, "duplicate edge %s, also given at %s", sm, prev)
		}
		seen[k] = e.path
		child, ok := contained(e.m, e.from, e.to)
		if !ok {
			continue
		}
		if prev, ok := containers[child]; ok {
			return relgraph.NewStructuralConflictError(e.path, "%s is contained twice, also at %s", child, prev)
		}
		containers[child] = e.path
		if plan.planned(child) {
			continue
		}
		owner, err := tx.container(ctx, child)
		if err != nil {
			return err
		}
		if owner != "" {
			return relgraph.NewStructuralConflictError(e.path, "%s is already contained by %s", child, owner)
		}
	}
	return nil
}

// checkCreateRanges checks both ends of every planned edge against their
// ranges. Planned targets are only candidates of ranges that navigate from
// a planned owner; static ranges and persisted owners see persisted
// instances only, so their planned targets are not checked.
func (tx *Tx) checkCreateRanges(ctx context.Context, plan *createPlan) error {
	check := func(m *schema.RelationMember, from, to string) error {
		if m.Range == nil {
			return nil
		}
		if plan.planned(to) && (!m.Range.Self || !plan.planned(from)) {
			return nil
		}
		return tx.ranges.Check(ctx, tx.st, m, plan.owner(from), to)
	}
	for _, e := range plan.edges {
		if err := check(e.m, e.from, e.to); err != nil {
			return err
		}
		if p := e.m.Partner(); p != nil {
			if err := check(p, e.to, e.from); err != nil {
				return err
			}
		}
	}
	return nil
}

type slot struct {
	id string
	m  *schema.RelationMember
}

// checkCreateCardinality validates every member of the planned instances
// and the partner ends gained by persisted targets.
func (tx *Tx) checkCreateCardinality(ctx context.Context, plan *createPlan) error {
	var (
		delta     = make(map[slot]int)
		persisted []slot
	)
	gain := func(s slot) {
		if delta[s] == 0 && !plan.planned(s.id) {
			persisted = append(persisted, s)
		}
		delta[s]++
	}
	for _, e := range plan.edges {
		gain(slot{id: e.from, m: e.m})
		if p := e.m.Partner(); p != nil {
			gain(slot{id: e.to, m: p})
		}
	}
	for _, n := range plan.nodes {
		for _, m := range n.t.AllMembers() {
			if err := cardinality.Validate(m, 0, cardinality.Create, delta[slot{id: n.id, m: m}]); err != nil {
				return err
			}
		}
	}
	for _, s := range persisted {
		current, err := tx.count(ctx, s.id, s.m)
		if err != nil {
			return err
		}
		if err := cardinality.Validate(s.m, current, cardinality.Add, delta[s]); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) checkCreatePolicy(ctx context.Context, plan *createPlan) error {
	for _, n := range plan.nodes {
		if err := tx.allowMutation(ctx, &mutation{op: privacy.OpCreate, typ: n.t.Name, id: n.id, attrs: n.attrs}); err != nil {
			return err
		}
	}
	for _, e := range plan.edges {
		p := e.m.Partner()
		if p == nil || plan.planned(e.to) {
			continue
		}
		target := plan.targets[e.to]
		if err := tx.allowMutation(ctx, &mutation{op: privacy.OpLink, typ: target.Type.Name, id: target.ID, member: p.Name}); err != nil {
			return err
		}
	}
	return nil
}

// coerceAttrs validates attribute values given for t and converts them to
// their canonical types. Nil values are dropped.
func coerceAttrs(t *schema.EntityType, path string, in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for _, name := range entity.SortedKeys(in) {
		a, ok := t.Attribute(name)
		switch {
		case !ok:
			return nil, relgraph.NewValidationError(path+"."+name, errors.New("unknown attribute"))
		case a.IsDerived():
			return nil, relgraph.NewValidationError(path+"."+name, errors.New("derived attribute is read-only"))
		}
		v := in[name]
		if v == nil {
			continue
		}
		cv, err := a.Type.Coerce(v)
		if err != nil {
			return nil, relgraph.NewValidationError(path+"."+name, err)
		}
		out[name] = cv
	}
	return out, nil
}

// requireAttrs checks that every required stored attribute of t is set.
func requireAttrs(t *schema.EntityType, path string, attrs map[string]any) error {
	for _, a := range t.AllAttributes() {
		if a.Optional || a.IsDerived() {
			continue
		}
		if _, ok := attrs[a.Name]; !ok {
			return relgraph.NewValidationError(path+"."+a.Name, errors.New("missing required attribute"))
		}
	}
	return nil
}

func idAttr(id string) slog.Attr { return slog.String("id", id) }
