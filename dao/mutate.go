package dao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/cardinality"
	"github.com/syssam/relgraph/cascade"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/privacy"
	"github.com/syssam/relgraph/ranges"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

func (tx *Tx) count(ctx context.Context, id string, m *schema.RelationMember) (int, error) {
	return store.Count(ctx, tx.st, id, m)
}

// container returns the instance containing id, or "".
func (tx *Tx) container(ctx context.Context, id string) (string, error) {
	i, err := tx.st.Get(ctx, id)
	if err != nil {
		return "", err
	}
	for _, m := range i.Type.Incoming() {
		if !m.IsContainment() {
			continue
		}
		owners, err := tx.st.Sources(ctx, id, m)
		if err != nil {
			return "", err
		}
		if len(owners) > 0 {
			return owners[0], nil
		}
	}
	return "", nil
}

// ancestors returns the chain of containers of id, nearest first.
func (tx *Tx) ancestors(ctx context.Context, id string) ([]string, error) {
	var out []string
	seen := map[string]bool{id: true}
	for {
		c, err := tx.container(ctx, id)
		if err != nil || c == "" || seen[c] {
			return out, err
		}
		seen[c] = true
		out = append(out, c)
		id = c
	}
}

// Update sets attribute values of an instance. Nil values clear optional
// attributes. The updated instance is returned.
func (tx *Tx) Update(ctx context.Context, id string, attrs map[string]any) (*entity.Instance, error) {
	var (
		out *entity.Instance
		typ string
	)
	err := tx.mutate(ctx, "update", &typ, func(ctx context.Context) error {
		i, err := tx.st.Get(ctx, id)
		if err != nil {
			return err
		}
		typ = i.Type.Name
		path := i.String()
		changes, err := coerceAttrs(i.Type, path, attrs)
		if err != nil {
			return err
		}
		merged := maps.Clone(i.Attrs)
		if merged == nil {
			merged = make(map[string]any)
		}
		for name, v := range attrs {
			if v == nil {
				delete(merged, name)
			}
		}
		maps.Copy(merged, changes)
		if err := requireAttrs(i.Type, path, merged); err != nil {
			return err
		}
		if err := tx.allowMutation(ctx, &mutation{op: privacy.OpUpdate, typ: i.Type.Name, id: id, attrs: changes}); err != nil {
			return err
		}
		if err := tx.st.Update(ctx, id, merged); err != nil {
			return err
		}
		tx.ranges.Invalidate()
		out = &entity.Instance{ID: id, Type: i.Type, Attrs: merged}
		return nil
	}, idAttr(id))
	return out, err
}

// DeletePlan returns the instances a delete of id would remove, without
// removing them. It fails like Delete when the delete is not allowed.
func (tx *Tx) DeletePlan(ctx context.Context, id string) (*cascade.Plan, error) {
	var plan *cascade.Plan
	err := tx.query(ctx, "delete_plan", "", func(ctx context.Context) (err error) {
		plan, err = tx.client.cascade.Resolve(ctx, tx.st, id)
		return err
	}, idAttr(id))
	return plan, err
}

// Delete removes id and every instance its deletion cascades to. The
// removed identifiers are returned with contained instances before their
// containers.
func (tx *Tx) Delete(ctx context.Context, id string) ([]string, error) {
	var (
		deleted []string
		typ     string
	)
	err := tx.mutate(ctx, "delete", &typ, func(ctx context.Context) error {
		plan, err := tx.client.cascade.Resolve(ctx, tx.st, id)
		if err != nil {
			return err
		}
		typ = plan.Type(id).Name
		order := plan.Order()
		for _, d := range order {
			if err := tx.allowMutation(ctx, &mutation{op: privacy.OpDelete, typ: plan.Type(d).Name, id: d}); err != nil {
				return err
			}
		}
		if err := tx.st.Delete(ctx, order...); err != nil {
			return err
		}
		tx.ranges.Invalidate()
		tx.client.metrics.deleted.Add(float64(len(order)))
		if len(order) > 1 {
			tx.client.log.LogAttrs(ctx, slog.LevelInfo, "relgraph: cascade delete",
				idAttr(id), slog.String("type", typ), slog.Int("count", len(order)))
		}
		deleted = order
		return nil
	}, idAttr(id))
	return deleted, err
}

// slot resolves the named member of the instance id.
func (tx *Tx) slot(ctx context.Context, id, member string) (*entity.Instance, *schema.RelationMember, error) {
	owner, err := tx.st.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	m, ok := owner.Type.Member(member)
	if !ok {
		return nil, nil, relgraph.NewValidationError(owner.Type.Name+"."+member, errors.New("unknown relation member"))
	}
	return owner, m, nil
}

func distinct(m *schema.RelationMember, targets []string) error {
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t == "" {
			return relgraph.NewValidationError(m.String(), errors.New("empty target identifier"))
		}
		if seen[t] {
			return relgraph.NewValidationError(m.String(), fmt.Errorf("target %s given twice", t))
		}
		seen[t] = true
	}
	return nil
}

// checkLink validates adding edges from owner to targets through m: target
// existence and type, ranges of both ends, containment exclusivity and the
// cardinality of the partner end. Containers listed in replaced are about
// to be unlinked and do not count.
func (tx *Tx) checkLink(ctx context.Context, owner *entity.Instance, m *schema.RelationMember, targets, replaced []string) error {
	if len(targets) == 0 {
		return nil
	}
	insts, err := tx.st.GetMany(ctx, targets)
	if err != nil {
		return err
	}
	for _, t := range insts {
		if !t.Type.IsA(m.Target) {
			return relgraph.NewValidationError(m.String(), fmt.Errorf("target %s is not a %s", t, m.Target.Name))
		}
	}
	if m.Range != nil {
		if err := tx.ranges.Check(ctx, tx.st, m, ranges.Persisted{ID: owner.ID}, targets...); err != nil {
			return err
		}
	}
	p := m.Partner()
	if p != nil && p.Range != nil {
		for _, t := range targets {
			if err := tx.ranges.Check(ctx, tx.st, p, ranges.Persisted{ID: t}, owner.ID); err != nil {
				return err
			}
		}
	}
	if err := tx.checkContainment(ctx, owner, m, targets, replaced); err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	for _, t := range targets {
		current, err := tx.count(ctx, t, p)
		if err != nil {
			return err
		}
		if err := cardinality.Validate(p, current, cardinality.Add, 1); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) checkContainment(ctx context.Context, owner *entity.Instance, m *schema.RelationMember, targets, replaced []string) error {
	switch p := m.Partner(); {
	case m.IsContainment():
		up, err := tx.ancestors(ctx, owner.ID)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if t == owner.ID || slices.Contains(up, t) {
				return relgraph.NewStructuralConflictError(m.String(), "containing %s would create a containment cycle", t)
			}
			c, err := tx.container(ctx, t)
			if err != nil {
				return err
			}
			if c != "" {
				return relgraph.NewStructuralConflictError(m.String(), "%s is already contained by %s", t, c)
			}
		}
	case p != nil && p.IsContainment():
		if len(targets) > 1 {
			return relgraph.NewStructuralConflictError(m.String(), "%s would be contained %d times", owner.ID, len(targets))
		}
		c, err := tx.container(ctx, owner.ID)
		if err != nil {
			return err
		}
		if c != "" && !slices.Contains(replaced, c) {
			return relgraph.NewStructuralConflictError(m.String(), "%s is already contained by %s", owner.ID, c)
		}
		up, err := tx.ancestors(ctx, targets[0])
		if err != nil {
			return err
		}
		if targets[0] == owner.ID || slices.Contains(up, owner.ID) {
			return relgraph.NewStructuralConflictError(m.String(), "containing %s would create a containment cycle", owner.ID)
		}
	}
	return nil
}

// checkUnlink validates the partner ends losing an edge to owner.
func (tx *Tx) checkUnlink(ctx context.Context, owner *entity.Instance, m *schema.RelationMember, targets []string) error {
	p := m.Partner()
	if p == nil {
		return nil
	}
	for _, t := range targets {
		current, err := tx.count(ctx, t, p)
		if err != nil {
			return err
		}
		if err := cardinality.Validate(p, current, cardinality.Remove, 1); err != nil {
			return err
		}
	}
	return nil
}

// AddReferences links id to each target through the named member.
func (tx *Tx) AddReferences(ctx context.Context, id, member string, targets ...string) error {
	var typ string
	return tx.mutate(ctx, "add_references", &typ, func(ctx context.Context) error {
		owner, m, err := tx.slot(ctx, id, member)
		if err != nil {
			return err
		}
		typ = owner.Type.Name
		if err := distinct(m, targets); err != nil {
			return err
		}
		current, err := tx.st.Targets(ctx, id, m)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if slices.Contains(current, t) {
				return store.DuplicateEdge(m, id, t)
			}
		}
		if err := cardinality.Validate(m, len(current), cardinality.Add, len(targets)); err != nil {
			return err
		}
		if err := tx.checkLink(ctx, owner, m, targets, nil); err != nil {
			return err
		}
		if err := tx.allowLink(ctx, privacy.OpLink, owner, m, targets); err != nil {
			return err
		}
		if err := tx.st.AddEdges(ctx, m, id, targets...); err != nil {
			return err
		}
		tx.ranges.Invalidate()
		return nil
	}, idAttr(id), slog.String("member", member))
}

// RemoveReferences unlinks id from each target of the named member.
func (tx *Tx) RemoveReferences(ctx context.Context, id, member string, targets ...string) error {
	var typ string
	return tx.mutate(ctx, "remove_references", &typ, func(ctx context.Context) error {
		owner, m, err := tx.slot(ctx, id, member)
		if err != nil {
			return err
		}
		typ = owner.Type.Name
		if err := distinct(m, targets); err != nil {
			return err
		}
		current, err := tx.st.Targets(ctx, id, m)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if !slices.Contains(current, t) {
				return relgraph.NewValidationError(m.String(), fmt.Errorf("%s is not linked to %s", id, t))
			}
		}
		if err := cardinality.Validate(m, len(current), cardinality.Remove, len(targets)); err != nil {
			return err
		}
		if err := tx.checkUnlink(ctx, owner, m, targets); err != nil {
			return err
		}
		if err := tx.allowLink(ctx, privacy.OpUnlink, owner, m, targets); err != nil {
			return err
		}
		if err := tx.st.RemoveEdges(ctx, m, id, targets...); err != nil {
			return err
		}
		tx.ranges.Invalidate()
		return nil
	}, idAttr(id), slog.String("member", member))
}

// SetReference replaces the targets of the named member. Setting the
// current set again is a no-op.
func (tx *Tx) SetReference(ctx context.Context, id, member string, targets ...string) error {
	var typ string
	return tx.mutate(ctx, "set_reference", &typ, func(ctx context.Context) error {
		owner, m, err := tx.slot(ctx, id, member)
		if err != nil {
			return err
		}
		typ = owner.Type.Name
		if err := distinct(m, targets); err != nil {
			return err
		}
		if err := cardinality.Validate(m, 0, cardinality.Set, len(targets)); err != nil {
			return err
		}
		current, err := tx.st.Targets(ctx, id, m)
		if err != nil {
			return err
		}
		var add, remove []string
		for _, t := range targets {
			if !slices.Contains(current, t) {
				add = append(add, t)
			}
		}
		for _, t := range current {
			if !slices.Contains(targets, t) {
				remove = append(remove, t)
			}
		}
		if len(add) == 0 && len(remove) == 0 {
			return nil
		}
		if err := tx.checkUnlink(ctx, owner, m, remove); err != nil {
			return err
		}
		if err := tx.checkLink(ctx, owner, m, add, remove); err != nil {
			return err
		}
		if len(remove) > 0 {
			if err := tx.allowLink(ctx, privacy.OpUnlink, owner, m, remove); err != nil {
				return err
			}
		}
		if len(add) > 0 {
			if err := tx.allowLink(ctx, privacy.OpLink, owner, m, add); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			if err := tx.st.RemoveEdges(ctx, m, id, remove...); err != nil {
				return err
			}
		}
		if len(add) > 0 {
			if err := tx.st.AddEdges(ctx, m, id, add...); err != nil {
				return err
			}
		}
		tx.ranges.Invalidate()
		return nil
	}, idAttr(id), slog.String("member", member))
}

// UnsetReference removes every target of the named member.
func (tx *Tx) UnsetReference(ctx context.Context, id, member string) error {
	var typ string
	return tx.mutate(ctx, "unset_reference", &typ, func(ctx context.Context) error {
		owner, m, err := tx.slot(ctx, id, member)
		if err != nil {
			return err
		}
		typ = owner.Type.Name
		current, err := tx.st.Targets(ctx, id, m)
		if err != nil {
			return err
		}
		if err := cardinality.Validate(m, len(current), cardinality.Unset, len(current)); err != nil {
			return err
		}
		if len(current) == 0 {
			return nil
		}
		if err := tx.checkUnlink(ctx, owner, m, current); err != nil {
			return err
		}
		if err := tx.allowLink(ctx, privacy.OpUnlink, owner, m, current); err != nil {
			return err
		}
		if err := tx.st.RemoveEdges(ctx, m, id, current...); err != nil {
			return err
		}
		tx.ranges.Invalidate()
		return nil
	}, idAttr(id), slog.String("member", member))
}
