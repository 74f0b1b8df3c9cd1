// Package cascade computes the instances removed by a delete.
//
// Deleting an instance deletes its containment descendants and the owners
// of every edge whose member is marked ReverseCascadeDelete. The closure
// is computed over a work set with a visited set, so cycles of cascading
// relations terminate. A delete that would leave a surviving owner below
// the lower bound of one of its members is rejected as a whole.
package cascade

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/cardinality"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

// Resolver computes delete plans. It holds no state besides the schema
// and is safe for concurrent use.
type Resolver struct {
	schema *schema.Schema
}

// NewResolver returns a resolver for instances of s.
func NewResolver(s *schema.Schema) *Resolver {
	return &Resolver{schema: s}
}

// Plan is the closure of a delete.
type Plan struct {
	// Root is the instance whose delete was requested.
	Root  string
	order []string
	types map[string]*schema.EntityType
}

// Order returns the instances to delete, containment children before
// their parents.
func (p *Plan) Order() []string { return slices.Clone(p.order) }

// Contains reports if the plan deletes id.
func (p *Plan) Contains(id string) bool {
	_, ok := p.types[id]
	return ok
}

// Len returns the number of instances the plan deletes.
func (p *Plan) Len() int { return len(p.order) }

// Type returns the type of a deleted instance, or nil.
func (p *Plan) Type(id string) *schema.EntityType { return p.types[id] }

type closure struct {
	r        store.Reader
	types    map[string]*schema.EntityType
	seen     []string            // Visit order.
	children map[string][]string // Containment children.
}

// Resolve returns the plan for deleting id, or a *relgraph.CascadeConflictError
// if the delete would strand a required relation.
func (res *Resolver) Resolve(ctx context.Context, r store.Reader, id string) (*Plan, error) {
	c := &closure{
		r:        r,
		types:    make(map[string]*schema.EntityType),
		children: make(map[string][]string),
	}
	if err := c.expand(ctx, res, id); err != nil {
		return nil, err
	}
	conflicts, err := c.conflicts(ctx)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &relgraph.CascadeConflictError{Root: id, Conflicts: conflicts}
	}
	return &Plan{Root: id, order: c.postOrder(), types: c.types}, nil
}

func (res *Resolver) typeOf(name string) (*schema.EntityType, error) {
	t, ok := res.schema.Type(name)
	if !ok {
		return nil, fmt.Errorf("cascade: instance type %q is not part of the schema", name)
	}
	return t, nil
}

func (c *closure) expand(ctx context.Context, res *Resolver, root string) error {
	work := []string{root}
	for len(work) > 0 {
		y := work[len(work)-1]
		work = work[:len(work)-1]
		if _, ok := c.types[y]; ok {
			continue
		}
		inst, err := c.r.Get(ctx, y)
		if err != nil {
			return err
		}
		t, err := res.typeOf(inst.Type.Name)
		if err != nil {
			return err
		}
		c.types[y] = t
		c.seen = append(c.seen, y)
		for _, m := range t.AllMembers() {
			if !m.IsContainment() {
				continue
			}
			ids, err := c.r.Targets(ctx, y, m)
			if err != nil {
				return err
			}
			c.children[y] = append(c.children[y], ids...)
			work = append(work, ids...)
		}
		for _, m := range t.Incoming() {
			if !m.ReverseCascadeDelete {
				continue
			}
			ids, err := c.r.Sources(ctx, y, m)
			if err != nil {
				return err
			}
			work = append(work, ids...)
		}
	}
	return nil
}

// conflicts checks every surviving owner of an edge into the closure.
func (c *closure) conflicts(ctx context.Context) ([]relgraph.Conflict, error) {
	type key struct {
		owner  string
		member *schema.RelationMember
	}
	var (
		out     []relgraph.Conflict
		checked = make(map[key]bool)
	)
	for _, y := range c.seen {
		for _, m := range c.types[y].Incoming() {
			if m.Lower == 0 {
				continue
			}
			owners, err := c.r.Sources(ctx, y, m)
			if err != nil {
				return nil, err
			}
			for _, z := range owners {
				k := key{z, m}
				if _, deleted := c.types[z]; deleted || checked[k] {
					continue
				}
				checked[k] = true
				targets, err := c.r.Targets(ctx, z, m)
				if err != nil {
					return nil, err
				}
				removed := 0
				for _, id := range targets {
					if _, ok := c.types[id]; ok {
						removed++
					}
				}
				if cardinality.Validate(m, len(targets), cardinality.Remove, removed) == nil {
					continue
				}
				owner, err := c.r.Get(ctx, z)
				if err != nil {
					return nil, err
				}
				out = append(out, relgraph.Conflict{
					Entity:    owner.Type.Name,
					Owner:     z,
					Relation:  m.Name,
					Target:    y,
					Remaining: len(targets) - removed,
					Lower:     m.Lower,
				})
			}
		}
	}
	return out, nil
}

// postOrder lists the closure with containment children before parents.
func (c *closure) postOrder() []string {
	contained := make(map[string]bool)
	for _, ids := range c.children {
		for _, id := range ids {
			contained[id] = true
		}
	}
	var (
		order []string
		done  = make(map[string]bool, len(c.seen))
	)
	var visit func(id string)
	visit = func(id string) {
		if done[id] {
			return
		}
		done[id] = true
		for _, child := range c.children[id] {
			visit(child)
		}
		order = append(order, id)
	}
	for _, id := range c.seen {
		if !contained[id] {
			visit(id)
		}
	}
	// Containment cycles only exist in inconsistent stores.
	for _, id := range c.seen {
		visit(id)
	}
	return order
}
