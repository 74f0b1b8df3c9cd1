package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

// Link is an edge of the graph.
type Link struct {
	Member *schema.RelationMember
	Target int
}

// Node is an instance of the graph.
type Node struct {
	*entity.Instance
	// Expanded is set for roots and their containment descendants.
	Expanded       bool
	Containments   []Link
	References     []Link
	BackReferences []Link
}

// Graph is a deduplicated instance graph.
type Graph struct {
	nodes []*Node
	index map[string]int
	roots []int
}

// Roots returns the root nodes in the requested order.
func (g *Graph) Roots() []*Node {
	out := make([]*Node, len(g.roots))
	for i, r := range g.roots {
		out[i] = g.nodes[r]
	}
	return out
}

// Node returns the node of the given instance.
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Nodes returns all nodes by instance id.
func (g *Graph) Nodes() map[string]*Node {
	out := make(map[string]*Node, len(g.nodes))
	for _, n := range g.nodes {
		out[n.ID] = n
	}
	return out
}

// Target returns the node a link points to.
func (g *Graph) Target(l Link) *Node { return g.nodes[l.Target] }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) add(i *entity.Instance) int {
	if k, ok := g.index[i.ID]; ok {
		return k
	}
	g.nodes = append(g.nodes, &Node{Instance: i})
	g.index[i.ID] = len(g.nodes) - 1
	return len(g.nodes) - 1
}

// Collector builds instance graphs. It holds no mutable state.
type Collector struct {
	schema *schema.Schema
}

// NewCollector returns a collector for instances of s.
func NewCollector(s *schema.Schema) *Collector {
	return &Collector{schema: s}
}

// Collect returns the graph around the given roots, which must be
// instances of rootType.
func (c *Collector) Collect(ctx context.Context, r store.Reader, rootType *schema.EntityType, ids ...string) (*Graph, error) {
	if t, ok := c.schema.Type(rootType.Name); !ok || t != rootType {
		return nil, relgraph.NewValidationError(rootType.Name, errors.New("graph: type is not part of the schema"))
	}
	g := &Graph{index: make(map[string]int)}
	roots, err := r.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	var queue []int
	for _, inst := range roots {
		if !inst.Type.IsA(rootType) {
			return nil, relgraph.NewValidationError(rootType.Name, fmt.Errorf("graph: root %s is not a %s", inst, rootType.Name))
		}
		k, seen := g.index[inst.ID]
		if !seen {
			k = g.add(inst)
			g.roots = append(g.roots, k)
		}
		queue = append(queue, k)
	}
	for len(queue) > 0 {
		n := g.nodes[queue[0]]
		queue = queue[1:]
		if n.Expanded {
			continue
		}
		n.Expanded = true
		children, err := c.expand(ctx, r, g, n)
		if err != nil {
			return nil, err
		}
		queue = append(queue, children...)
	}
	return g, nil
}

// expand reads the edges of n and returns its containment children.
func (c *Collector) expand(ctx context.Context, r store.Reader, g *Graph, n *Node) ([]int, error) {
	var children []int
	for _, m := range n.Type.AllMembers() {
		ids, err := r.Targets(ctx, n.ID, m)
		if err != nil {
			return nil, err
		}
		targets, err := c.resolve(ctx, r, g, ids)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			l := Link{Member: m, Target: t}
			if m.IsContainment() {
				n.Containments = append(n.Containments, l)
				children = append(children, t)
			} else {
				n.References = append(n.References, l)
			}
		}
	}
	for _, m := range n.Type.Incoming() {
		if m.IsContainment() {
			continue
		}
		var (
			ids []string
			err error
		)
		if p := m.Partner(); p != nil {
			ids, err = r.Targets(ctx, n.ID, p)
		} else {
			ids, err = r.Sources(ctx, n.ID, m)
		}
		if err != nil {
			return nil, err
		}
		sources, err := c.resolve(ctx, r, g, ids)
		if err != nil {
			return nil, err
		}
		for _, s := range sources {
			n.BackReferences = append(n.BackReferences, Link{Member: m, Target: s})
		}
	}
	return children, nil
}

// resolve returns the node indexes of ids, reading unknown instances.
func (c *Collector) resolve(ctx context.Context, r store.Reader, g *Graph, ids []string) ([]int, error) {
	var missing []string
	for _, id := range ids {
		if _, ok := g.index[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		insts, err := r.GetMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, i := range insts {
			g.add(i)
		}
	}
	out := make([]int, len(ids))
	for k, id := range ids {
		out[k] = g.index[id]
	}
	return out, nil
}
