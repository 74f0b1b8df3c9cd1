package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/store"
	"github.com/syssam/relgraph/store/memstore"
)

func testSchema() *schema.Schema {
	return schema.NewBuilder(1).
		Entity("Car", schema.Edges(
			edge.Contains("wheels", "Wheel").Embedded(),
			edge.To("driver", "Person").Ref("drives").Unique(),
			edge.To("previous", "Car").Unique(),
		)).
		Entity("Wheel", schema.Edges(edge.To("brand", "Brand").Unique())).
		Entity("Brand").
		Entity("Person", schema.Edges(
			edge.To("drives", "Car").Ref("driver"),
			edge.To("favorite", "Wheel"),
		)).
		MustBuild()
}

// fixture:
//
//	c1 -wheels-> w1, w2     w1 -brand-> b1
//	c1 -driver-> p1 (two-way with p1.drives)
//	p2 -favorite-> w1       c2 -previous-> c1
func fixture(t *testing.T) (*schema.Schema, store.Tx) {
	t.Helper()
	s := testSchema()
	ctx := context.Background()
	tx, err := memstore.New().Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	for id, typ := range map[string]string{
		"c1": "Car", "c2": "Car", "w1": "Wheel", "w2": "Wheel", "b1": "Brand", "p1": "Person", "p2": "Person",
	} {
		require.NoError(t, tx.Insert(ctx, &entity.Instance{ID: id, Type: s.MustType(typ)}))
	}
	link := func(owner, member, from string, to ...string) {
		require.NoError(t, tx.AddEdges(ctx, s.MustType(owner).MustMember(member), from, to...))
	}
	link("Car", "wheels", "c1", "w1", "w2")
	link("Wheel", "brand", "w1", "b1")
	link("Person", "drives", "p1", "c1")
	link("Person", "favorite", "p2", "w1")
	link("Car", "previous", "c2", "c1")
	return s, tx
}

func names(g *Graph, ls []Link) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Member.String() + ":" + g.Target(l).ID
	}
	return out
}

func TestCollect(t *testing.T) {
	s, tx := fixture(t)
	g, err := NewCollector(s).Collect(context.Background(), tx, s.MustType("Car"), "c1")
	require.NoError(t, err)

	// c1, w1, w2 expanded; p1, b1, p2, c2 shallow.
	assert.Equal(t, 7, g.Len())
	assert.Len(t, g.Nodes(), 7)
	require.Len(t, g.Roots(), 1)
	c1 := g.Roots()[0]
	assert.True(t, c1.Expanded)

	assert.Equal(t, []string{"Car.wheels:w1", "Car.wheels:w2"}, names(g, c1.Containments))
	assert.Equal(t, []string{"Car.driver:p1"}, names(g, c1.References))
	assert.ElementsMatch(t, []string{"Person.drives:p1", "Car.previous:c2"}, names(g, c1.BackReferences))

	w1, ok := g.Node("w1")
	require.True(t, ok)
	assert.True(t, w1.Expanded)
	assert.Equal(t, []string{"Wheel.brand:b1"}, names(g, w1.References))
	assert.Equal(t, []string{"Person.favorite:p2"}, names(g, w1.BackReferences))

	for _, id := range []string{"p1", "p2", "b1", "c2"} {
		n, ok := g.Node(id)
		require.True(t, ok, id)
		assert.False(t, n.Expanded, id)
		assert.Empty(t, n.References, id)
	}

	// The two-way edge appears on both sides and points at one node.
	ref := g.Target(c1.References[0])
	for _, l := range c1.BackReferences {
		if l.Member.Name == "drives" {
			assert.Same(t, ref, g.Target(l))
		}
	}
}

func TestCollectSharedNodes(t *testing.T) {
	s, tx := fixture(t)
	g, err := NewCollector(s).Collect(context.Background(), tx, s.MustType("Car"), "c2", "c1", "c2")
	require.NoError(t, err)
	require.Len(t, g.Roots(), 2)
	assert.Equal(t, "c2", g.Roots()[0].ID)

	// c1 is a root and the target of c2.previous: one node, expanded.
	c2 := g.Roots()[0]
	require.Equal(t, []string{"Car.previous:c1"}, names(g, c2.References))
	c1 := g.Target(c2.References[0])
	assert.Same(t, g.Roots()[1], c1)
	assert.True(t, c1.Expanded)
	assert.Equal(t, 7, g.Len())
}

func TestCollectErrors(t *testing.T) {
	s, tx := fixture(t)
	c := NewCollector(s)
	_, err := c.Collect(context.Background(), tx, s.MustType("Person"), "c1")
	assert.True(t, relgraph.IsValidationError(err))
	_, err = c.Collect(context.Background(), tx, s.MustType("Car"), "c1", "missing")
	assert.True(t, relgraph.IsNotFound(err))
	_, err = c.Collect(context.Background(), tx, testSchema().MustType("Car"), "c1")
	assert.True(t, relgraph.IsValidationError(err), "type of another schema")
}
