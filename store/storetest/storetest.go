// Package storetest provides a conformance suite for store implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/schema/field"
	"github.com/syssam/relgraph/store"
)

// Schema returns the schema the suite runs against.
func Schema() *schema.Schema {
	return schema.NewBuilder(1).
		Entity("Vehicle", schema.Abstract(), schema.Fields(
			field.String("name"),
			field.Time("built").Optional(),
		)).
		Entity("Car", schema.Extends("Vehicle"), schema.Edges(
			edge.Contains("wheels", "Wheel").Bounds(0, 5),
			edge.To("driver", "Person").Ref("drives").Unique(),
		)).
		Entity("Truck", schema.Extends("Vehicle")).
		Entity("Wheel", schema.Fields(field.Int("position").Optional())).
		Entity("Person", schema.Edges(edge.To("drives", "Car").Ref("driver"))).
		MustBuild()
}

// Opener returns an empty store for s.
type Opener func(t *testing.T, s *schema.Schema) store.Store

// Run runs the suite against the stores returned by open.
func Run(t *testing.T, open Opener) {
	s := Schema()
	for name, test := range map[string]func(*testing.T, *schema.Schema, store.Store){
		"Instances":   testInstances,
		"Edges":       testEdges,
		"Pair":        testPair,
		"Delete":      testDelete,
		"Transaction": testTransaction,
	} {
		t.Run(name, func(t *testing.T) {
			test(t, s, open(t, s))
		})
	}
}

func begin(t *testing.T, st store.Store) store.Tx {
	t.Helper()
	tx, err := st.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

func insert(t *testing.T, tx store.Tx, typ *schema.EntityType, id string, attrs map[string]any) {
	t.Helper()
	require.NoError(t, tx.Insert(context.Background(), &entity.Instance{ID: id, Type: typ, Attrs: attrs}))
}

func testInstances(t *testing.T, s *schema.Schema, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st)
	built := time.Date(1938, 5, 26, 0, 0, 0, 0, time.UTC)
	insert(t, tx, s.MustType("Car"), "c2", map[string]any{"name": "beetle", "built": built})
	insert(t, tx, s.MustType("Car"), "c1", map[string]any{"name": "golf"})
	insert(t, tx, s.MustType("Truck"), "t1", map[string]any{"name": "actros"})
	insert(t, tx, s.MustType("Wheel"), "w1", map[string]any{"position": int64(3)})

	c, err := tx.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "Car", c.Type.Name)
	assert.Equal(t, "beetle", c.Attrs["name"])
	got, ok := c.Attrs["built"].(time.Time)
	require.True(t, ok, "built is %T", c.Attrs["built"])
	assert.True(t, built.Equal(got))

	w, err := tx.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.Attrs["position"])

	_, err = tx.Get(ctx, "missing")
	assert.True(t, relgraph.IsNotFound(err))
	err = tx.Insert(ctx, &entity.Instance{ID: "c1", Type: s.MustType("Car")})
	assert.True(t, relgraph.IsConstraintError(err), "got %v", err)

	many, err := tx.GetMany(ctx, []string{"t1", "c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "c1", "c2"}, entity.IDs(many))
	_, err = tx.GetMany(ctx, []string{"c1", "missing"})
	assert.True(t, relgraph.IsNotFound(err))

	vs, err := tx.Instances(ctx, s.MustType("Vehicle"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "t1"}, entity.IDs(vs))
	cs, err := tx.Instances(ctx, s.MustType("Car"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, entity.IDs(cs))

	require.NoError(t, tx.Update(ctx, "c1", map[string]any{"name": "polo"}))
	c, err = tx.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "polo"}, c.Attrs)
	assert.True(t, relgraph.IsNotFound(tx.Update(ctx, "missing", nil)))
}

func testEdges(t *testing.T, s *schema.Schema, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st)
	wheels := s.MustType("Car").MustMember("wheels")
	insert(t, tx, s.MustType("Car"), "c1", map[string]any{"name": "golf"})
	for _, id := range []string{"w2", "w1", "w3"} {
		insert(t, tx, s.MustType("Wheel"), id, nil)
	}
	require.NoError(t, tx.AddEdges(ctx, wheels, "c1", "w2", "w1"))
	require.NoError(t, tx.AddEdges(ctx, wheels, "c1", "w3"))

	ids, err := tx.Targets(ctx, "c1", wheels)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2", "w1", "w3"}, ids, "insertion order")
	ids, err = tx.Sources(ctx, "w1", wheels)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
	n, err := store.Count(ctx, tx, "c1", wheels)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	err = tx.AddEdges(ctx, wheels, "c1", "w1")
	assert.True(t, relgraph.IsConstraintError(err), "got %v", err)

	require.NoError(t, tx.RemoveEdges(ctx, wheels, "c1", "w1", "missing"))
	ids, err = tx.Targets(ctx, "c1", wheels)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2", "w3"}, ids)
	ids, err = tx.Sources(ctx, "w1", wheels)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testPair(t *testing.T, s *schema.Schema, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st)
	driver := s.MustType("Car").MustMember("driver")
	drives := s.MustType("Person").MustMember("drives")
	insert(t, tx, s.MustType("Car"), "c1", map[string]any{"name": "golf"})
	insert(t, tx, s.MustType("Car"), "c2", map[string]any{"name": "polo"})
	insert(t, tx, s.MustType("Person"), "p1", nil)

	// Written through one end, visible through both.
	require.NoError(t, tx.AddEdges(ctx, drives, "p1", "c1", "c2"))
	ids, err := tx.Targets(ctx, "c1", driver)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
	ids, err = tx.Sources(ctx, "p1", driver)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
	ids, err = tx.Targets(ctx, "p1", drives)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

	err = tx.AddEdges(ctx, driver, "c1", "p1")
	assert.True(t, relgraph.IsConstraintError(err), "same logical edge")

	require.NoError(t, tx.RemoveEdges(ctx, driver, "c2", "p1"))
	ids, err = tx.Targets(ctx, "p1", drives)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func testDelete(t *testing.T, s *schema.Schema, st store.Store) {
	ctx := context.Background()
	tx := begin(t, st)
	wheels := s.MustType("Car").MustMember("wheels")
	drives := s.MustType("Person").MustMember("drives")
	insert(t, tx, s.MustType("Car"), "c1", map[string]any{"name": "golf"})
	insert(t, tx, s.MustType("Wheel"), "w1", nil)
	insert(t, tx, s.MustType("Wheel"), "w2", nil)
	insert(t, tx, s.MustType("Person"), "p1", nil)
	require.NoError(t, tx.AddEdges(ctx, wheels, "c1", "w1", "w2"))
	require.NoError(t, tx.AddEdges(ctx, drives, "p1", "c1"))

	assert.True(t, relgraph.IsNotFound(tx.Delete(ctx, "w1", "missing")))
	ok, err := store.Exists(ctx, tx, "w1")
	require.NoError(t, err)
	assert.True(t, ok, "failed delete removes nothing")

	require.NoError(t, tx.Delete(ctx, "w1", "c1"))
	for _, id := range []string{"w1", "c1"} {
		ok, err := store.Exists(ctx, tx, id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
	ids, err := tx.Sources(ctx, "w2", wheels)
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = tx.Targets(ctx, "p1", drives)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testTransaction(t *testing.T, s *schema.Schema, st store.Store) {
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	insert(t, tx, s.MustType("Wheel"), "w1", nil)
	require.NoError(t, tx.Rollback())
	assert.Error(t, tx.Rollback())

	tx, err = st.Begin(ctx)
	require.NoError(t, err)
	ok, err := store.Exists(ctx, tx, "w1")
	require.NoError(t, err)
	assert.False(t, ok, "rolled back")
	insert(t, tx, s.MustType("Wheel"), "w2", nil)
	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Commit())
	_, err = tx.Get(ctx, "w2")
	assert.Error(t, err)

	tx = begin(t, st)
	ok, err = store.Exists(ctx, tx, "w2")
	require.NoError(t, err)
	assert.True(t, ok, "committed")
}
