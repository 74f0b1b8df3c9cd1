package ranges

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/expr"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/schema/field"
	"github.com/syssam/relgraph/store"
	"github.com/syssam/relgraph/store/memstore"
)

func label(c expr.Context) (any, error) {
	name, _ := c.Self().Attr("name")
	model, _ := c.Self().Attr("model")
	return fmt.Sprintf("%v/%v", name, model), nil
}

// siblings returns the wheels of the car holding the owner wheel.
func siblings(c expr.Context) (any, error) {
	cars, err := c.Self().Related(c, "car")
	if err != nil || len(cars) == 0 {
		return nil, err
	}
	return cars[0].Related(c, "wheels")
}

func testSchema(evals *atomic.Int32) *schema.Schema {
	licensed := expr.Filter(expr.AllOf("Person"), func(n expr.Node) bool {
		v, _ := n.Attr("licensed")
		return v == true
	})
	return schema.NewBuilder(1).
		Entity("Car",
			schema.Fields(
				field.String("name"),
				field.String("model").Optional(),
				field.Derived("label", field.TypeString, label),
			),
			schema.Edges(
				edge.Contains("wheels", "Wheel").Bounds(0, 5).Ref("car"),
				edge.To("spare", "Wheel").Unique().RangeSelf(expr.SelfRelated("wheels")),
				edge.To("driver", "Person").Unique().Range(func(c expr.Context) (any, error) {
					evals.Add(1)
					return licensed(c)
				}),
			)).
		Entity("Wheel",
			schema.Fields(field.Int("position").Optional()),
			schema.Edges(
				edge.To("car", "Car").Ref("wheels").Unique(),
				edge.To("sibling", "Wheel").RangeSelf(siblings),
			)).
		Entity("Person", schema.Fields(field.Bool("licensed"))).
		MustBuild()
}

type fixture struct {
	t     *testing.T
	s     *schema.Schema
	tx    store.Tx
	evals atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{t: t}
	f.s = testSchema(&f.evals)
	tx, err := memstore.New().Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	f.tx = tx
	return f
}

func (f *fixture) insert(typ, id string, attrs map[string]any) {
	require.NoError(f.t, f.tx.Insert(context.Background(), &entity.Instance{ID: id, Type: f.s.MustType(typ), Attrs: attrs}))
}

func (f *fixture) member(typ, name string) *schema.RelationMember {
	return f.s.MustType(typ).MustMember(name)
}

func TestRangeTransient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert("Wheel", "stored", nil)
	car := entity.NewPayload("Car").Set("name", "beetle")
	ids := map[*entity.Payload]string{car: "car"}
	for i := range 5 {
		w := entity.NewPayload("Wheel").WithKey(fmt.Sprintf("w%d", i)).Set("position", i)
		car.Child("wheels", w)
		ids[w] = fmt.Sprintf("wheel-%d", i)
	}
	car.Ref("spare", entity.RefKey("w3"))
	owner := Transient{Root: car, Node: car, IDs: ids}

	r := NewResolver(f.s)
	got, err := r.RangeOf(ctx, f.tx, f.member("Car", "spare"), owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"wheel-0", "wheel-1", "wheel-2", "wheel-3", "wheel-4"}, entity.IDs(got))
	assert.Equal(t, "Wheel", got[2].Type.Name)

	require.NoError(t, r.Check(ctx, f.tx, f.member("Car", "spare"), owner, "wheel-3"))
	err = r.Check(ctx, f.tx, f.member("Car", "spare"), owner, "stored")
	assert.True(t, relgraph.IsRangeError(err), "got %v", err)
	err = r.Check(ctx, f.tx, f.member("Car", "spare"), owner, "missing")
	assert.True(t, relgraph.IsNotFound(err), "got %v", err)

	// Without planned identifiers the nodes still resolve.
	got, err = r.RangeOf(ctx, f.tx, f.member("Car", "spare"), Transient{Root: car, Node: car})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	// A wheel reaches its siblings through the partner of the containment.
	w2 := car.Children["wheels"][2]
	got, err = r.RangeOf(ctx, f.tx, f.member("Wheel", "sibling"), Transient{Root: car, Node: w2, IDs: ids})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	_, err = r.RangeOf(ctx, f.tx, f.member("Car", "spare"), Transient{Root: car, Node: entity.NewPayload("Car")})
	assert.Error(t, err)
}

func TestRangePersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert("Car", "c1", map[string]any{"name": "beetle"})
	for _, id := range []string{"w1", "w2", "w9"} {
		f.insert("Wheel", id, nil)
	}
	require.NoError(t, f.tx.AddEdges(ctx, f.member("Car", "wheels"), "c1", "w1", "w2"))

	r := NewResolver(f.s)
	spare := f.member("Car", "spare")
	got, err := r.RangeOf(ctx, f.tx, spare, Persisted{ID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, entity.IDs(got))

	require.NoError(t, r.Check(ctx, f.tx, spare, Persisted{ID: "c1"}, "w2"))
	assert.True(t, relgraph.IsRangeError(r.Check(ctx, f.tx, spare, Persisted{ID: "c1"}, "w9")))
	assert.True(t, relgraph.IsNotFound(r.Check(ctx, f.tx, spare, Persisted{ID: "c1"}, "missing")))
	_, err = r.RangeOf(ctx, f.tx, spare, Persisted{ID: "missing"})
	assert.True(t, relgraph.IsNotFound(err))

	// The sibling range navigates the two-way relation in the store.
	got, err = r.RangeOf(ctx, f.tx, f.member("Wheel", "sibling"), &Persisted{ID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, entity.IDs(got))

	// Deleted candidates are gone.
	require.NoError(t, f.tx.Delete(ctx, "w1"))
	got, err = r.RangeOf(ctx, f.tx, spare, Persisted{ID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, entity.IDs(got))
	assert.True(t, relgraph.IsNotFound(r.Check(ctx, f.tx, spare, Persisted{ID: "c1"}, "w1")))
}

func TestRangeStatic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert("Person", "p1", map[string]any{"licensed": true})
	f.insert("Person", "p2", map[string]any{"licensed": false})
	driver := f.member("Car", "driver")

	r := NewResolver(f.s)
	got, err := r.RangeOf(ctx, f.tx, driver, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, entity.IDs(got))
	_, err = r.RangeOf(ctx, f.tx, driver, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.evals.Load(), "static ranges are evaluated once")
	assert.True(t, relgraph.IsRangeError(r.Check(ctx, f.tx, driver, nil, "p2")))

	require.NoError(t, f.tx.Delete(ctx, "p1"))
	f.insert("Person", "p3", map[string]any{"licensed": true})
	got, err = r.RangeOf(ctx, f.tx, driver, nil)
	require.NoError(t, err)
	assert.Empty(t, got, "deleted candidate dropped, new one not yet evaluated")

	r.Invalidate()
	got, err = r.RangeOf(ctx, f.tx, driver, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, entity.IDs(got))
	assert.EqualValues(t, 2, f.evals.Load())
}

func TestRangeUnrestricted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert("Wheel", "w2", nil)
	f.insert("Wheel", "w1", nil)
	r := NewResolver(f.s)
	got, err := r.RangeOf(ctx, f.tx, f.member("Car", "wheels"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, entity.IDs(got))
	require.NoError(t, r.Check(ctx, f.tx, f.member("Car", "wheels"), nil, "w1", "w2"))
	assert.True(t, relgraph.IsNotFound(r.Check(ctx, f.tx, f.member("Car", "wheels"), nil, "w3")))
}

func TestDerived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert("Car", "c1", map[string]any{"name": "vw", "model": "golf"})
	r := NewResolver(f.s)
	c1, err := f.tx.Get(ctx, "c1")
	require.NoError(t, err)
	d, err := r.Derived(ctx, f.tx, c1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"label": "vw/golf"}, d)

	w, err := r.Derived(ctx, f.tx, &entity.Instance{ID: "w", Type: f.s.MustType("Wheel")})
	require.NoError(t, err)
	assert.Nil(t, w)
}
