package cardinality

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/edge"
)

func members(t *testing.T) (wheels, engine, tags *schema.RelationMember) {
	t.Helper()
	s := schema.NewBuilder(1).
		Entity("Car", schema.Edges(
			edge.Contains("wheels", "Wheel").Bounds(3, 5),
			edge.To("engine", "Engine").Required().Unique(),
			edge.To("tags", "Tag"),
		)).
		Entity("Wheel").
		Entity("Engine").
		Entity("Tag").
		MustBuild()
	car := s.MustType("Car")
	return car.MustMember("wheels"), car.MustMember("engine"), car.MustMember("tags")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	wheels, engine, tags := members(t)
	tests := []struct {
		name    string
		m       *schema.RelationMember
		current int
		op      Op
		delta   int
		count   int // Expected count of the error; 0 means valid.
		wantErr bool
	}{
		{name: "create within bounds", m: wheels, op: Create, delta: 4},
		{name: "create below lower", m: wheels, op: Create, delta: 2, count: 2, wantErr: true},
		{name: "create above upper", m: wheels, op: Create, delta: 6, count: 6, wantErr: true},
		{name: "create counts partner edges", m: wheels, current: 1, op: Create, delta: 2},
		{name: "add at upper", m: wheels, current: 4, op: Add, delta: 1},
		{name: "add above upper", m: wheels, current: 5, op: Add, delta: 1, count: 6, wantErr: true},
		{name: "add ignores lower", m: wheels, current: 0, op: Add, delta: 1},
		{name: "add unbounded", m: tags, current: 1000, op: Add, delta: 1000},
		{name: "remove to lower", m: wheels, current: 4, op: Remove, delta: 1},
		{name: "remove below lower", m: wheels, current: 3, op: Remove, delta: 1, count: 2, wantErr: true},
		{name: "unset required", m: engine, current: 1, op: Unset, delta: 1, count: 0, wantErr: true},
		{name: "unset optional", m: tags, current: 1, op: Unset, delta: 1},
		{name: "set within bounds", m: wheels, current: 5, op: Set, delta: 3},
		{name: "set below lower", m: wheels, current: 5, op: Set, delta: 2, count: 2, wantErr: true},
		{name: "set above upper", m: wheels, op: Set, delta: 6, count: 6, wantErr: true},
		{name: "set empty optional", m: tags, current: 2, op: Set, delta: 0},
		{name: "cascade remove", m: engine, current: 1, op: CascadeRemove, delta: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.m, tt.current, tt.op, tt.delta)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, relgraph.ErrCardinality)
			var ce *relgraph.CardinalityError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.m.Owner.Name, ce.Entity)
			assert.Equal(t, tt.m.Name, ce.Relation)
			assert.Equal(t, tt.op.String(), ce.Op)
			assert.Equal(t, tt.m.Lower, ce.Lower)
			assert.Equal(t, tt.m.Upper, ce.Upper)
			assert.Equal(t, tt.count, ce.Count)
		})
	}
}

func TestValidateUnknownOp(t *testing.T) {
	t.Parallel()
	wheels, _, _ := members(t)
	err := Validate(wheels, 0, Op(42), 1)
	require.Error(t, err)
	assert.False(t, relgraph.IsCardinalityError(err))
	assert.Equal(t, "Op(42)", Op(42).String())
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	wheels, _, _ := members(t)
	err := Validate(wheels, 5, Add, 2)
	assert.EqualError(t, err, "relgraph: cardinality violation on Car.wheels (add): 7 edges outside [3..5]")
}
