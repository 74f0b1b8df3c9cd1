package load_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/syssam/relgraph/expr"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/schema/load"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const carsYAML = `
version: 2
entities:
  - name: Car
    attributes:
      - {name: name, type: string}
      - {name: label, type: string, derived: car.label}
    relations:
      - {name: wheels, target: Wheel, kind: containment, upper: 5, embedded: true}
      - {name: spare_wheel, target: Wheel, upper: 1, range: car.spare, range_self: true}
      - {name: driver, target: Person, upper: 1, ref: cars}
  - name: Wheel
    attributes:
      - {name: position, type: int, optional: true}
  - name: Person
    relations:
      - {name: cars, target: Car, ref: driver, reverse_cascade_delete: true}
`

func evaluators() map[string]expr.Func {
	return map[string]expr.Func{
		"car.label": func(expr.Context) (any, error) { return "x", nil },
		"car.spare": expr.SelfRelated("wheels"),
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	s, err := load.Parse([]byte(carsYAML), load.WithEvaluators(evaluators()))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Version)

	car := s.MustType("Car")
	wheels := car.MustMember("wheels")
	assert.Equal(t, edge.Containment, wheels.Kind)
	assert.Equal(t, 5, wheels.Upper)
	assert.True(t, wheels.Embedded)

	spare := car.MustMember("spare_wheel")
	require.NotNil(t, spare.Range)
	assert.True(t, spare.Range.Self)

	driver := car.MustMember("driver")
	assert.Equal(t, schema.Unbounded, s.MustType("Person").MustMember("cars").Upper)
	assert.True(t, driver.Partner().ReverseCascadeDelete)

	label, ok := car.Attribute("label")
	require.True(t, ok)
	assert.True(t, label.IsDerived())
	position, _ := s.MustType("Wheel").Attribute("position")
	assert.True(t, position.Optional)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"unknown_evaluator": `
entities:
  - name: A
    relations: [{name: a, target: A, range: nope}]`,
		"unknown_type": `
entities:
  - name: A
    attributes: [{name: a, type: decimal}]`,
		"unknown_kind": `
entities:
  - name: A
    relations: [{name: a, target: A, kind: composition}]`,
		"unknown_yaml_field": `
entities:
  - name: A
    colour: red`,
		"unknown_mixin": `
entities:
  - name: A
    mixins: [audit]`,
		"schema_error": `
entities:
  - name: A
    relations: [{name: b, target: B}]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := load.Parse([]byte(doc), load.WithEvaluators(evaluators()))
			assert.Error(t, err)
		})
	}
}

func TestParsePaths(t *testing.T) {
	doc := `
entities:
  - name: Car
    relations:
      - {name: wheels, target: Wheel, kind: containment}
      - {name: spare, target: Wheel, upper: 1, range: self.wheels, range_self: true}
      - {name: model, target: Model, upper: 1, range: all.Model}
  - name: Wheel
  - name: Model`
	_, err := load.Parse([]byte(doc))
	require.Error(t, err, "paths are only resolved on request")

	s, err := load.Parse([]byte(doc), load.WithResolver(load.Paths))
	require.NoError(t, err)
	spare := s.MustType("Car").MustMember("spare")
	require.NotNil(t, spare.Range)
	assert.True(t, spare.Range.Self)
	assert.False(t, s.MustType("Car").MustMember("model").Range.Self)

	_, ok := load.Paths("other.x")
	assert.False(t, ok)
	_, ok = load.Paths("self.")
	assert.False(t, ok)
}

func TestParseMixins(t *testing.T) {
	t.Parallel()
	doc := `
entities:
  - name: Order
    mixins: [time, tenant_id]
    attributes:
      - {name: total, type: float}`
	s, err := load.Parse([]byte(doc))
	require.NoError(t, err)
	var names []string
	for _, a := range s.MustType("Order").AllAttributes() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"total", "created_at", "updated_at", "tenant_id"}, names)
}

func TestFile(t *testing.T) {
	t.Parallel()
	_, err := load.File(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewWatcherRejectsInvalidArguments(t *testing.T) {
	t.Parallel()
	_, err := load.NewWatcher("", load.NewRegistry(nil))
	assert.ErrorIs(t, err, os.ErrInvalid)
	_, err = load.NewWatcher("schema.yaml", nil)
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nentities: [{name: A}]\n"), 0o644))

	initial, err := load.File(path)
	require.NoError(t, err)
	registry := load.NewRegistry(initial)

	reloaded := make(chan *schema.Schema, 4)
	w, err := load.NewWatcher(path, registry,
		load.WithDebounce(20*time.Millisecond),
		load.OnReload(func(s *schema.Schema) { reloaded <- s }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// An invalid revision must not replace the current schema.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("version: 2\nentities: [{name: A, extends: [A]}]\n"), 0o644); err != nil {
			return false
		}
		if err := os.WriteFile(path, []byte("version: 3\nentities: [{name: A}, {name: B}]\n"), 0o644); err != nil {
			return false
		}
		select {
		case s := <-reloaded:
			return s.Version == 3
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, registry.Current().Version)
	_, ok := registry.Current().Type("B")
	assert.True(t, ok)
}
