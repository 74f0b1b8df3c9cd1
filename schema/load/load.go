// Package load reads schema descriptions from YAML documents and keeps a
// hot-reloadable current schema.
//
// Expressions are opaque to the engine, so ranges and derived attributes
// refer to evaluators by name; the caller supplies them with WithEvaluators.
//
//	version: 3
//	entities:
//	  - name: Car
//	    attributes:
//	      - {name: name, type: string}
//	    relations:
//	      - {name: wheels, target: Wheel, kind: containment, upper: 5, embedded: true}
//	      - {name: spare_wheel, target: Wheel, upper: 1, range: car.spare, range_self: true}
//	  - name: Wheel
//	    mixins: [time]
//	    attributes:
//	      - {name: position, type: int}
//
// Mixins name attribute sets of package mixin.
package load

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/relgraph/contrib/mixin"
	"github.com/syssam/relgraph/expr"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/schema/field"
)

// Document is the YAML representation of a schema.
type Document struct {
	Version  int      `yaml:"version"`
	Entities []Entity `yaml:"entities"`
}

// Entity is the YAML representation of an entity type.
type Entity struct {
	Name       string      `yaml:"name"`
	Abstract   bool        `yaml:"abstract,omitempty"`
	Extends    []string    `yaml:"extends,omitempty"`
	Comment    string      `yaml:"comment,omitempty"`
	Mixins     []string    `yaml:"mixins,omitempty"`
	Attributes []Attribute `yaml:"attributes,omitempty"`
	Relations  []Relation  `yaml:"relations,omitempty"`
}

// Attribute is the YAML representation of an attribute.
type Attribute struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Optional bool   `yaml:"optional,omitempty"`
	Derived  string `yaml:"derived,omitempty"` // Evaluator name.
	Comment  string `yaml:"comment,omitempty"`
}

// Relation is the YAML representation of a relation member.
type Relation struct {
	Name                 string `yaml:"name"`
	Target               string `yaml:"target"`
	Kind                 string `yaml:"kind,omitempty"`
	Lower                int    `yaml:"lower,omitempty"`
	Upper                *int   `yaml:"upper,omitempty"` // Omitted means unbounded.
	Embedded             bool   `yaml:"embedded,omitempty"`
	Ref                  string `yaml:"ref,omitempty"`
	ReverseCascadeDelete bool   `yaml:"reverse_cascade_delete,omitempty"`
	Range                string `yaml:"range,omitempty"` // Evaluator name.
	RangeSelf            bool   `yaml:"range_self,omitempty"`
	Comment              string `yaml:"comment,omitempty"`
}

type options struct {
	evaluators map[string]expr.Func
	resolvers  []Resolver
}

// Resolver compiles an evaluator name that is not registered with
// WithEvaluators.
type Resolver func(name string) (expr.Func, bool)

// Option configures the loader.
type Option func(*options)

// WithEvaluators registers compiled expressions by name.
func WithEvaluators(evs map[string]expr.Func) Option {
	return func(o *options) {
		if o.evaluators == nil {
			o.evaluators = make(map[string]expr.Func, len(evs))
		}
		for k, v := range evs {
			o.evaluators[k] = v
		}
	}
}

// WithResolver adds a resolver consulted for evaluator names missing from
// the registered evaluators.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolvers = append(o.resolvers, r) }
}

// Paths resolves navigation paths: "self.<member>" yields the targets of a
// member of the owner and "all.<Type>" every instance of a type.
func Paths(name string) (expr.Func, bool) {
	scope, arg, ok := strings.Cut(name, ".")
	if !ok || arg == "" {
		return nil, false
	}
	switch scope {
	case "self":
		return expr.SelfRelated(arg), true
	case "all":
		return expr.AllOf(arg), true
	}
	return nil, false
}

func (o *options) lookup(name string) (expr.Func, error) {
	if fn, ok := o.evaluators[name]; ok {
		return fn, nil
	}
	for _, r := range o.resolvers {
		if fn, ok := r(name); ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("unknown evaluator %q", name)
}

// File reads and compiles the schema description at path.
func File(path string, opts ...Option) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: read %q: %w", path, err)
	}
	s, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("load: %s: %w", path, err)
	}
	return s, nil
}

// Parse compiles a YAML schema description.
func Parse(data []byte, opts ...Option) (*schema.Schema, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return doc.build(o.lookup)
}

// Build compiles the document into a schema.
func (d *Document) Build(evaluators map[string]expr.Func) (*schema.Schema, error) {
	o := &options{evaluators: evaluators}
	return d.build(o.lookup)
}

func (d *Document) build(lookup func(string) (expr.Func, error)) (*schema.Schema, error) {
	b := schema.NewBuilder(d.Version)
	for _, e := range d.Entities {
		var (
			fields []schema.Field
			edges  []schema.Edge
		)
		for _, a := range e.Attributes {
			typ, err := field.ParseType(a.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, a.Name, err)
			}
			var fb *field.Builder
			if a.Derived != "" {
				fn, err := lookup(a.Derived)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", e.Name, a.Name, err)
				}
				fb = field.Derived(a.Name, typ, fn)
			} else {
				fb = field.New(a.Name, typ)
				if a.Optional {
					fb.Optional()
				}
			}
			fields = append(fields, fb.Comment(a.Comment))
		}
		for _, r := range e.Relations {
			kind, err := edge.ParseKind(r.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, r.Name, err)
			}
			upper := edge.Unbounded
			if r.Upper != nil {
				upper = *r.Upper
			}
			eb := edge.New(r.Name, r.Target, kind).Bounds(r.Lower, upper).Comment(r.Comment)
			if r.Embedded {
				eb.Embedded()
			}
			if r.Ref != "" {
				eb.Ref(r.Ref)
			}
			if r.ReverseCascadeDelete {
				eb.ReverseCascadeDelete()
			}
			if r.Range != "" {
				fn, err := lookup(r.Range)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", e.Name, r.Name, err)
				}
				if r.RangeSelf {
					eb.RangeSelf(fn)
				} else {
					eb.Range(fn)
				}
			}
			edges = append(edges, eb)
		}
		opts := []schema.Option{schema.Fields(fields...), schema.Edges(edges...), schema.Comment(e.Comment)}
		for _, name := range e.Mixins {
			m, ok := mixin.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("%s: unknown mixin %q", e.Name, name)
			}
			opts = append(opts, mixin.Of(m))
		}
		if len(e.Extends) > 0 {
			opts = append(opts, schema.Extends(e.Extends...))
		}
		if e.Abstract {
			opts = append(opts, schema.Abstract())
		}
		b.Entity(e.Name, opts...)
	}
	return b.Build()
}
