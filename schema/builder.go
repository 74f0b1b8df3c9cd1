package schema

import (
	"errors"
	"fmt"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/schema/field"
)

// Field is implemented by attribute builders (see package field).
type Field interface {
	Descriptor() *field.Descriptor
}

// Edge is implemented by relation member builders (see package edge).
type Edge interface {
	Descriptor() *edge.Descriptor
}

type entityDef struct {
	name       string
	abstract   bool
	supertypes []string
	fields     []*field.Descriptor
	edges      []*edge.Descriptor
	comment    string
}

// Option configures an entity type definition.
type Option func(*entityDef)

// Fields adds attributes to the entity type.
func Fields(fs ...Field) Option {
	return func(d *entityDef) {
		for _, f := range fs {
			d.fields = append(d.fields, f.Descriptor())
		}
	}
}

// Edges adds relation members to the entity type.
func Edges(es ...Edge) Option {
	return func(d *entityDef) {
		for _, e := range es {
			d.edges = append(d.edges, e.Descriptor())
		}
	}
}

// Extends declares the supertypes of the entity type.
func Extends(names ...string) Option {
	return func(d *entityDef) {
		d.supertypes = append(d.supertypes, names...)
	}
}

// Abstract marks the entity type as abstract. Abstract types have no
// instances of their own.
func Abstract() Option {
	return func(d *entityDef) {
		d.abstract = true
	}
}

// Comment sets the comment of the entity type.
func Comment(c string) Option {
	return func(d *entityDef) {
		d.comment = c
	}
}

// Builder collects entity type definitions and compiles them into a Schema.
type Builder struct {
	version int
	defs    []*entityDef
}

// NewBuilder returns a builder for the given schema version.
func NewBuilder(version int) *Builder {
	return &Builder{version: version}
}

// Entity adds an entity type definition.
func (b *Builder) Entity(name string, opts ...Option) *Builder {
	d := &entityDef{name: name}
	for _, opt := range opts {
		opt(d)
	}
	b.defs = append(b.defs, d)
	return b
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Build validates the definitions and returns the compiled schema.
func (b *Builder) Build() (*Schema, error) {
	s := &Schema{
		Version: b.version,
		byName:  make(map[string]*EntityType, len(b.defs)),
	}
	var errs []error
	fail := func(name string, format string, args ...any) {
		errs = append(errs, relgraph.NewValidationError(name, fmt.Errorf(format, args...)))
	}
	for _, d := range b.defs {
		if d.name == "" {
			fail("", "entity type without name")
			continue
		}
		if _, ok := s.byName[d.name]; ok {
			fail(d.name, "duplicate entity type")
			continue
		}
		t := &EntityType{Name: d.name, Abstract: d.abstract, Comment: d.comment, schema: s}
		s.types = append(s.types, t)
		s.byName[d.name] = t
	}
	if len(errs) > 0 {
		return nil, relgraph.NewAggregateError(errs...)
	}
	for i, d := range b.defs {
		t := s.types[i]
		for _, name := range d.supertypes {
			st, ok := s.byName[name]
			if !ok {
				fail(t.Name, "unknown supertype %q", name)
				continue
			}
			t.Supertypes = append(t.Supertypes, st)
		}
		for _, fd := range d.fields {
			if fd.Err != nil {
				fail(t.Name+"."+fd.Name, "%w", fd.Err)
				continue
			}
			t.Attributes = append(t.Attributes, &Attribute{
				Name:     fd.Name,
				Type:     fd.Type,
				Optional: fd.Optional,
				Derived:  fd.Derived,
				Owner:    t,
				Comment:  fd.Comment,
			})
		}
		for _, ed := range d.edges {
			if ed.Err != nil {
				fail(t.Name+"."+ed.Name, "%w", ed.Err)
				continue
			}
			target, ok := s.byName[ed.Type]
			if !ok {
				fail(t.Name+"."+ed.Name, "unknown target type %q", ed.Type)
				continue
			}
			if ed.Lower < 0 || (ed.Upper != Unbounded && (ed.Upper < 0 || ed.Upper < ed.Lower)) {
				fail(t.Name+"."+ed.Name, "invalid bounds [%d..%d]", ed.Lower, ed.Upper)
				continue
			}
			m := &RelationMember{
				Name:                 ed.Name,
				Owner:                t,
				Target:               target,
				Kind:                 ed.Kind,
				Lower:                ed.Lower,
				Upper:                ed.Upper,
				Embedded:             ed.Embedded,
				ReverseCascadeDelete: ed.ReverseCascadeDelete,
				Comment:              ed.Comment,
			}
			if ed.Range != nil {
				m.Range = &Range{Eval: ed.Range, Self: ed.RangeSelf}
			}
			t.Members = append(t.Members, m)
		}
	}
	if len(errs) > 0 {
		return nil, relgraph.NewAggregateError(errs...)
	}
	if err := s.resolveAncestry(); err != nil {
		return nil, err
	}
	for _, t := range s.types {
		if err := t.inherit(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, relgraph.NewAggregateError(errs...)
	}
	if err := s.pairMembers(b.defs); err != nil {
		return nil, err
	}
	all := s.Members()
	for _, t := range s.types {
		for _, m := range all {
			if t.IsA(m.Target) {
				t.incoming = append(t.incoming, m)
			}
		}
	}
	return s, nil
}

// resolveAncestry rejects generalization cycles and computes the
// reflexive-transitive supertype set of every type.
func (s *Schema) resolveAncestry() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*EntityType]int, len(s.types))
	var visit func(t *EntityType, path []string) error
	visit = func(t *EntityType, path []string) error {
		switch state[t] {
		case visiting:
			return relgraph.NewValidationError(t.Name, fmt.Errorf("generalization cycle: %v", append(path, t.Name)))
		case done:
			return nil
		}
		state[t] = visiting
		t.ancestry = map[*EntityType]struct{}{t: {}}
		for _, st := range t.Supertypes {
			if err := visit(st, append(path, t.Name)); err != nil {
				return err
			}
			for a := range st.ancestry {
				t.ancestry[a] = struct{}{}
			}
		}
		state[t] = done
		return nil
	}
	for _, t := range s.types {
		if err := visit(t, nil); err != nil {
			return err
		}
	}
	return nil
}

// inherit collects declared and inherited attributes and members, rejecting
// name clashes between distinct declarations.
func (t *EntityType) inherit() error {
	var (
		errs  []error
		names = make(map[string]any)
		seen  = make(map[any]struct{})
	)
	var walk func(u *EntityType)
	walk = func(u *EntityType) {
		for _, a := range u.Attributes {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			if prev, ok := names[a.Name]; ok && prev != any(a) {
				errs = append(errs, relgraph.NewValidationError(t.Name+"."+a.Name, errors.New("name declared more than once")))
				continue
			}
			names[a.Name] = a
			t.attrs = append(t.attrs, a)
		}
		for _, m := range u.Members {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			if prev, ok := names[m.Name]; ok && prev != any(m) {
				errs = append(errs, relgraph.NewValidationError(t.Name+"."+m.Name, errors.New("name declared more than once")))
				continue
			}
			names[m.Name] = m
			t.members = append(t.members, m)
		}
		for _, st := range u.Supertypes {
			walk(st)
		}
	}
	walk(t)
	return relgraph.NewAggregateError(errs...)
}

// pairMembers joins members that name each other with Ref into pairs.
func (s *Schema) pairMembers(defs []*entityDef) error {
	refs := make(map[*RelationMember]string)
	for i, d := range defs {
		t := s.types[i]
		for _, ed := range d.edges {
			if ed.RefName == "" {
				continue
			}
			for _, m := range t.Members {
				if m.Name == ed.Name {
					refs[m] = ed.RefName
				}
			}
		}
	}
	var errs []error
	for _, m := range s.Members() {
		ref, ok := refs[m]
		if !ok || m.pair != nil {
			continue
		}
		p, ok := m.Target.Member(ref)
		switch {
		case !ok:
			errs = append(errs, relgraph.NewValidationError(m.String(), fmt.Errorf("partner %s.%s does not exist", m.Target.Name, ref)))
			continue
		case p == m:
			errs = append(errs, relgraph.NewValidationError(m.String(), errors.New("member cannot be its own partner")))
			continue
		case refs[p] != m.Name || p.Owner != m.Target || p.Target != m.Owner:
			errs = append(errs, relgraph.NewValidationError(m.String(), fmt.Errorf("partner %s does not refer back", p)))
			continue
		case m.IsContainment() && p.IsContainment():
			errs = append(errs, relgraph.NewValidationError(m.String(), fmt.Errorf("both ends of %s/%s are containments", m, p)))
			continue
		}
		a, b := m, p
		if b.String() < a.String() {
			a, b = b, a
		}
		pair := &RelationPair{ends: [2]*RelationMember{a, b}}
		a.pair, a.end = pair, 0
		b.pair, b.end = pair, 1
		s.pairs = append(s.pairs, pair)
	}
	return relgraph.NewAggregateError(errs...)
}
