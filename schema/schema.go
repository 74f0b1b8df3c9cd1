package schema

import (
	"fmt"

	"github.com/syssam/relgraph/expr"
	"github.com/syssam/relgraph/schema/edge"
	"github.com/syssam/relgraph/schema/field"
)

type (
	// Kind is the kind of a relation member.
	Kind = edge.Kind
	// AttrType is the scalar type of an attribute.
	AttrType = field.Type
)

// Relation kinds.
const (
	Association = edge.Association
	Aggregation = edge.Aggregation
	Containment = edge.Containment
)

// Unbounded is the upper bound of members without a maximum.
const Unbounded = edge.Unbounded

// Attribute is a stored or derived scalar of an entity type.
type Attribute struct {
	Name     string
	Type     AttrType
	Optional bool
	Derived  expr.Func
	Owner    *EntityType
	Comment  string
}

// IsDerived reports if the attribute is computed rather than stored.
func (a *Attribute) IsDerived() bool { return a.Derived != nil }

// Range restricts the legal targets of a relation member.
type Range struct {
	Eval expr.Func
	// Self is set when the expression references the owning instance.
	Self bool
}

// RelationMember is one named, directed end of a relation.
type RelationMember struct {
	Name                 string
	Owner                *EntityType
	Target               *EntityType
	Kind                 Kind
	Lower                int
	Upper                int
	Embedded             bool
	ReverseCascadeDelete bool
	Range                *Range
	Comment              string

	pair *RelationPair
	end  int
}

// String returns the qualified name of the member (Owner.name).
func (m *RelationMember) String() string {
	return m.Owner.Name + "." + m.Name
}

// Partner returns the reverse end of a two-way relation, or nil.
func (m *RelationMember) Partner() *RelationMember {
	if m.pair == nil {
		return nil
	}
	return m.pair.ends[1-m.end]
}

// Pair returns the relation pair the member belongs to, or nil for one-way members.
func (m *RelationMember) Pair() *RelationPair { return m.pair }

// IsTwoWay reports if the member has a partner.
func (m *RelationMember) IsTwoWay() bool { return m.pair != nil }

// IsContainment reports if the member owns its targets.
func (m *RelationMember) IsContainment() bool { return m.Kind == Containment }

// Unbounded reports if the member has no upper bound.
func (m *RelationMember) Unbounded() bool { return m.Upper < 0 }

// Allows reports if n edges satisfy the member's bounds.
func (m *RelationMember) Allows(n int) bool {
	return n >= m.Lower && (m.Upper < 0 || n <= m.Upper)
}

// Storage returns the member under which edges of m are stored and whether
// they are stored reversed (target -> owner). Edges of a pair are stored
// once, under the pair's canonical end.
func (m *RelationMember) Storage() (*RelationMember, bool) {
	if m.pair == nil || m.end == 0 {
		return m, false
	}
	return m.pair.ends[0], true
}

// RelationPair joins the two ends of a two-way relation.
type RelationPair struct {
	ends [2]*RelationMember
}

// Ends returns the canonical end first.
func (p *RelationPair) Ends() (*RelationMember, *RelationMember) {
	return p.ends[0], p.ends[1]
}

// EntityType is a node of the schema.
type EntityType struct {
	Name       string
	Abstract   bool
	Supertypes []*EntityType
	Attributes []*Attribute      // Declared on this type only.
	Members    []*RelationMember // Declared on this type only.
	Comment    string

	schema   *Schema
	ancestry map[*EntityType]struct{}
	attrs    []*Attribute
	members  []*RelationMember
	incoming []*RelationMember
}

// String returns the type name.
func (t *EntityType) String() string { return t.Name }

// IsA reports if t is u or a (transitive) subtype of u.
func (t *EntityType) IsA(u *EntityType) bool {
	_, ok := t.ancestry[u]
	return ok
}

// AllAttributes returns the declared and inherited attributes.
func (t *EntityType) AllAttributes() []*Attribute { return t.attrs }

// AllMembers returns the declared and inherited relation members.
func (t *EntityType) AllMembers() []*RelationMember { return t.members }

// Incoming returns every member, declared anywhere in the schema, that may
// hold an edge to an instance of t.
func (t *EntityType) Incoming() []*RelationMember { return t.incoming }

// Attribute returns the attribute with the given name.
func (t *EntityType) Attribute(name string) (*Attribute, bool) {
	for _, a := range t.attrs {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Member returns the relation member with the given name.
func (t *EntityType) Member(name string) (*RelationMember, bool) {
	for _, m := range t.members {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// MustMember is like Member but panics if the member does not exist.
func (t *EntityType) MustMember(name string) *RelationMember {
	m, ok := t.Member(name)
	if !ok {
		panic(fmt.Sprintf("schema: %s has no member %q", t.Name, name))
	}
	return m
}

// Schema is an immutable, validated set of entity types.
// It is safe for concurrent use.
type Schema struct {
	Version int
	types   []*EntityType
	byName  map[string]*EntityType
	pairs   []*RelationPair
}

// Types returns all entity types in declaration order.
func (s *Schema) Types() []*EntityType { return s.types }

// Pairs returns all two-way relations.
func (s *Schema) Pairs() []*RelationPair { return s.pairs }

// Type returns the entity type with the given name.
func (s *Schema) Type(name string) (*EntityType, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// MustType is like Type but panics if the type does not exist.
func (s *Schema) MustType(name string) *EntityType {
	t, ok := s.byName[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown type %q", name))
	}
	return t
}

// Concrete returns the non-abstract types that are t or a subtype of t.
func (s *Schema) Concrete(t *EntityType) []*EntityType {
	var out []*EntityType
	for _, u := range s.types {
		if !u.Abstract && u.IsA(t) {
			out = append(out, u)
		}
	}
	return out
}

// Members returns every relation member of the schema, in declaration order.
func (s *Schema) Members() []*RelationMember {
	var out []*RelationMember
	for _, t := range s.types {
		out = append(out, t.Members...)
	}
	return out
}

// StoredMembers returns the members under which edges are stored:
// one-way members and the canonical end of every pair.
func (s *Schema) StoredMembers() []*RelationMember {
	var out []*RelationMember
	for _, m := range s.Members() {
		if sm, rev := m.Storage(); !rev && sm == m {
			out = append(out, m)
		}
	}
	return out
}
