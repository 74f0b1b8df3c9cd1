package edge

import (
	"fmt"

	"github.com/syssam/relgraph/expr"
)

// Kind is the kind of a relation member.
type Kind uint8

// Relation kinds.
const (
	Association Kind = iota
	Aggregation
	Containment
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Association:
		return "association"
	case Aggregation:
		return "aggregation"
	case Containment:
		return "containment"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "association", "":
		return Association, nil
	case "aggregation":
		return Aggregation, nil
	case "containment":
		return Containment, nil
	}
	return 0, fmt.Errorf("edge: unknown kind %q", s)
}

// Unbounded is the upper bound of members without a maximum.
const Unbounded = -1

// A Descriptor for relation member configuration.
type Descriptor struct {
	Name                 string
	Type                 string // Target entity type name.
	Kind                 Kind
	Lower                int
	Upper                int
	Embedded             bool
	ReverseCascadeDelete bool
	RefName              string // Name of the partner member on the target type.
	Range                expr.Func
	RangeSelf            bool // Range references the owning instance.
	Comment              string
	Err                  error
}

// Builder for relation members.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name, target string, k Kind) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Type: target, Kind: k, Upper: Unbounded}}
	switch {
	case name == "":
		b.desc.Err = fmt.Errorf("edge: missing name for %s to %q", k, target)
	case target == "":
		b.desc.Err = fmt.Errorf("edge: missing target type for %q", name)
	}
	return b
}

// To defines an association member.
func To(name, target string) *Builder { return newBuilder(name, target, Association) }

// Aggregates defines an aggregation member.
func Aggregates(name, target string) *Builder { return newBuilder(name, target, Aggregation) }

// Contains defines a containment member.
func Contains(name, target string) *Builder { return newBuilder(name, target, Containment) }

// New defines a member of the given kind.
func New(name, target string, k Kind) *Builder { return newBuilder(name, target, k) }

// Bounds sets the lower and upper cardinality of the member.
// Use Unbounded as upper for no maximum.
func (b *Builder) Bounds(lower, upper int) *Builder {
	b.desc.Lower, b.desc.Upper = lower, upper
	return b
}

// Required sets the lower bound to 1.
func (b *Builder) Required() *Builder {
	b.desc.Lower = 1
	return b
}

// Unique sets the upper bound to 1.
func (b *Builder) Unique() *Builder {
	b.desc.Upper = 1
	return b
}

// Embedded indicates that reads nest the target inline.
func (b *Builder) Embedded() *Builder {
	b.desc.Embedded = true
	return b
}

// ReverseCascadeDelete indicates that deleting a target of this member
// deletes the owner as well.
func (b *Builder) ReverseCascadeDelete() *Builder {
	b.desc.ReverseCascadeDelete = true
	return b
}

// Ref names the partner member on the target type, making the relation two-way.
func (b *Builder) Ref(name string) *Builder {
	b.desc.RefName = name
	return b
}

// Range restricts valid targets to the instances returned by fn.
// fn must not depend on the owning instance; see RangeSelf.
func (b *Builder) Range(fn expr.Func) *Builder {
	b.desc.Range, b.desc.RangeSelf = fn, false
	return b
}

// RangeSelf restricts valid targets to the instances returned by fn,
// evaluated with the owning instance bound to Context.Self.
func (b *Builder) RangeSelf(fn expr.Func) *Builder {
	b.desc.Range, b.desc.RangeSelf = fn, true
	return b
}

// Comment sets the comment of the member.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the schema.Edge interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
