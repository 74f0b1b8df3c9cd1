// Package cardinality checks relation mutations against the bounds of the
// relation member before they are applied.
package cardinality

import (
	"fmt"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/schema"
)

// Op is a relation mutation.
type Op uint8

// Relation mutations.
const (
	// Create adds edges to an instance created in the same call. The
	// instance must be complete afterwards, so both bounds apply.
	Create Op = iota + 1
	// Add appends edges to an existing instance.
	Add
	// Remove removes edges.
	Remove
	// Set replaces all edges; delta is the size of the new set.
	Set
	// Unset removes all edges of a single valued member.
	Unset
	// CascadeRemove removes edges of an owner that is deleted itself.
	CascadeRemove
)

var opNames = [...]string{
	Create:        "create",
	Add:           "add",
	Remove:        "remove",
	Set:           "set",
	Unset:         "unset",
	CascadeRemove: "cascade-remove",
}

// String returns the operation name.
func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Validate reports whether applying op with delta edges to a member of m
// holding current edges leaves the count within [m.Lower, m.Upper]. It
// returns a *relgraph.CardinalityError describing the rejected count.
func Validate(m *schema.RelationMember, current int, op Op, delta int) error {
	var (
		count int
		ok    bool
	)
	switch op {
	case Create:
		count = current + delta
		ok = m.Allows(count)
	case Add:
		count = current + delta
		ok = m.Unbounded() || count <= m.Upper
	case Remove, Unset:
		count = current - delta
		if count < 0 {
			count = 0
		}
		ok = count >= m.Lower
	case Set:
		count = delta
		ok = m.Allows(count)
	case CascadeRemove:
		return nil
	default:
		return fmt.Errorf("cardinality: unknown operation %v", op)
	}
	if ok {
		return nil
	}
	return &relgraph.CardinalityError{
		Entity:   m.Owner.Name,
		Relation: m.Name,
		Op:       op.String(),
		Lower:    m.Lower,
		Upper:    m.Upper,
		Count:    count,
	}
}
