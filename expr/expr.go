// Package expr defines the contract between the engine and the external
// expression compiler.
//
// The compiler turns declarative getter, filter and range expressions into
// opaque Func values. The engine never parses expression text; it only
// calls the compiled functions with a Context that can navigate instances,
// whether they are persisted or still part of an in-flight creation payload.
//
// A range such as "self.wheels" compiles to something equivalent to:
//
//	func(c expr.Context) (any, error) {
//		return c.Self().Related(c, "wheels")
//	}
package expr

import (
	"context"
	"fmt"
)

// Node is a navigable view of a single instance. Transient instances, the
// nodes of a creation payload, report the identifier planned for them.
type Node interface {
	// ID returns the identifier of the instance.
	ID() string
	// Type returns the concrete entity type name.
	Type() string
	// Attr returns the value of the named attribute.
	Attr(name string) (any, bool)
	// Related returns the instances linked through the named relation member.
	Related(c Context, member string) ([]Node, error)
}

// Context is passed to every evaluation.
type Context interface {
	// Context returns the context.Context of the enclosing operation.
	Context() context.Context
	// Self returns the owning instance, or nil for static expressions.
	Self() Node
	// All returns every live instance of the named type, including subtypes.
	All(typeName string) ([]Node, error)
	// Lookup resolves an instance by identifier.
	Lookup(id string) (Node, error)
}

// Func is a compiled expression. Range expressions return []Node; derived
// attributes return a scalar value (or nil).
type Func func(Context) (any, error)

// Nodes is a helper for range expressions returning a fixed node list.
func Nodes(ns ...Node) (any, error) { return ns, nil }

// AsNodes converts the result of a range expression to a node list. A nil
// result is empty and a single Node is a list of one.
func AsNodes(v any) ([]Node, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []Node:
		return v, nil
	case Node:
		return []Node{v}, nil
	default:
		return nil, fmt.Errorf("expr: got %T, want []expr.Node", v)
	}
}

// Filter returns a Func that keeps the nodes produced by src for which keep
// returns true. It fails if src does not produce nodes.
func Filter(src Func, keep func(Node) bool) Func {
	return func(c Context) (any, error) {
		v, err := src(c)
		if err != nil {
			return nil, err
		}
		ns, err := AsNodes(v)
		if err != nil {
			return nil, err
		}
		out := make([]Node, 0, len(ns))
		for _, n := range ns {
			if keep(n) {
				out = append(out, n)
			}
		}
		return out, nil
	}
}

// SelfRelated returns a Func navigating the named member of the owner.
func SelfRelated(member string) Func {
	return func(c Context) (any, error) {
		self := c.Self()
		if self == nil {
			return []Node(nil), nil
		}
		return self.Related(c, member)
	}
}

// AllOf returns a Func listing every instance of the named type.
func AllOf(typeName string) Func {
	return func(c Context) (any, error) {
		return c.All(typeName)
	}
}
