// Package entity defines instances, creation payloads and read records.
package entity

import (
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/syssam/relgraph/schema"
)

// NewID returns a new instance identifier.
func NewID() string { return uuid.NewString() }

// Instance is a persisted instance of a concrete entity type.
type Instance struct {
	ID    string
	Type  *schema.EntityType
	Attrs map[string]any
}

// New returns an instance of t with a fresh identifier.
func New(t *schema.EntityType, attrs map[string]any) *Instance {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Instance{ID: NewID(), Type: t, Attrs: attrs}
}

// Attr returns the value of the named stored attribute.
func (i *Instance) Attr(name string) (any, bool) {
	v, ok := i.Attrs[name]
	return v, ok
}

// Clone returns a copy of i with its own attribute map.
func (i *Instance) Clone() *Instance {
	return &Instance{ID: i.ID, Type: i.Type, Attrs: maps.Clone(i.Attrs)}
}

// String implements fmt.Stringer.
func (i *Instance) String() string {
	return fmt.Sprintf("%s(%s)", i.Type.Name, i.ID)
}

// IDs returns the identifiers of the given instances.
func IDs(is []*Instance) []string {
	ids := make([]string, len(is))
	for j, i := range is {
		ids[j] = i.ID
	}
	return ids
}

// Ref points a relation slot of a payload at an instance. Exactly one of ID
// (a persisted instance) and Key (a node of the same payload tree) is set.
type Ref struct {
	ID  string `json:"id,omitempty"`
	Key string `json:"key,omitempty"`
}

// RefID returns a reference to a persisted instance.
func RefID(id string) Ref { return Ref{ID: id} }

// RefKey returns a reference to the payload node with the given key.
func RefKey(key string) Ref { return Ref{Key: key} }

// String implements fmt.Stringer.
func (r Ref) String() string {
	if r.Key != "" {
		return "key:" + r.Key
	}
	return r.ID
}

// Payload is the transient tree of a create call. Children are created and
// contained by their parent; Refs link to existing instances or to other
// nodes of the same tree.
type Payload struct {
	Type     string                `json:"type"`
	Key      string                `json:"key,omitempty"`
	Attrs    map[string]any        `json:"attrs,omitempty"`
	Children map[string][]*Payload `json:"children,omitempty"`
	Refs     map[string][]Ref      `json:"refs,omitempty"`
}

// NewPayload returns an empty payload of the named type.
func NewPayload(typeName string) *Payload {
	return &Payload{Type: typeName}
}

// WithKey sets the local key other nodes may use to refer to p.
func (p *Payload) WithKey(key string) *Payload {
	p.Key = key
	return p
}

// Set sets an attribute value.
func (p *Payload) Set(name string, v any) *Payload {
	if p.Attrs == nil {
		p.Attrs = make(map[string]any)
	}
	p.Attrs[name] = v
	return p
}

// Child appends nested creates under the named member.
func (p *Payload) Child(member string, children ...*Payload) *Payload {
	if p.Children == nil {
		p.Children = make(map[string][]*Payload)
	}
	p.Children[member] = append(p.Children[member], children...)
	return p
}

// Ref appends references under the named member.
func (p *Payload) Ref(member string, refs ...Ref) *Payload {
	if p.Refs == nil {
		p.Refs = make(map[string][]Ref)
	}
	p.Refs[member] = append(p.Refs[member], refs...)
	return p
}

// Walk calls fn for p and every nested child in pre-order. The parent and
// member are empty for the root. Walk stops at the first error.
func (p *Payload) Walk(fn func(parent *Payload, member string, node *Payload) error) error {
	var walk func(parent *Payload, member string, node *Payload) error
	walk = func(parent *Payload, member string, node *Payload) error {
		if err := fn(parent, member, node); err != nil {
			return err
		}
		for _, name := range SortedKeys(node.Children) {
			for _, c := range node.Children[name] {
				if err := walk(node, name, c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(nil, "", p)
}

// Record is the read view of an instance: stored and derived attributes,
// embedded members nested inline and the identifiers of other targets.
type Record struct {
	*Instance
	Derived    map[string]any       `json:"derived,omitempty"`
	Embedded   map[string][]*Record `json:"embedded,omitempty"`
	References map[string][]string  `json:"references,omitempty"`
}
