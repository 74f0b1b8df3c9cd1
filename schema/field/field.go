package field

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/syssam/relgraph/expr"
)

// Type is the scalar type of an attribute.
type Type uint8

// Attribute types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeString:  "string",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeTime:    "time",
}

// String returns the name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports if the type is a known attribute type.
func (t Type) Valid() bool { return t > TypeInvalid && t <= TypeTime }

// ParseType returns the type with the given name.
func ParseType(s string) (Type, error) {
	for i, n := range typeNames {
		if i > 0 && n == s {
			return Type(i), nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", s)
}

// Coerce converts v into the canonical Go representation of t.
// A nil value is returned unchanged.
func (t Type) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeString:
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case TypeInt:
		switch v := v.(type) {
		case int:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint8:
			return int64(v), nil
		case uint16:
			return int64(v), nil
		case uint32:
			return int64(v), nil
		case uint64:
			if v > math.MaxInt64 {
				return nil, fmt.Errorf("field: %d overflows int64", v)
			}
			return int64(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("field: %v is not an integer", v)
			}
			return int64(v), nil
		}
	case TypeFloat:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int8:
			return float64(v), nil
		case uint8:
			return float64(v), nil
		}
	case TypeBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		}
	case TypeTime:
		switch v := v.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("field: parse time: %w", err)
			}
			return ts.UTC(), nil
		}
	}
	return nil, fmt.Errorf("field: cannot use %T as %s", v, t)
}

// A Descriptor for attribute configuration.
type Descriptor struct {
	Name     string
	Type     Type
	Optional bool
	Derived  expr.Func
	Comment  string
	Err      error
}

// Builder for attributes.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Type: t}}
	if name == "" {
		b.desc.Err = fmt.Errorf("field: missing name for %s attribute", t)
	}
	return b
}

// String returns a new string attribute.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Int returns a new integer attribute.
func Int(name string) *Builder { return newBuilder(name, TypeInt) }

// Float returns a new floating point attribute.
func Float(name string) *Builder { return newBuilder(name, TypeFloat) }

// Bool returns a new boolean attribute.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Time returns a new timestamp attribute.
func Time(name string) *Builder { return newBuilder(name, TypeTime) }

// New returns a new attribute of the given type.
func New(name string, t Type) *Builder {
	b := newBuilder(name, t)
	if !t.Valid() && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field: invalid type for attribute %q", name)
	}
	return b
}

// Derived returns a read-only attribute computed by fn.
// Derived attributes are always optional: fn may return nil.
func Derived(name string, t Type, fn expr.Func) *Builder {
	b := New(name, t)
	b.desc.Derived = fn
	b.desc.Optional = true
	if fn == nil && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field: derived attribute %q has no expression", name)
	}
	return b
}

// Optional indicates that this attribute may be omitted on create.
func (b *Builder) Optional() *Builder {
	b.desc.Optional = true
	return b
}

// Comment sets the comment of the attribute.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the schema.Field interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
