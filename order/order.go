// Package order provides null-aware total ordering of rows and keyset
// (seek) pagination over ordered rows.
//
// A Spec lists the ordering keys. Rows are compared key by key; rows that
// compare equal on every key are ordered by identifier, so the resulting
// order is total and pages are deterministic:
//
//	c := order.New(order.Spec{order.Desc("built"), order.Asc("name")})
//	page := c.Seek(rows, &last, 20, false)
//
// Null (or missing) values sort after every non-null value in ascending
// order and before every non-null value in descending order.
package order

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Key is a single ordering key.
type Key struct {
	Name string
	Desc bool
}

// Asc returns an ascending key.
func Asc(name string) Key { return Key{Name: name} }

// Desc returns a descending key.
func Desc(name string) Key { return Key{Name: name, Desc: true} }

// String returns the key as written in a query, e.g. "name" or "-name".
func (k Key) String() string {
	if k.Desc {
		return "-" + k.Name
	}
	return k.Name
}

// ParseKey parses a key written as "name" or "-name".
func ParseKey(s string) (Key, error) {
	switch {
	case s == "" || s == "-":
		return Key{}, fmt.Errorf("order: empty key %q", s)
	case s[0] == '-':
		return Desc(s[1:]), nil
	case s[0] == '+':
		return Asc(s[1:]), nil
	default:
		return Asc(s), nil
	}
}

// Spec is an ordered list of keys.
type Spec []Key

// Row is a single ordered item: an identifier and the values of the
// ordering keys.
type Row struct {
	ID     string
	Values map[string]any
}

// Comparer compares rows under a Spec. It is safe for concurrent use.
type Comparer struct {
	spec Spec

	mu   sync.Mutex // Guards coll, which is not safe for concurrent use.
	coll *collate.Collator
}

// Option configures a Comparer.
type Option func(*Comparer)

// WithCollation compares strings with the collation rules of the given
// language instead of by byte value.
func WithCollation(tag language.Tag) Option {
	return func(c *Comparer) {
		c.coll = collate.New(tag)
	}
}

// New returns a Comparer for spec.
func New(spec Spec, opts ...Option) *Comparer {
	c := &Comparer{spec: spec}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Spec returns the keys of the comparer.
func (c *Comparer) Spec() Spec { return c.spec }

// Compare returns -1, 0 or 1 depending on whether a sorts before, equal to
// or after b. Only rows with the same identifier compare equal.
func (c *Comparer) Compare(a, b Row) int {
	if r := c.compareKeys(a, b); r != 0 {
		return r
	}
	return cmp.Compare(a.ID, b.ID)
}

// compareKeys compares the ordering keys only.
func (c *Comparer) compareKeys(a, b Row) int {
	for _, k := range c.spec {
		r := c.compareValues(a.Values[k.Name], b.Values[k.Name])
		if k.Desc {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	return 0
}

// Value ranks. Values of different kinds order by rank; null is greatest.
const (
	rankBool = iota
	rankNumber
	rankString
	rankTime
	rankOther
	rankNull
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return rankNumber
	case string:
		return rankString
	case time.Time:
		return rankTime
	default:
		return rankOther
	}
}

func (c *Comparer) compareValues(a, b any) int {
	a, b = deref(a), deref(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNull:
		return 0
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return c.compareStrings(a.(string), b.(string))
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func (c *Comparer) compareStrings(a, b string) int {
	if c.coll == nil {
		return cmp.Compare(a, b)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coll.CompareString(a, b)
}

// deref unwraps non-nil pointers; nil pointers are null.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func compareNumbers(a, b any) int {
	ia, aInt := asInt(a)
	ib, bInt := asInt(b)
	if aInt && bInt {
		return cmp.Compare(ia, ib)
	}
	return cmp.Compare(asFloat(a), asFloat(b))
}

func asInt(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= 1<<63-1 {
			return int64(u), true
		}
	}
	return 0, false
}

func asFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	default:
		return float64(rv.Int())
	}
}

// Sort sorts rows in place.
func (c *Comparer) Sort(rows []Row) {
	slices.SortFunc(rows, c.Compare)
}

// Compare compares a and b under spec. See Comparer.Compare.
func Compare(a, b Row, spec Spec) int {
	return New(spec).Compare(a, b)
}

// Sort sorts rows in place under spec.
func Sort(rows []Row, spec Spec, opts ...Option) {
	New(spec, opts...).Sort(rows)
}
