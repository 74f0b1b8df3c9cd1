package sqlstore

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/schema"
)

// encode returns the msgpack encoding of attrs, or nil for no attributes.
func encode(attrs map[string]any) ([]byte, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(attrs); err != nil {
		return nil, fmt.Errorf("sqlstore: encode attributes: %w", err)
	}
	return buf.Bytes(), nil
}

// decode builds an instance of t from a stored row. Values are coerced to
// the attribute types of t; attributes t no longer declares are dropped.
func decode(t *schema.EntityType, r attrsRow) (*entity.Instance, error) {
	i := &entity.Instance{ID: r.ID, Type: t, Attrs: make(map[string]any)}
	if len(r.Attrs) == 0 {
		return i, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(r.Attrs))
	dec.UseLooseInterfaceDecoding(true)
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("sqlstore: decode attributes of %s: %w", i, err)
	}
	for name, v := range raw {
		a, ok := t.Attribute(name)
		if !ok || a.IsDerived() {
			continue
		}
		cv, err := a.Type.Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: attribute %s of %s: %w", name, i, err)
		}
		i.Attrs[name] = cv
	}
	return i, nil
}
