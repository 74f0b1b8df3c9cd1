package dao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/order"
	"github.com/syssam/relgraph/ranges"
	"github.com/syssam/relgraph/schema"
)

// Get returns the instance with the given id.
func (tx *Tx) Get(ctx context.Context, id string) (*entity.Instance, error) {
	var out *entity.Instance
	err := tx.query(ctx, "get", "", func(ctx context.Context) error {
		i, err := tx.st.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.allowQuery(ctx, i.Type.Name); err != nil {
			return err
		}
		out = i
		return nil
	}, idAttr(id))
	return out, err
}

// Read returns the record of id: stored and derived attributes, the targets
// of embedded members nested inline and the target identifiers of every
// other member.
func (tx *Tx) Read(ctx context.Context, id string) (*entity.Record, error) {
	var out *entity.Record
	err := tx.query(ctx, "read", "", func(ctx context.Context) error {
		i, err := tx.st.Get(ctx, id)
		if err != nil {
			return err
		}
		out, err = tx.record(ctx, i, map[string]bool{})
		return err
	}, idAttr(id))
	return out, err
}

// record builds the record of i. Instances already on the embedding path
// are listed as references instead of being nested again.
func (tx *Tx) record(ctx context.Context, i *entity.Instance, path map[string]bool) (*entity.Record, error) {
	if err := tx.allowQuery(ctx, i.Type.Name); err != nil {
		return nil, err
	}
	derived, err := tx.ranges.Derived(ctx, tx.st, i)
	if err != nil {
		return nil, err
	}
	rec := &entity.Record{Instance: i, Derived: derived}
	path[i.ID] = true
	defer delete(path, i.ID)
	for _, m := range i.Type.AllMembers() {
		ids, err := tx.st.Targets(ctx, i.ID, m)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}
		if !m.Embedded {
			if rec.References == nil {
				rec.References = make(map[string][]string)
			}
			rec.References[m.Name] = ids
			continue
		}
		targets, err := tx.st.GetMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if path[t.ID] {
				if rec.References == nil {
					rec.References = make(map[string][]string)
				}
				rec.References[m.Name] = append(rec.References[m.Name], t.ID)
				continue
			}
			nested, err := tx.record(ctx, t, path)
			if err != nil {
				return nil, err
			}
			if rec.Embedded == nil {
				rec.Embedded = make(map[string][]*entity.Record)
			}
			rec.Embedded[m.Name] = append(rec.Embedded[m.Name], nested)
		}
	}
	return rec, nil
}

// References returns the targets of the named member of id.
func (tx *Tx) References(ctx context.Context, id, member string) ([]*entity.Instance, error) {
	var out []*entity.Instance
	err := tx.query(ctx, "references", "", func(ctx context.Context) error {
		owner, m, err := tx.slot(ctx, id, member)
		if err != nil {
			return err
		}
		if err := tx.allowQuery(ctx, owner.Type.Name); err != nil {
			return err
		}
		ids, err := tx.st.Targets(ctx, id, m)
		if err != nil {
			return err
		}
		out, err = tx.st.GetMany(ctx, ids)
		return err
	}, idAttr(id), slog.String("member", member))
	return out, err
}

func (tx *Tx) entityType(name string) (*schema.EntityType, error) {
	t, ok := tx.client.schema.Type(name)
	if !ok {
		return nil, relgraph.NewValidationError(name, errors.New("unknown entity type"))
	}
	return t, nil
}

// Graph collects the instance graph around the given roots, which must be
// instances of rootType.
func (tx *Tx) Graph(ctx context.Context, rootType string, ids ...string) (*graph.Graph, error) {
	var out *graph.Graph
	err := tx.query(ctx, "graph", rootType, func(ctx context.Context) error {
		t, err := tx.entityType(rootType)
		if err != nil {
			return err
		}
		if err := tx.allowQuery(ctx, t.Name); err != nil {
			return err
		}
		out, err = tx.client.graph.Collect(ctx, tx.st, t, ids...)
		return err
	}, slog.Int("roots", len(ids)))
	return out, err
}

// RangeOf returns the legal targets of the named member of typ for owner.
// Owner may be nil, a ranges.Persisted instance or a ranges.Transient node
// of a payload that has not been created.
func (tx *Tx) RangeOf(ctx context.Context, typ, member string, owner ranges.Owner) ([]*entity.Instance, error) {
	var out []*entity.Instance
	err := tx.query(ctx, "range", typ, func(ctx context.Context) error {
		t, err := tx.entityType(typ)
		if err != nil {
			return err
		}
		m, ok := t.Member(member)
		if !ok {
			return relgraph.NewValidationError(typ+"."+member, errors.New("unknown relation member"))
		}
		if err := tx.allowQuery(ctx, m.Target.Name); err != nil {
			return err
		}
		out, err = tx.ranges.RangeOf(ctx, tx.st, m, owner)
		return err
	}, slog.String("member", member))
	return out, err
}

// List returns a page of the instances of typ and its subtypes in the
// order of spec. Keys may name stored or derived attributes. Pages resume
// strictly after the after row; see order.Comparer.Seek.
func (tx *Tx) List(ctx context.Context, typ string, spec order.Spec, after *order.Row, limit int, reverse bool) (order.Page, error) {
	var out order.Page
	err := tx.query(ctx, "list", typ, func(ctx context.Context) error {
		t, err := tx.entityType(typ)
		if err != nil {
			return err
		}
		for _, k := range spec {
			if _, ok := t.Attribute(k.Name); !ok {
				return relgraph.NewValidationError(fmt.Sprintf("%s.%s", typ, k.Name), errors.New("unknown ordering key"))
			}
		}
		if err := tx.allowQuery(ctx, t.Name); err != nil {
			return err
		}
		is, err := tx.st.Instances(ctx, t)
		if err != nil {
			return err
		}
		rows := make([]order.Row, 0, len(is))
		for _, i := range is {
			values := make(map[string]any, len(spec))
			for _, k := range spec {
				if v, ok := i.Attrs[k.Name]; ok {
					values[k.Name] = v
				}
			}
			if derivedKeys(i.Type, spec) {
				d, err := tx.ranges.Derived(ctx, tx.st, i)
				if err != nil {
					return err
				}
				for _, k := range spec {
					if v, ok := d[k.Name]; ok {
						values[k.Name] = v
					}
				}
			}
			rows = append(rows, order.Row{ID: i.ID, Values: values})
		}
		out = order.New(spec, tx.client.collation...).Seek(rows, after, limit, reverse)
		return nil
	}, slog.Int("limit", limit), slog.Bool("reverse", reverse))
	return out, err
}

func derivedKeys(t *schema.EntityType, spec order.Spec) bool {
	for _, k := range spec {
		if a, ok := t.Attribute(k.Name); ok && a.IsDerived() {
			return true
		}
	}
	return false
}
