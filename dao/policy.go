package dao

import (
	"context"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/privacy"
	"github.com/syssam/relgraph/schema"
)

// mutation describes a planned write to the privacy policy.
type mutation struct {
	op     privacy.Op
	typ    string
	id     string
	member string
	attrs  map[string]any
}

func (m *mutation) Op() privacy.Op   { return m.op }
func (m *mutation) Type() string     { return m.typ }
func (m *mutation) ID() string       { return m.id }
func (m *mutation) Member() string   { return m.member }
func (m *mutation) Fields() []string { return entity.SortedKeys(m.attrs) }

func (m *mutation) Field(name string) (any, bool) {
	v, ok := m.attrs[name]
	return v, ok
}

type query struct{ typ string }

func (q query) Type() string { return q.typ }

var opNames = map[privacy.Op]string{
	privacy.OpCreate: "create",
	privacy.OpUpdate: "update",
	privacy.OpDelete: "delete",
	privacy.OpLink:   "link",
	privacy.OpUnlink: "unlink",
}

// allowMutation evaluates the client policy for m.
func (tx *Tx) allowMutation(ctx context.Context, m *mutation) error {
	if tx.client.policy == nil {
		return nil
	}
	if d := tx.client.policy.EvalMutation(ctx, m); privacy.Denied(d) {
		return relgraph.NewPrivacyError(m.typ, opNames[m.op], d.Error())
	}
	return nil
}

// allowQuery evaluates the client policy for a read of the named type.
func (tx *Tx) allowQuery(ctx context.Context, typ string) error {
	if tx.client.policy == nil {
		return nil
	}
	if d := tx.client.policy.EvalQuery(ctx, query{typ: typ}); privacy.Denied(d) {
		return relgraph.NewPrivacyError(typ, "query", d.Error())
	}
	return nil
}

// allowLink evaluates op (OpLink or OpUnlink) for the owner end of m and,
// for two-way relations, for the partner end of every target.
func (tx *Tx) allowLink(ctx context.Context, op privacy.Op, owner *entity.Instance, m *schema.RelationMember, targets []string) error {
	if tx.client.policy == nil {
		return nil
	}
	if err := tx.allowMutation(ctx, &mutation{op: op, typ: owner.Type.Name, id: owner.ID, member: m.Name}); err != nil {
		return err
	}
	p := m.Partner()
	if p == nil || len(targets) == 0 {
		return nil
	}
	insts, err := tx.st.GetMany(ctx, targets)
	if err != nil {
		return err
	}
	for _, i := range insts {
		if err := tx.allowMutation(ctx, &mutation{op: op, typ: i.Type.Name, id: i.ID, member: p.Name}); err != nil {
			return err
		}
	}
	return nil
}
