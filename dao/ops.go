package dao

import (
	"context"

	"github.com/syssam/relgraph/cascade"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/order"
	"github.com/syssam/relgraph/ranges"
)

// The methods below run a single Tx operation in a transaction of its own.
// Reads are always rolled back.

// Create is like Tx.Create.
func (c *Client) Create(ctx context.Context, p *entity.Payload) (out *entity.Instance, err error) {
	err = c.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.Create(ctx, p)
		return err
	})
	return out, err
}

// Update is like Tx.Update.
func (c *Client) Update(ctx context.Context, id string, attrs map[string]any) (out *entity.Instance, err error) {
	err = c.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.Update(ctx, id, attrs)
		return err
	})
	return out, err
}

// Delete is like Tx.Delete.
func (c *Client) Delete(ctx context.Context, id string) (deleted []string, err error) {
	err = c.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		deleted, err = tx.Delete(ctx, id)
		return err
	})
	return deleted, err
}

// DeletePlan is like Tx.DeletePlan.
func (c *Client) DeletePlan(ctx context.Context, id string) (plan *cascade.Plan, err error) {
	err = c.read(ctx, func(ctx context.Context, tx *Tx) error {
		plan, err = tx.DeletePlan(ctx, id)
		return err
	})
	return plan, err
}

// AddReferences is like Tx.AddReferences.
func (c *Client) AddReferences(ctx context.Context, id, member string, targets ...string) error {
	return c.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.AddReferences(ctx, id, member, targets...)
	})
}

// RemoveReferences is like Tx.RemoveReferences.
func (c *Client) RemoveReferences(ctx context.Context, id, member string, targets ...string) error {
	return c.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.RemoveReferences(ctx, id, member, targets...)
	})
}

// SetReference is like Tx.SetReference.
func (c *Client) SetReference(ctx context.Context, id, member string, targets ...string) error {
	return c.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.SetReference(ctx, id, member, targets...)
	})
}

// UnsetReference is like Tx.UnsetReference.
func (c *Client) UnsetReference(ctx context.Context, id, member string) error {
	return c.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.UnsetReference(ctx, id, member)
	})
}

// Get is like Tx.Get.
func (c *Client) Get(ctx context.Context, id string) (out *entity.Instance, err error) {
	err = c.read(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.Get(ctx, id)
		return err
	})
	return out, err
}

// Read is like Tx.Read.
func (c *Client) Read(ctx context.Context, id string) (out *entity.Record, err error) {
	err = c.read(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.Read(ctx, id)
		return err
	})
	return out, err
}

// References is like Tx.References.
func (c *Client) References(ctx context.Context, id, member string) (out []*entity.Instance, err error) {
	err = c.read(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.References(ctx, id, member)
		return err
	})
	return out, err
}

// Graph is like Tx.Graph.
func (c *Client) Graph(ctx context.Context, rootType string, ids ...string) (out *graph.Graph, err error) {
	err = c.read(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.Graph(ctx, rootType, ids...)
		return err
	})
	return out, err
}

// RangeOf is like Tx.RangeOf.
func (c *Client) RangeOf(ctx context.Context, typ, member string, owner ranges.Owner) (out []*entity.Instance, err error) {
	err = c.read(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.RangeOf(ctx, typ, member, owner)
		return err
	})
	return out, err
}

// List is like Tx.List.
func (c *Client) List(ctx context.Context, typ string, spec order.Spec, after *order.Row, limit int, reverse bool) (out order.Page, err error) {
	err = c.read(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.List(ctx, typ, spec, after, limit, reverse)
		return err
	})
	return out, err
}
