// Package dao is the data-access façade of relgraph.
//
// A Client runs every operation inside a store transaction. Mutations are
// fully planned and validated (cardinality, ranges, containment, cascade
// conflicts, privacy) before the first write; any failure rolls the
// transaction back, so no partial state is ever committed.
//
//	c := dao.NewClient(s, memstore.New(), dao.WithLogger(logger))
//	err := c.WithTx(ctx, func(ctx context.Context, tx *dao.Tx) error {
//		car, err := tx.Create(ctx, entity.NewPayload("Car").Set("name", "beetle"))
//		if err != nil {
//			return err
//		}
//		return tx.AddReferences(ctx, car.ID, "driver", personID)
//	})
package dao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/cascade"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/order"
	"github.com/syssam/relgraph/privacy"
	"github.com/syssam/relgraph/ranges"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/store"
)

const tracerName = "github.com/syssam/relgraph/dao"

// Client is safe for concurrent use.
type Client struct {
	schema  *schema.Schema
	store   store.Store
	log     *slog.Logger
	reg     prometheus.Registerer
	tp      trace.TracerProvider
	tracer  trace.Tracer
	policy  privacy.Evaluator
	metrics *metrics

	collation []order.Option

	cascade *cascade.Resolver
	graph   *graph.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Operations are logged at debug level,
// cascade deletions at info level and rejected mutations at warn level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRegisterer registers the client metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) { c.reg = reg }
}

// WithTracerProvider sets the provider of the operation spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tp = tp }
}

// WithPolicy sets the privacy policy evaluated before reads and writes.
func WithPolicy(p privacy.Evaluator) Option {
	return func(c *Client) { c.policy = p }
}

// WithCollation orders string keys of List by the collation rules of the
// given language.
func WithCollation(tag language.Tag) Option {
	return func(c *Client) { c.collation = []order.Option{order.WithCollation(tag)} }
}

// NewClient returns a client for the instances of s kept in st.
func NewClient(s *schema.Schema, st store.Store, opts ...Option) *Client {
	c := &Client{
		schema:  s,
		store:   st,
		log:     slog.New(slog.DiscardHandler),
		tp:      otel.GetTracerProvider(),
		cascade: cascade.NewResolver(s),
		graph:   graph.NewCollector(s),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tracer = c.tp.Tracer(tracerName)
	c.metrics = newMetrics(c.reg)
	return c
}

// Schema returns the schema of the client.
func (c *Client) Schema() *schema.Schema { return c.schema }

// Close closes the underlying store.
func (c *Client) Close() error { return c.store.Close() }

type txKey struct{ c *Client }

// WithTx runs fn in a new transaction. The transaction is committed if fn
// returns nil and rolled back otherwise; a failed rollback is reported as a
// *relgraph.RollbackError. A failed mutation aborts the transaction: it is
// rolled back and the mutation error returned even if fn returns nil. A
// panic in fn rolls the transaction back and is re-raised.
//
// Calling a Client method from within fn with the context it received fails
// with relgraph.ErrTxStarted. Client mutations must not be called with any
// other context inside fn either: a store that serializes writers, such as
// memstore, blocks them until fn returns. Client reads run on a snapshot of
// the committed state and do not see the writes of fn.
func (c *Client) WithTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	return c.run(ctx, c.store.Begin, fn)
}

func (c *Client) run(ctx context.Context, begin func(context.Context) (store.Tx, error), fn func(context.Context, *Tx) error) (err error) {
	if ctx.Value(txKey{c}) != nil {
		return relgraph.ErrTxStarted
	}
	st, err := begin(ctx)
	if err != nil {
		return fmt.Errorf("dao: begin transaction: %w", err)
	}
	tx := &Tx{client: c, st: st, ranges: ranges.NewResolver(c.schema)}
	defer func() {
		if v := recover(); v != nil {
			_ = st.Rollback()
			panic(v)
		}
	}()
	err = fn(context.WithValue(ctx, txKey{c}, tx), tx)
	if err == nil {
		err = tx.err
	}
	if err != nil {
		if rerr := st.Rollback(); rerr != nil {
			return &relgraph.RollbackError{Err: errors.Join(err, rerr)}
		}
		return err
	}
	if err := st.Commit(); err != nil {
		return fmt.Errorf("dao: commit transaction: %w", err)
	}
	return nil
}

// read runs fn in a read-only transaction that is always rolled back. On
// stores implementing store.ReadBeginner it does not wait for running write
// transactions.
func (c *Client) read(ctx context.Context, fn func(context.Context, *Tx) error) error {
	errDone := errors.New("done")
	begin := func(ctx context.Context) (store.Tx, error) { return store.BeginRead(ctx, c.store) }
	err := c.run(ctx, begin, func(ctx context.Context, tx *Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errDone
	})
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

// Tx is a unit of work over one store transaction. It is not safe for
// concurrent use and is only valid inside the WithTx callback.
type Tx struct {
	client *Client
	st     store.Tx
	// ranges caches static ranges for the lifetime of the transaction and is
	// invalidated by every write.
	ranges *ranges.Resolver
	// err is the first failed mutation. Once set, every operation returns it.
	err error
}

// Err returns the error that aborted the transaction, or nil.
func (tx *Tx) Err() error { return tx.err }

// mutate runs fn as the write operation op on an instance of type *typ. The
// type may be filled in by fn once the instance is loaded. A failure is
// wrapped in a *relgraph.MutationError and aborts the transaction.
func (tx *Tx) mutate(ctx context.Context, op string, typ *string, fn func(context.Context) error, attrs ...slog.Attr) error {
	if tx.err != nil {
		return tx.err
	}
	if err := tx.client.observe(ctx, op, *typ, fn, attrs...); err != nil {
		tx.err = relgraph.NewMutationError(*typ, op, err)
		return tx.err
	}
	return nil
}

// query runs fn as the read operation op. Reads fail with the abort error
// of the transaction but do not abort it themselves.
func (tx *Tx) query(ctx context.Context, op, typ string, fn func(context.Context) error, attrs ...slog.Attr) error {
	if tx.err != nil {
		return tx.err
	}
	return tx.client.observe(ctx, op, typ, fn, attrs...)
}

// Reader returns the store view of the transaction.
func (tx *Tx) Reader() store.Reader { return tx.st }
