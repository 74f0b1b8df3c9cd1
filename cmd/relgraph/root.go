package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/syssam/relgraph/dao"
	"github.com/syssam/relgraph/dialect"
	"github.com/syssam/relgraph/dialect/sql"
	"github.com/syssam/relgraph/internal/config"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/load"
	"github.com/syssam/relgraph/store/sqlstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app is the state shared by the commands.
type app struct {
	cfgPath string
	dsn     string
	schema  string

	cfg *config.Config
	log *slog.Logger
	reg *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "relgraph",
		Short:         "Inspect and maintain a relgraph store",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "TOML configuration file")
	cmd.PersistentFlags().StringVar(&a.dsn, "dsn", "", "database DSN (overrides database.dsn)")
	cmd.PersistentFlags().StringVar(&a.schema, "schema", "", "YAML schema file (overrides schema.path)")
	cmd.AddCommand(
		a.migrateCmd(),
		a.typesCmd(),
		a.createCmd(),
		a.updateCmd(),
		a.getCmd(),
		a.graphCmd(),
		a.deleteCmd(),
		a.rangeCmd(),
		a.listCmd(),
		a.serveCmd(),
	)
	return cmd
}

func (a *app) init(stderr io.Writer) error {
	var err error
	if a.cfgPath != "" {
		a.cfg, err = config.Load(a.cfgPath)
	} else {
		a.cfg = config.Default()
	}
	if err != nil {
		return err
	}
	if a.dsn != "" {
		a.cfg.Database.DSN = a.dsn
	}
	if a.schema != "" {
		a.cfg.Schema.Path = a.schema
	}
	level, err := a.cfg.LogLevel()
	if err != nil {
		return err
	}
	a.log = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	a.reg = prometheus.NewRegistry()
	return nil
}

func (a *app) loadSchema() (*schema.Schema, error) {
	return load.File(a.cfg.Schema.Path, load.WithResolver(load.Paths))
}

// openDriver opens the configured database.
func (a *app) openDriver() (*sql.Driver, error) {
	drv, err := sql.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db := drv.DB()
	if drv.Dialect() == dialect.SQLite {
		// SQLite serializes writers; a second connection only waits on the lock.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
	}
	return drv, nil
}

// newClient returns a client for s over drv with query statistics and
// slow query logging.
func (a *app) newClient(drv *sql.Driver, s *schema.Schema) (*dao.Client, error) {
	stats := sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(a.cfg.Database.SlowThreshold),
		sql.WithSlowQueryLog(a.log),
	)
	st, err := sqlstore.New(stats, s)
	if err != nil {
		return nil, err
	}
	return dao.NewClient(s, st, dao.WithLogger(a.log), dao.WithRegisterer(a.reg)), nil
}

// client opens the store and returns a client and a function releasing it.
func (a *app) client() (*dao.Client, func(), error) {
	s, err := a.loadSchema()
	if err != nil {
		return nil, nil, err
	}
	drv, err := a.openDriver()
	if err != nil {
		return nil, nil, err
	}
	c, err := a.newClient(drv, s)
	if err != nil {
		drv.Close()
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}

// run opens a client and calls fn with it.
func (a *app) run(ctx context.Context, fn func(context.Context, *dao.Client) error) error {
	c, done, err := a.client()
	if err != nil {
		return err
	}
	defer done()
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
