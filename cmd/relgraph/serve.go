package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/dao"
	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/schema/load"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve instances and metrics over HTTP",
		Long: `Serve exposes read access to the store:

  GET /entities/{id}           the record of an instance
  GET /graph/{type}/{id}       the instance graph of a root
  GET /metrics                 Prometheus metrics
  GET /healthz                 liveness

With schema.watch set, edits to the schema file are picked up without
a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// server routes requests to the current client. The client is replaced
// when the schema is reloaded; the driver is shared by every client.
type server struct {
	client atomic.Pointer[dao.Client]
}

func (a *app) serve(ctx context.Context) error {
	s, err := a.loadSchema()
	if err != nil {
		return err
	}
	drv, err := a.openDriver()
	if err != nil {
		return err
	}
	defer drv.Close()
	c, err := a.newClient(drv, s)
	if err != nil {
		return err
	}
	srv := &server{}
	srv.client.Store(c)

	hs := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.routes(a),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", "addr", hs.Addr)
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return hs.Shutdown(shutdown)
	})
	if a.cfg.Schema.Watch {
		w, err := load.NewWatcher(a.cfg.Schema.Path, load.NewRegistry(s),
			load.WithLogger(a.log),
			load.WithLoadOptions(load.WithResolver(load.Paths)),
			load.OnReload(func(s *schema.Schema) {
				next, err := a.newClient(drv, s)
				if err != nil {
					a.log.Error("schema reload: open client", "error", err)
					return
				}
				srv.client.Store(next)
			}),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}

func (srv *server) routes(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, err := srv.client.Load().Read(r.Context(), r.PathValue("id"))
		srv.reply(w, a, rec, err)
	})
	mux.HandleFunc("GET /graph/{type}/{id}", func(w http.ResponseWriter, r *http.Request) {
		g, err := srv.client.Load().Graph(r.Context(), r.PathValue("type"), r.PathValue("id"))
		if err != nil {
			srv.reply(w, a, nil, err)
			return
		}
		srv.reply(w, a, viewGraph(g), nil)
	})
	return mux
}

func (srv *server) reply(w http.ResponseWriter, a *app, v any, err error) {
	if err != nil {
		code := statusOf(err)
		if code == http.StatusInternalServerError {
			a.log.Error("request failed", "error", err)
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := printJSON(w, v); err != nil {
		a.log.Warn("write response", "error", err)
	}
}

func statusOf(err error) int {
	switch {
	case relgraph.IsNotFound(err):
		return http.StatusNotFound
	case relgraph.IsPrivacyError(err):
		return http.StatusForbidden
	case relgraph.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
