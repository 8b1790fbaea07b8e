package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/hive/pkg/channel"
	"github.com/rhuss/hive/pkg/config"
	"github.com/rhuss/hive/pkg/mcptool"
	"github.com/rhuss/hive/pkg/observability"
)

// newHandler builds the worker HTTP surface. state reports the loop
// state for /healthz.
func newHandler(cfg *config.Config, state func() channel.State, runner mcptool.Runner) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		st := state()
		if st == channel.StateStopped {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, st.String())
	})
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}
	if cfg.Server.MCP {
		mux.Handle("/mcp", mcptool.Handler(mcptool.NewServer(runner, version)))
	}
	return observability.MetricsMiddleware(mux)
}

// serve runs srv until ctx is canceled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
