package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/hive/pkg/channel"
	"github.com/rhuss/hive/pkg/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve jobs from the coordinator until told to stop",
	Long: `Announces readiness to the coordinator and executes the jobs it hands
out, one at a time, reporting each result in the next request. Returns
when the coordinator sends a stop action or the process is signaled.

Orphaned sessions left by earlier workers are reaped on startup and then
periodically while the loop runs.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCoordinator(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	exec, err := newExecutor(cfg, store)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	loop := channel.NewLoop(client, exec)

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go sandbox.RunReaper(reaperCtx, cfg.Sandbox.SessionRoot, cfg.Sandbox.ReapAfter, cfg.Sandbox.ReapAfter)

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:    ":" + strconv.Itoa(cfg.Server.Port),
			Handler: newHandler(cfg, loop.State, exec),
		}
		go func() {
			if err := serve(reaperCtx, srv); err != nil {
				slog.Error("http server failed", "error", err)
			}
		}()
	}

	slog.Info("worker starting",
		"worker_id", cfg.Coordinator.WorkerID,
		"coordinator", cfg.Coordinator.Endpoint,
		"repo", cfg.Sandbox.RepoDir,
		"isolation", cfg.Sandbox.Isolation,
	)
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("job loop: %w", err)
	}
	slog.Info("worker stopped")
	return nil
}
