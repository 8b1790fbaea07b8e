package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/hive/pkg/channel"
	"github.com/rhuss/hive/pkg/config"
	"github.com/rhuss/hive/pkg/journal"
	"github.com/rhuss/hive/pkg/journal/memory"
	"github.com/rhuss/hive/pkg/journal/postgres"
	"github.com/rhuss/hive/pkg/overlay"
	"github.com/rhuss/hive/pkg/sandbox"
)

// openJournal creates the configured journal. It returns a nil store
// when journaling is disabled.
func openJournal(ctx context.Context, cfg *config.Config) (journal.Store, error) {
	switch cfg.Journal.Type {
	case "memory":
		slog.Info("journal enabled", "type", "memory", "max_size", cfg.Journal.MaxSize)
		return memory.New(cfg.Journal.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Journal.Postgres.DSN,
			MaxConns:       cfg.Journal.Postgres.MaxConns,
			MigrateOnStart: cfg.Journal.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres journal: %w", err)
		}
		slog.Info("journal enabled", "type", "postgres")
		return store, nil
	}
	slog.Info("journal disabled")
	return nil, nil
}

func newExecutor(cfg *config.Config, store journal.Store) (*sandbox.Executor, error) {
	return sandbox.New(store, executorConfig(cfg))
}

func executorConfig(cfg *config.Config) sandbox.Config {
	return sandbox.Config{
		RepoDir:        cfg.Sandbox.RepoDir,
		SessionRoot:    cfg.Sandbox.SessionRoot,
		Interpreter:    cfg.Sandbox.Interpreter,
		EntryPoint:     cfg.Sandbox.EntryPoint,
		CheckpointFile: cfg.Sandbox.CheckpointFile,
		Isolation:      sandbox.Isolation(cfg.Sandbox.Isolation),
		Mirror: overlay.MirrorOptions{
			LinkPatterns: cfg.Sandbox.LinkPatterns,
			SkipNames:    cfg.Sandbox.SkipNames,
		},
		WorkerID: cfg.Coordinator.WorkerID,
	}
}

func newClient(cfg *config.Config) (*channel.Client, error) {
	cc := channel.ClientConfig{
		Endpoint:       cfg.Coordinator.Endpoint,
		InitialDelay:   cfg.Coordinator.InitialDelay,
		Multiplier:     cfg.Coordinator.DelayMultiplier,
		MaxDelay:       cfg.Coordinator.MaxDelay,
		RequestTimeout: cfg.Coordinator.RequestTimeout,
	}
	if cfg.Auth.Type == "jwt" {
		cc.Signer = channel.NewTokenSigner(
			cfg.Auth.Secret,
			cfg.Auth.Issuer,
			cfg.Auth.Audience,
			cfg.Coordinator.WorkerID,
			cfg.Auth.TTL,
		)
	}
	return channel.NewClient(cc)
}
