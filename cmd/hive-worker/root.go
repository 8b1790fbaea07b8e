package main

import (
	"github.com/spf13/cobra"

	"github.com/rhuss/hive/pkg/config"
	"github.com/rhuss/hive/pkg/debug"
)

var (
	configPath string
	debugCats  string
)

var rootCmd = &cobra.Command{
	Use:   "hive-worker",
	Short: "Sandboxed job worker",
	Long: `hive-worker executes coordinator jobs inside disposable session
directories layered over a read-only repository.

Each job gets its own session that links the repository and writes only
the files the job overrides. Sessions are removed when the job ends.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML config file")
	rootCmd.PersistentFlags().StringVar(&debugCats, "debug", "", "Comma-separated debug categories (overrides logging.debug)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the layered configuration and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cats := cfg.Logging.Debug
	if debugCats != "" {
		cats = debugCats
	}
	debug.Init(cats, cfg.Logging.Level)
	return cfg, nil
}
