package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/hive/pkg/sandbox"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Remove orphaned session directories",
	Long: `Removes session directories under sandbox.session_root whose owning
worker has exited, or that are older than sandbox.reap_after.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		n, err := sandbox.Reap(cfg.Sandbox.SessionRoot, cfg.Sandbox.ReapAfter)
		fmt.Fprintf(cmd.OutOrStdout(), "reaped %d session(s)\n", n)
		return err
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
}
