package main

import (
	"github.com/spf13/cobra"

	"github.com/rhuss/hive/pkg/debug"
	"github.com/rhuss/hive/pkg/overlay"
)

var (
	mirrorLinks []string
	mirrorSkip  []string
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror SRC DST",
	Short: "Reproduce a directory tree, linking entries that match --link",
	Long: `Recursively copies SRC to DST. Entries whose path relative to SRC
matches any --link regular expression, and symlinks found in SRC, become
symlinks to the source instead. VCS metadata and caches are skipped, as
are names given with --skip.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		debug.Init(debugCats, "")
		return overlay.Mirror(args[0], args[1], overlay.MirrorOptions{
			LinkPatterns: mirrorLinks,
			SkipNames:    mirrorSkip,
		})
	},
}

func init() {
	mirrorCmd.Flags().StringArrayVar(&mirrorLinks, "link", nil, "Regular expression of relative paths to symlink (repeatable)")
	mirrorCmd.Flags().StringSliceVar(&mirrorSkip, "skip", nil, "Additional base names to skip")
	rootCmd.AddCommand(mirrorCmd)
}
