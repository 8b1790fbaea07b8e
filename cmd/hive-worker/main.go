// Command hive-worker runs sandboxed jobs handed out by a coordinator.
//
// Configuration is read from a YAML or TOML file (--config, HIVE_CONFIG,
// ./hive.yaml or /etc/hive/hive.yaml) and HIVE_* environment overrides.
//
//	hive-worker run                        # conversation loop with the coordinator
//	hive-worker exec --job job.json        # run one job locally, print its payload
//	hive-worker mirror SRC DST --link RE   # reproduce a tree, linking matches
//	hive-worker reap                       # remove orphaned session directories
package main

import (
	"log/slog"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("hive-worker failed", "error", err)
		os.Exit(1)
	}
}
