package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/hive/pkg/channel"
)

var execJobFile string

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run a single job locally and print its result payload",
	Long: `Reads a job in the coordinator's run message format from --job
("-" for stdin), executes it against the configured repository and
prints the result payload to stdout. Job failures are part of the payload
and do not change the exit status.`,
	Args: cobra.NoArgs,
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execJobFile, "job", "", "Job file in run message format, - for stdin")
	_ = execCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var body []byte
	if execJobFile == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(execJobFile)
	}
	if err != nil {
		return fmt.Errorf("reading job: %w", err)
	}

	action, err := channel.ParseAction(body)
	if err != nil {
		return err
	}
	run, ok := action.(channel.RunAction)
	if !ok {
		return fmt.Errorf("job file must hold a run action")
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

	res, err := exec.Run(ctx, run.Job)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(res.Payload()))
	return err
}
