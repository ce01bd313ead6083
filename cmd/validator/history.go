package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"swevalidator/internal/store"
)

// historyCmd lists recorded validation runs
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded validation runs, or the outcomes of one run",
	Long: `Shows the validation history database.

Without arguments the most recent runs are listed. With a run id, the per data
point outcomes of that run are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("no history database configured")
	}

	history, err := store.OpenHistory(cfg.History.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	ctx := context.Background()
	out := newConsole(stdout)

	if len(args) == 1 {
		outcomes, err := history.RunOutcomes(ctx, args[0])
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return fmt.Errorf("no outcomes recorded for run %s", args[0])
		}
		out.outcomes(args[0], outcomes)
		return nil
	}

	runs, err := history.RecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	out.runs(runs)
	return nil
}
