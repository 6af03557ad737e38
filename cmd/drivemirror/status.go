package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/engine"
	"github.com/tonimelisma/drivemirror/internal/metastore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show MetaStore statistics and the most recent sync run",
		Long:  "Display the pull-style status surface (§6.3): item counts, pending/failed counts, and the last completed sync time.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	cc := cliContextFrom(ctx)
	cfg, logger := cc.Cfg, cc.Logger

	if cfg.BaseDirectory == "" {
		return fmt.Errorf("config: base_directory is required")
	}

	store, err := metastore.Open(statePath(cfg.BaseDirectory), logger)
	if err != nil {
		return fmt.Errorf("opening metastore: %w", err)
	}
	defer store.Close()

	controller := engine.NewController(store, nil, nil, logger)

	status, err := controller.GetSyncStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading sync status: %w", err)
	}

	printStatusText(status)

	if status.FailedCount > 0 {
		failed, err := controller.GetFailedFiles(ctx)
		if err != nil {
			return fmt.Errorf("reading failed files: %w", err)
		}

		for _, item := range failed {
			fmt.Printf("  FAILED  %-40s %s\n", item.Name, item.ErrorMessage)
		}
	}

	return nil
}

func printStatusText(status *engine.Status) {
	fmt.Printf("Items:   %d (%s)\n", status.TotalItems, formatBytes(status.TotalSize))
	fmt.Printf("Pending: %d\n", status.PendingCount)
	fmt.Printf("Failed:  %d\n", status.FailedCount)

	if status.LastSyncTime != nil {
		fmt.Printf("Last sync: %s\n", status.LastSyncTime.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Last sync: never")
	}
}
