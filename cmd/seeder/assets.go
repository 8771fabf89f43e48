package main

import (
	"refdata-seeder/internal/seeding/domain/model"

	"github.com/spf13/cobra"
)

// NewReconcileAssetsCommand removes stored logo variants whose record is gone
func NewReconcileAssetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile-assets",
		Short: "Delete stored logo variants whose record no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			sources, err := selectSources(container.Config.Sources, sourceFlag(cmd))
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			live, err := container.Orchestrator.LiveKeys(ctx, sources)
			if err != nil {
				return err
			}
			report, err := container.Orphans.Reconcile(ctx, live, dryRunFlag(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	addSourceFlag(cmd.Flags(), "only collect live keys from these sources (repeatable)")
	addDryRunFlag(cmd.Flags(), "report orphans without deleting them")
	return cmd
}

// NewStorageStatsCommand reports object counts and sizes per storage folder
func NewStorageStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage-stats",
		Short: "Print object counts and sizes per top-level storage folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			ctx, cancel := commandContext(cmd)
			defer cancel()

			if ensure, _ := cmd.Flags().GetBool("ensure-folders"); ensure {
				if err := container.Assets.EnsureFolders(ctx, model.Categories()); err != nil {
					return err
				}
			}
			stats, err := container.Assets.StorageStats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
	cmd.Flags().Bool("ensure-folders", false, "create the category folder placeholders first")
	return cmd
}
