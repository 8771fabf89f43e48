package main

import (
	"fmt"

	"refdata-seeder/internal/seeding/domain/model"

	"github.com/spf13/cobra"
)

// NewBackupCommand snapshots one collection and optionally prunes older backups
func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup <collection> [name]",
		Short: "Snapshot a collection into a backup collection",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			ctx, cancel := commandContext(cmd)
			defer cancel()

			var name string
			if len(args) == 2 {
				name = args[1]
			}
			snapshot, err := container.Backups.Backup(ctx, args[0], name)
			if err != nil {
				return err
			}
			if keep, _ := cmd.Flags().GetInt("keep"); keep > 0 {
				pruned, err := container.Backups.PruneBackups(ctx, args[0], keep)
				if err != nil {
					return err
				}
				container.Logger.Infof("Pruned %d old backups of %s", len(pruned), args[0])
			}
			return printJSON(cmd, snapshot)
		},
	}
	cmd.Flags().Int("keep", 0, "prune older timestamped backups, keeping this many (0 keeps all)")
	return cmd
}

// NewRestoreCommand replaces a collection with a backup's contents
func NewRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <backup> [target]",
		Short: "Replace a collection with the contents of a backup",
		Long: `Replace the target collection with the contents of a backup collection.
The target defaults to the collection the backup was taken from, which is
derived from a timestamped backup name.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			ctx, cancel := commandContext(cmd)
			defer cancel()

			var target string
			if len(args) == 2 {
				target = args[1]
			}
			restored, err := container.Backups.Restore(ctx, args[0], target)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %d documents from %s\n", restored, args[0])
			return err
		},
	}
	return cmd
}

// NewListBackupsCommand prints the timestamped backups of a collection
func NewListBackupsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-backups <collection>",
		Short: "List the timestamped backups of a collection, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			ctx, cancel := commandContext(cmd)
			defer cancel()

			backups, err := container.Backups.ListBackups(ctx, args[0])
			if err != nil {
				return err
			}
			if verify, _ := cmd.Flags().GetBool("verify"); verify {
				for _, b := range backups {
					if err := container.Backups.VerifyBackup(ctx, b); err != nil {
						return err
					}
				}
			}
			if backups == nil {
				backups = []model.BackupSnapshot{}
			}
			return printJSON(cmd, backups)
		},
	}
	cmd.Flags().Bool("verify", false, "check every backup still holds its recorded document count")
	return cmd
}
