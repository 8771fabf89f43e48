package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"refdata-seeder/internal/seeding/domain/model"
	apperrors "refdata-seeder/internal/shared/errors"

	"github.com/spf13/cobra"
)

// NewRunCommand seeds the configured sources and prints the run summary
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed every configured source in priority order",
		Long: `Seed every enabled source in priority order, uploading logo variants,
enforcing natural-key uniqueness and reconciling orphaned assets afterwards.
The run summary is printed as JSON. The exit status is non-zero only when the
run ends in a fatal failure.`,
		Args: cobra.NoArgs,
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
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := container.Orchestrator.Run(ctx, sources)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, summary); err != nil {
				return err
			}
			if summary.Outcome == model.OutcomeFatalFailure {
				return apperrors.NewFatalFailureError(fmt.Sprintf("run %s failed: %s", summary.RunID, summary.AbortReason))
			}
			return nil
		},
	}

	addSourceFlag(cmd.Flags(), "restrict the run to these sources (repeatable)")
	return cmd
}

// selectSources keeps the configured sources named in names, in configuration order.
// An empty names list selects everything.
func selectSources(all []model.DataSource, names []string) ([]model.DataSource, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]model.DataSource, len(all))
	for _, src := range all {
		byName[src.Name] = src
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("unknown source %q", n))
		}
		wanted[n] = true
	}
	out := make([]model.DataSource, 0, len(wanted))
	for _, src := range all {
		if wanted[src.Name] {
			out = append(out, src)
		}
	}
	return out, nil
}
