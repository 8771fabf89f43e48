package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"refdata-seeder/internal/di"
	"refdata-seeder/internal/seeding/config"
	"refdata-seeder/internal/shared/logger"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewRootCommand represents the base command when called without any subcommands
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "seeder",
		Short:         "Seeds reference data collections and reconciles their logo assets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFileFlag(cmd)); err != nil && cmd.Flags().Changed("env-file") {
				fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envFileFlag(cmd), err)
			}
		},
	}

	flags := cmd.PersistentFlags()
	addEnvFileFlag(flags)
	addLogLevelFlag(flags)
	addLogFormatFlag(flags)
	addTimeoutFlag(flags)

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewBackupCommand())
	cmd.AddCommand(NewRestoreCommand())
	cmd.AddCommand(NewListBackupsCommand())
	cmd.AddCommand(NewReconcileAssetsCommand())
	cmd.AddCommand(NewStorageStatsCommand())
	cmd.AddCommand(NewHealthCommand())
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and builds the container.
// Callers own the returned container and must close it.
func setup(cmd *cobra.Command) (*di.Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevelFlag(cmd)
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = logFormatFlag(cmd)
	}

	log := logger.New(cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	container, err := di.NewContainer(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build container: %w", err)
	}
	return container, nil
}

func closeContainer(c *di.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		c.Logger.Errorf("Failed to close container: %v", err)
	}
}

// commandContext bounds a one-shot command by the --timeout flag. Zero means no limit.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if d := timeoutFlag(cmd); d > 0 {
		return context.WithTimeout(cmd.Context(), d)
	}
	return context.WithCancel(cmd.Context())
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
