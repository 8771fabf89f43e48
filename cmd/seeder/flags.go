package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func envFileFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("env-file")
	return v
}

func addEnvFileFlag(flags *pflag.FlagSet) {
	flags.String("env-file", ".env", "dotenv file to load before reading the environment")
}

func logLevelFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("log-level")
	return v
}

func addLogLevelFlag(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level, overrides LOG_LEVEL")
}

func logFormatFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("log-format")
	return v
}

func addLogFormatFlag(flags *pflag.FlagSet) {
	flags.String("log-format", "text", "log format (text or json), overrides LOG_FORMAT")
}

func timeoutFlag(cmd *cobra.Command) time.Duration {
	v, _ := cmd.Flags().GetDuration("timeout")
	return v
}

func addTimeoutFlag(flags *pflag.FlagSet) {
	flags.Duration("timeout", 0, "abort the command after this long (0 disables)")
}

func sourceFlag(cmd *cobra.Command) []string {
	v, _ := cmd.Flags().GetStringSlice("source")
	return v
}

func addSourceFlag(flags *pflag.FlagSet, usage string) {
	flags.StringSliceP("source", "s", nil, usage)
}

func dryRunFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("dry-run")
	return v
}

func addDryRunFlag(flags *pflag.FlagSet, usage string) {
	flags.Bool("dry-run", false, usage)
}

func addressFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("address")
	return v
}

func addAddressFlag(flags *pflag.FlagSet) {
	flags.String("address", "", "address to bind to (host:port), overrides STATUS_LISTEN_ADDR")
}
