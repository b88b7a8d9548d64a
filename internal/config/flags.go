package config

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rampline",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Path to the run configuration file (YAML)")
	flags.StringP("requests", "r", "", "Path to the shared request table file (YAML)")
	flags.String("run-name", "", "Override the run name from the configuration file")
	flags.String("stats-dir", "", "Override the stats log directory")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("trace-endpoint", "", "OTLP endpoint for trace export (overrides config)")
	flags.BoolP("help", "h", false, "Show help")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	cmd.SetOut(out)
	_, _ = out.Write([]byte("rampline - phased ramp-up load generation engine\n\nFlags:\n"))
	_, _ = out.Write([]byte(cmd.Flags().FlagUsages()))
}
