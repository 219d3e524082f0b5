package cmd

import (
	"log/slog"

	"github.com/solatis/labelkeeper/internal/core/config"
	"github.com/solatis/labelkeeper/internal/core/logging"
	"github.com/spf13/cobra"
)

// Version is the LabelKeeper release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:     "labelkeeper",
	Short:   "LabelKeeper JSON payload labelling service",
	Long:    `LabelKeeper classifies JSON payloads against per-user rules and keeps label statistics.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(logging.New(logLevel, logFormat))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", config.Default().Database.URL, "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration with the command's flags as overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.LoadConfig(configFile, cmd.Flags())
}
