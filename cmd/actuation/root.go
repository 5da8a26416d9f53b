package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

const (
	envLogLevel    = "ACTUATION_LOG_LEVEL"
	envFreq        = "ACTUATION_FREQ"
	envMonitorPort = "ACTUATION_MONITOR_PORT"
	envRecord      = "ACTUATION_RECORD"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var (
		envFiles []string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "actuation",
		Short: "Actuation runs the fixed-rate vehicle actuation loop.",
		Long: `Actuation runs the fixed-rate vehicle actuation loop against ` +
			`built-in or recorded scenarios, records its telemetry and ` +
			`serves a monitor while it runs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(envFiles); err != nil {
				return fmt.Errorf("loading env: %w", err)
			}

			if logLevel == "" {
				logLevel = getEnv(envLogLevel, "info")
			}

			level, err := parseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("bad log level %q: %w", logLevel, err)
			}

			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
				&slog.HandlerOptions{Level: level})))

			return nil
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil,
		".env files to load before running (default ./.env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn or error (env "+envLogLevel+")")

	rootCmd.AddCommand(
		newSimulateCmd(),
		newFamiliesCmd(),
		newInspectCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "actuation %s\n", version)
		},
	}
}
