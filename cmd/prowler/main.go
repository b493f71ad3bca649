package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "prowler",
	Short: "Look up UK postcodes and their district boundaries",
	Long: `prowler looks up UK postcodes, enriches results with the
administrative district boundary and remembers recent lookups.

Examples:
  prowler lookup "SW1A 1AA"
  prowler history list
  prowler serve`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(themeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging installs the process-wide structured logger.
func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
