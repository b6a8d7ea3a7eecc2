package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "headyrouter",
	Short: "Heady MCP router - capability-based routing for MCP backends",
	Long: `headyrouter selects MCP services for a task, keeps connections to the
configured backends, and forwards tool calls through a governance gate
that records every decision in a hash-chained audit log.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("headyrouter %s\n", version)
	},
}

var (
	apiAddr  string
	apiKey   string
	logLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", envOr("HEADY_API", "http://127.0.0.1:3300"), "Daemon API address")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("HEADY_API_KEY"), "API key sent to the daemon")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
