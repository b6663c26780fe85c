// Package cmd holds the civic-service command line: the HTTP server (default)
// and maintenance subcommands.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/civic-report-service/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X .../cmd.version=...".
var version string

var rootCmd = &cobra.Command{
	Use:           "civic-service",
	Short:         "Civic issue reporting API: submit, confirm, comment, triage",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadDotEnv reads .env files when present; real environment wins.
func loadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
}

func buildVersion() string {
	return sysutil.FirstNonEmpty(version, "dev")
}
