// Command auditd serves the audit trail over HTTP and gRPC and manages its
// database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Keksclan/goRawrAudit/config"
	"github.com/Keksclan/goRawrAudit/logging"
	"github.com/Keksclan/goRawrAudit/store"
)

const version = "0.1.0"

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:           "auditd",
		Short:         "Audit trail service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Setup(logging.Config{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Traces: cfg.OtelEnabled,
			})
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "auditd:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "auditd version %s\n", version)
		},
	}
}

// openStore opens the configured database.
func openStore() (*store.DB, error) {
	return store.Open(cfg.DBDriver, cfg.DBDSN, store.Options{Tracing: cfg.OtelEnabled})
}
