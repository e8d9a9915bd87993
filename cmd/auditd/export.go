package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Keksclan/goRawrAudit/admin"
	"github.com/Keksclan/goRawrAudit/audit"
)

func exportCmd() *cobra.Command {
	var (
		out     string
		since   string
		until   string
		maxRows int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit trail as CSV",
	}
	cmd.PersistentFlags().StringVar(&out, "out", "", "Output file (default stdout)")
	cmd.PersistentFlags().StringVar(&since, "since", "", "Only rows at or after this time (RFC 3339 or YYYY-MM-DD)")
	cmd.PersistentFlags().StringVar(&until, "until", "", "Only rows before this time (RFC 3339 or YYYY-MM-DD)")
	cmd.PersistentFlags().IntVar(&maxRows, "max-rows", 0, "Stop after this many rows (0 = unlimited)")

	var entries audit.LogEntryFilter
	var action string
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "Export change log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if entries.Since, entries.Until, err = parseRange(since, until); err != nil {
				return err
			}
			if action != "" {
				if entries.Action, err = audit.ParseAction(action); err != nil {
					return err
				}
			}
			return runExport(cmd, out, func(w io.Writer, s audit.Store) (int, error) {
				return admin.WriteEntries(cmd.Context(), w, s, entries, maxRows)
			})
		},
	}
	entriesCmd.Flags().StringVar(&action, "action", "", "Filter by action (create, update, delete, access)")
	entriesCmd.Flags().StringVar(&entries.ResourceType, "resource-type", "", "Filter by resource type")
	entriesCmd.Flags().StringVar(&entries.ActorID, "actor", "", "Filter by actor ID")
	entriesCmd.Flags().StringVar(&entries.Search, "q", "", "Search object, changes and actor name")

	var requests audit.RequestLogFilter
	requestsCmd := &cobra.Command{
		Use:   "requests",
		Short: "Export user request logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if requests.Since, requests.Until, err = parseRange(since, until); err != nil {
				return err
			}
			return runExport(cmd, out, func(w io.Writer, s audit.Store) (int, error) {
				return admin.WriteRequests(cmd.Context(), w, s, requests, maxRows)
			})
		},
	}
	requestsCmd.Flags().StringVar(&requests.UserID, "user", "", "Filter by user ID")
	requestsCmd.Flags().StringVar(&requests.IPAddress, "ip", "", "Filter by client IP address")

	cmd.AddCommand(entriesCmd, requestsCmd)
	return cmd
}

func runExport(cmd *cobra.Command, out string, write func(io.Writer, audit.Store) (int, error)) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	w := cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	n, err := write(w, db)
	if errors.Is(err, admin.ErrRowLimit) {
		slog.Warn("export truncated", "rows", n)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("export completed", "rows", n, "out", out)
	return nil
}

func parseRange(since, until string) (time.Time, time.Time, error) {
	s, err := parseTime(since)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--since: %w", err)
	}
	u, err := parseTime(until)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--until: %w", err)
	}
	return s, u, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
