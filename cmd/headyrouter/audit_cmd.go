package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/audit"
	"github.com/HeadyMe/heady-mcp-router/internal/store"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the newest audit events",
	RunE:  runAuditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain of the whole audit log",
	RunE:  runAuditVerify,
}

var auditLimit int

func init() {
	auditCmd.AddCommand(auditListCmd, auditVerifyCmd)
	auditCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the audit database (default HEADY_PATH_DB)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of events to show (0 for all)")
}

func openAuditStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Paths.DB
	if dbPath != "" {
		path = dbPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audit database %s: %w", path, err)
	}
	return store.New(path)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func runAuditList(cmd *cobra.Command, args []string) error {
	s, err := openAuditStore()
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.ListAuditEvents(context.Background(), auditLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tMETHOD\tPATH\tSERVICE\tTOOL\tOUTCOME\tHASH")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Method, ev.Path,
			orDash(ev.Service), orDash(ev.Tool), orDash(ev.Outcome), shortHash(ev.Hash))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	s, err := openAuditStore()
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.ListAuditEvents(context.Background(), 0)
	if err != nil {
		return err
	}
	if err := audit.VerifyFull(events); err != nil {
		var chainErr *audit.ChainError
		if errors.As(err, &chainErr) {
			fmt.Printf("%s %s\n", mark(false), chainErr.Error())
		}
		return err
	}

	fmt.Printf("%s %d events, chain intact\n", mark(true), len(events))
	return nil
}
