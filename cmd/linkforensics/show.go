package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/database"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/report"
	"github.com/spf13/cobra"
)

// ErrRecordNotFound is returned when no stored record has the access id.
var ErrRecordNotFound = errors.New("record not found")

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <access-id>",
		Short: "Show a stored forensic record",
		Long: `Show prints one stored forensic record with its findings.

Examples:
  # Human-readable report
  linkforensics show access-1714558500000-k3f9x2

  # JSON report including the summary
  linkforensics show access-1714558500000-k3f9x2 --json`,
		Args: cobra.ExactArgs(1),
		RunE: runShowCmd,
	}
	addReportFlags(cmd)
	return cmd
}

// runShowCmd executes the show command.
func runShowCmd(cmd *cobra.Command, args []string) error {
	cfg, store, err := openQueryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := getRecord(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}

	return outputReport(cmd, cfg, func(w report.Writer) (int, error) {
		return w.Write(rec)
	})
}

// openQueryStore builds the configuration of a read command and opens the
// store it reads from.
func openQueryStore(cmd *cobra.Command) (*config.Config, database.Store, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Lookup("json") != nil {
		if err := applyReportFlags(cmd, cfg); err != nil {
			return nil, nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := openStore(cmd.Context(), cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// getRecord loads one record and turns a missing record into an error.
func getRecord(ctx context.Context, store database.Store, accessID string) (*model.ForensicRecord, error) {
	if !model.IsAccessID(accessID) {
		return nil, fmt.Errorf("invalid access id: %s", accessID)
	}
	rec, err := store.Get(ctx, accessID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", accessID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, accessID)
	}
	return rec, nil
}
