package main

import (
	"errors"
	"fmt"

	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the recorded accesses to a resource or a link",
		Long: `History lists stored records newest first.

With --audit the accesses to one audited resource are listed together with
their statistics: total accesses, distinct public IPs, downloads and the
time of the last access. With --link the accesses through one link are
listed.

Examples:
  # All accesses to a resource
  linkforensics history --audit case-7

  # All accesses through one link, as Markdown
  linkforensics history --link invoice-42 --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("audit", "a", "", "Identifier of the audited resource")
	cmd.Flags().StringP("link", "l", "", "Identifier of the tracked link")
	cmd.MarkFlagsMutuallyExclusive("audit", "link")
	cmd.MarkFlagsOneRequired("audit", "link")
	addReportFlags(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	auditID, err := cmd.Flags().GetString("audit")
	if err != nil {
		return err
	}
	linkID, err := cmd.Flags().GetString("link")
	if err != nil {
		return err
	}
	if (auditID == "") == (linkID == "") {
		return errors.New("exactly one of --audit or --link is required")
	}

	cfg, store, err := openQueryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	history := &model.History{Scope: model.ScopeAudit, ID: auditID}
	if linkID != "" {
		history = &model.History{Scope: model.ScopeLink, ID: linkID}
		history.Records, err = store.ListByLink(ctx, linkID)
	} else {
		history.Records, err = store.ListByAudit(ctx, auditID)
		if err == nil {
			history.Stats, err = store.Stats(ctx, auditID)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to load history of %s %s: %w", history.Scope, history.ID, err)
	}
	if history.Records == nil {
		history.Records = []*model.ForensicRecord{}
	}

	return outputReport(cmd, cfg, func(w report.Writer) (int, error) {
		return w.WriteHistory(history)
	})
}
