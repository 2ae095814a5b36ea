package main

import (
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/report"
	"github.com/spf13/cobra"
)

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <access-id> <access-id>",
		Short: "Compare two stored records",
		Long: `Compare tells whether two accesses came from the same device or network.

Two records are attributed to the same device when their canvas hashes or
fingerprint digests match. The comparison also reports whether the public
IP and the ISP match, the distance between the two best locations and the
time between the accesses.

Examples:
  linkforensics compare access-1714558500000-k3f9x2 access-1714644900000-p7q2m0
  linkforensics compare access-1714558500000-k3f9x2 access-1714644900000-p7q2m0 --json`,
		Args: cobra.ExactArgs(2),
		RunE: runCompareCmd,
	}
	addReportFlags(cmd)
	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	cfg, store, err := openQueryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := getRecord(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}
	b, err := getRecord(cmd.Context(), store, args[1])
	if err != nil {
		return err
	}

	cmp := model.Compare(a, b)
	return outputReport(cmd, cfg, func(w report.Writer) (int, error) {
		return w.WriteComparison(cmp)
	})
}
