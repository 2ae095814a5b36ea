package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/capture"
	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/database"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/report"
	"github.com/nao1215/linkforensics/internal/session"
	"github.com/nao1215/linkforensics/internal/snapshot"
	"github.com/spf13/cobra"
)

// visibilityStates are the accepted values of --visibility.
var visibilityStates = []string{session.VisibilityVisible, session.VisibilityHidden, session.VisibilityPrerender}

// captureOptions holds the per-capture flags.
type captureOptions struct {
	linkID       string
	auditID      string
	snapshotPath string
	clientIP     string
	forwardedFor []string
	referrer     string
	userAgent    string
	accessID     string
	visibility   string
}

// NewCaptureCmd creates the capture command.
func NewCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a forensic record for one access to a link",
		Long: `Capture assembles a forensic record for one access to a tracked link.

Without --snapshot the record describes the machine running the command:
its interface addresses, operating system and rendering fingerprint.
With --snapshot the record is built from a capability snapshot collected
by the link's landing page (use - to read it from stdin).

The three branches (network identity, device fingerprint, location) run
concurrently and each is bounded by --branch-timeout. The record is
stored unless --no-store or --db-driver none is given.

Examples:
  # Capture the local machine
  linkforensics capture --link invoice-42 --audit case-7

  # Capture from a snapshot posted by a browser
  linkforensics capture --link invoice-42 --audit case-7 \
    --snapshot access.json --client-ip 203.0.113.7

  # Markdown report to a file
  linkforensics capture -l invoice-42 -a case-7 -s access.json -m -o report.md`,
		RunE: runCaptureCmd,
	}

	cmd.Flags().StringP("link", "l", "", "Identifier of the tracked link (required)")
	cmd.Flags().StringP("audit", "a", "", "Identifier of the audited resource (required)")
	cmd.Flags().StringP("snapshot", "s", "", "Capability snapshot file (- for stdin)")
	cmd.Flags().String("client-ip", "", "Address the server observed for the access")
	cmd.Flags().StringSlice("forwarded-for", nil, "Forwarding chain reported by proxies")
	cmd.Flags().String("referrer", "", "Referrer of the access (overrides the snapshot)")
	cmd.Flags().String("user-agent", "", "User agent when the snapshot carries none")
	cmd.Flags().String("access-id", "", "Reuse an access id so the capture updates that record")
	cmd.Flags().String("visibility", "", "Page visibility at capture time: visible, hidden or prerender")
	cmd.Flags().Bool("no-store", false, "Do not store the record (same as --db-driver none)")
	addReportFlags(cmd)
	addTimeoutFlags(cmd)

	_ = cmd.MarkFlagRequired("link")  //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("audit") //nolint:errcheck // flag is defined above

	return cmd
}

// runCaptureCmd executes the capture command.
func runCaptureCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyReportFlags(cmd, cfg); err != nil {
		return err
	}
	if err := applyTimeoutFlags(cmd, cfg); err != nil {
		return err
	}
	noStore, err := cmd.Flags().GetBool("no-store")
	if err != nil {
		return err
	}
	if noStore {
		cfg.DBDriver = config.DBDriverNone
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, err := readCaptureOptions(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := runCapture(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}

	return outputReport(cmd, cfg, func(w report.Writer) (int, error) {
		return w.Write(rec)
	})
}

// readCaptureOptions reads and checks the per-capture flags.
func readCaptureOptions(cmd *cobra.Command) (captureOptions, error) {
	var (
		o   captureOptions
		err error
	)

	if o.linkID, err = cmd.Flags().GetString("link"); err != nil {
		return o, err
	}
	if o.auditID, err = cmd.Flags().GetString("audit"); err != nil {
		return o, err
	}
	if o.snapshotPath, err = cmd.Flags().GetString("snapshot"); err != nil {
		return o, err
	}
	if o.clientIP, err = cmd.Flags().GetString("client-ip"); err != nil {
		return o, err
	}
	if o.forwardedFor, err = cmd.Flags().GetStringSlice("forwarded-for"); err != nil {
		return o, err
	}
	if o.referrer, err = cmd.Flags().GetString("referrer"); err != nil {
		return o, err
	}
	if o.userAgent, err = cmd.Flags().GetString("user-agent"); err != nil {
		return o, err
	}
	if o.accessID, err = cmd.Flags().GetString("access-id"); err != nil {
		return o, err
	}
	if o.visibility, err = cmd.Flags().GetString("visibility"); err != nil {
		return o, err
	}

	if o.linkID == "" || o.auditID == "" {
		return o, errors.New("both --link and --audit are required")
	}
	if o.accessID != "" && !model.IsAccessID(o.accessID) {
		return o, fmt.Errorf("invalid access id: %s", o.accessID)
	}
	if o.visibility != "" && !slices.Contains(visibilityStates, o.visibility) {
		return o, fmt.Errorf("invalid visibility %q: must be visible, hidden or prerender", o.visibility)
	}
	return o, nil
}

// runCapture builds the pipeline, captures one record and waits until it
// reached the store.
func runCapture(ctx context.Context, cfg *config.Config, o captureOptions, logger *slog.Logger) (*model.ForensicRecord, error) {
	caps := capability.Local()
	referrer := o.referrer
	if o.snapshotPath != "" {
		snap, err := snapshot.Load(o.snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		caps = snap.Capabilities()
		if referrer == "" && snap.Environment != nil {
			referrer = snap.Environment.Referrer
		}
	}

	var store database.Store
	if cfg.DBDriver != config.DBDriverNone {
		s, err := openCaptureStore(ctx, cfg, nil, logger)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		}()
		store = s
	}

	eng, err := newEngine(ctx, cfg, store, nil, logger)
	if err != nil {
		return nil, err
	}
	// Close waits for the store hand-off, so it must run before the store closes.
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close lookup cache", "error", err)
		}
	}()

	rec := eng.assembler.Capture(ctx, o.linkID, o.auditID,
		capture.WithCapabilities(caps),
		capture.WithClientIP(o.clientIP),
		capture.WithForwardedFor(o.forwardedFor),
		capture.WithReferrer(referrer),
		capture.WithUserAgent(o.userAgent),
		capture.WithAccessID(o.accessID),
		capture.WithPageVisibility(o.visibility),
	)

	logger.Debug("capture complete",
		"access_id", rec.AccessID,
		"link", o.linkID,
		"trust_score", rec.TrustScore)

	return rec, nil
}
