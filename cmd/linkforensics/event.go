package main

import (
	"fmt"
	"time"

	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/session"
	"github.com/spf13/cobra"
)

// Event kinds accepted by the event command besides the visibility states.
const (
	eventFocus    = "focus"
	eventBlur     = "blur"
	eventDownload = "download"
)

// NewEventCmd creates the event command.
func NewEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event <access-id> <focus|blur|download|visible|hidden|prerender>",
		Short: "Record a session event for a stored access",
		Long: `Event appends a session event to a stored record.

focus and blur append a focus event, at --at when given and now otherwise.
download marks the resource downloaded. visible, hidden and prerender
record a page visibility change; hidden also counts as a blur and visible
as a focus.

Examples:
  linkforensics event access-1714558500000-k3f9x2 focus
  linkforensics event access-1714558500000-k3f9x2 blur --at 2024-05-01T10:15:00Z
  linkforensics event access-1714558500000-k3f9x2 download`,
		Args: cobra.ExactArgs(2),
		RunE: runEventCmd,
	}
	cmd.Flags().String("at", "", "Event time in RFC 3339 format (focus and blur only)")
	return cmd
}

// runEventCmd executes the event command.
func runEventCmd(cmd *cobra.Command, args []string) error {
	accessID, kind := args[0], args[1]
	if !model.IsAccessID(accessID) {
		return fmt.Errorf("invalid access id: %s", accessID)
	}

	atFlag, err := cmd.Flags().GetString("at")
	if err != nil {
		return err
	}
	var at time.Time
	if atFlag != "" {
		if kind != eventFocus && kind != eventBlur {
			return fmt.Errorf("--at applies to focus and blur events only, not %s", kind)
		}
		at, err = time.Parse(time.RFC3339, atFlag)
		if err != nil {
			return fmt.Errorf("invalid --at time %q: %w", atFlag, err)
		}
	}

	cfg, store, err := openQueryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := setupLogger(cmd.ErrOrStderr(), cfg)
	tracker := session.NewTracker(accessID, store, session.WithLogger(logger))
	ctx := cmd.Context()

	switch kind {
	case eventFocus, eventBlur:
		if at.IsZero() {
			at = time.Now()
		}
		tracker.Observe(model.FocusKind(kind), at)
		err = tracker.Flush(ctx)
	case eventDownload:
		err = tracker.RecordDownload(ctx)
	default:
		if verr := tracker.VisibilityChange(kind); verr != nil {
			return fmt.Errorf("unknown event %q: must be focus, blur, download, visible, hidden or prerender", kind)
		}
		err = tracker.Flush(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s event for %s\n", kind, accessID)
	return nil
}
