package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/syncengine"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

// DrainReport is the JSON rendering of a drain.
type DrainReport struct {
	Online    bool   `json:"online"`
	Reset     int    `json:"reset,omitempty"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Remaining int    `json:"remaining"`
	Skipped   string `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay pending actions now",
		Long: `Probe connectivity and replay every pending action in creation order.

Actions that fail are retried on later passes until their retry budget is
spent, after which they are marked failed. Use 'ppesync retry' to reset them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}
			return printDrain(GetFormatter(), drainNow(cmd.Context(), c, 0))
		},
	}
}

// NewRetryCmd creates the retry command.
func NewRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset failed actions and replay them",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}
			n, err := c.Engine().RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			return printDrain(GetFormatter(), drainNow(cmd.Context(), c, n))
		},
	}
}

func drainNow(ctx context.Context, c *application.Container, reset int) DrainReport {
	if ctx == nil {
		ctx = context.Background()
	}
	online := c.Monitor().Check(ctx)
	res := c.Engine().SyncWithTrigger(ctx, true, syncengine.TriggerManual)

	report := DrainReport{
		Online:    online,
		Reset:     reset,
		Attempted: res.Attempted,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Remaining: res.Remaining,
		Skipped:   string(res.Skipped),
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	return report
}

func printDrain(f *output.Formatter, r DrainReport) error {
	if f.Format() == output.FormatJSON {
		if err := f.JSON(r); err != nil {
			return err
		}
	} else {
		if r.Reset > 0 {
			f.Info("Reset %d failed action(s)", r.Reset)
		}
		switch {
		case r.Skipped == string(syncengine.SkipOffline):
			f.Warning("Offline. Pending actions will sync when you reconnect.")
		case r.Skipped == string(syncengine.SkipBusy):
			f.Info("A sync is already in progress.")
		case r.Skipped != "":
			f.Warning("Sync skipped: %s", r.Skipped)
		case r.Attempted == 0 && r.Error == "":
			f.Info("Nothing to sync.")
		}
	}

	if r.Error != "" {
		return fmt.Errorf("sync aborted: %s", r.Error)
	}
	return nil
}
