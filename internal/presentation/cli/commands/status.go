package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/remote"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

// SyncStatus is the status command's report.
type SyncStatus struct {
	Version       string     `json:"version"`
	Backend       string     `json:"backend"`
	Online        bool       `json:"online"`
	Checked       bool       `json:"checked"`
	Pending       int        `json:"pending"`
	Failed        int        `json:"failed"`
	Completed     int        `json:"completed"`
	Outstanding   int        `json:"outstanding"`
	IsSyncing     bool       `json:"is_syncing"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	LastSyncError string     `json:"last_sync_error,omitempty"`
	StorePath     string     `json:"store_path"`
	SchemaVersion int        `json:"schema_version"`
	StoreBytes    int64      `json:"store_bytes"`
	StoreError    string     `json:"store_error,omitempty"`

	Backends []remote.ProbeResult `json:"backends,omitempty"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue status",
		Long: `Show the action queue counts and connectivity.

Use --check to probe the remote backend instead of reporting the assumed state.`,
		Example: `  ppesync status
  ppesync status --check -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}
			status, err := collectStatus(cmd.Context(), c, check)
			if err != nil {
				return err
			}
			return printStatus(GetFormatter(), status)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "probe the remote backend")

	return cmd
}

func collectStatus(ctx context.Context, c *application.Container, check bool) (SyncStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	status := SyncStatus{
		Version:   Version,
		Backend:   c.Remote().Name(),
		Checked:   check,
		StorePath: c.Config().Store.Path,
	}

	if check {
		status.Online = c.Monitor().Check(ctx)
		status.Backends = c.RemoteRegistry().Probe(ctx)
	} else {
		status.Online = c.Monitor().Online()
	}

	counts, err := c.Store().Counts(ctx)
	if err != nil {
		status.StoreError = err.Error()
	} else {
		status.Pending = counts.Pending
		status.Failed = counts.Failed
		status.Completed = counts.Completed
		status.Outstanding = counts.Outstanding()

		info, err := c.StoreInfo(ctx)
		if err != nil {
			return status, fmt.Errorf("failed to inspect action store: %w", err)
		}
		status.StorePath = info.Path
		status.SchemaVersion = info.SchemaVersion
		status.StoreBytes = info.SizeBytes
	}

	state := c.Engine().State()
	status.IsSyncing = state.IsSyncing
	status.LastSyncError = state.LastSyncError
	if !state.LastSyncedAt.IsZero() {
		t := state.LastSyncedAt
		status.LastSyncedAt = &t
	}
	return status, nil
}

func printStatus(f *output.Formatter, s SyncStatus) error {
	if f.Format() == output.FormatJSON {
		return f.JSON(s)
	}

	f.Header("Sync Status")

	conn := f.Bold("online")
	if !s.Online {
		conn = f.Bold("offline")
	}
	if !s.Checked {
		conn += f.Dim(" (assumed)")
	}
	f.Item("Connectivity", conn)
	f.Item("Backend", s.Backend)
	f.Item("Pending", strconv.Itoa(s.Pending))
	f.Item("Failed", strconv.Itoa(s.Failed))
	f.Item("Completed", strconv.Itoa(s.Completed))

	var last time.Time
	if s.LastSyncedAt != nil {
		last = *s.LastSyncedAt
	}
	f.Item("Last synced", output.Ago(last, time.Now()))
	if s.LastSyncError != "" {
		f.Item("Last error", s.LastSyncError)
	}
	if s.StoreError != "" {
		f.Item("Store", s.StorePath+" (unavailable)")
	} else {
		f.Item("Store", fmt.Sprintf("%s (schema v%d, %s)", s.StorePath, s.SchemaVersion, output.Bytes(s.StoreBytes)))
	}

	for _, b := range s.Backends {
		state := "reachable in " + b.Latency.Round(time.Millisecond).String()
		if !b.Online {
			state = "unreachable: " + b.Error
		}
		f.Item("  "+b.Name, state)
	}

	if s.StoreError != "" {
		f.Println("")
		f.Warning("Action store unavailable, changes cannot be queued: %s", s.StoreError)
	}
	if s.Failed > 0 {
		f.Println("")
		f.Warning("%d action(s) failed permanently. Run 'ppesync retry' to try again.", s.Failed)
	}
	return nil
}
