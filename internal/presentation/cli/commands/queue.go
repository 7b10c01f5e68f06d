package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

// ActionView is the CLI rendering of a queued action.
type ActionView struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
	Data       json.RawMessage `json:"data"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func newActionView(a *action.QueuedAction) ActionView {
	return ActionView{
		ID:         a.ID,
		Type:       string(a.Type),
		Status:     string(a.Status),
		RetryCount: a.RetryCount,
		LastError:  a.LastError,
		Data:       a.Data,
		Metadata:   a.Metadata,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// NewQueueCmd creates the queue command.
func NewQueueCmd() *cobra.Command {
	var metadata string

	cmd := &cobra.Command{
		Use:   "queue <type> [data-json]",
		Short: "Queue a mutation for replay",
		Long: `Persist a mutation in the durable action queue.

Known types: create_inspection, update_ppe, add_notification,
update_notification, mark_all_read, delete_notification,
delete_all_notifications. Other types are replayed as remote procedure calls.`,
		Example: `  ppesync queue update_ppe '{"id":"ppe-1","status":"maintenance"}'
  ppesync queue mark_all_read '{"user_id":"u-1"}' --metadata '{"source":"cli"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}

			var data, meta any
			if len(args) == 2 {
				data = json.RawMessage(args[1])
			}
			if metadata != "" {
				meta = json.RawMessage(metadata)
			}

			queued, ok := c.Queue().Enqueue(cmd.Context(), action.Type(args[0]), data, meta)
			if !ok {
				return fmt.Errorf("action was not queued; check the type and that data is valid JSON")
			}

			f := GetFormatter()
			if f.Format() == output.FormatJSON {
				return f.JSON(newActionView(queued))
			}
			return f.Success("Queued %s as %s", queued.Type, queued.ID)
		},
	}

	cmd.Flags().StringVar(&metadata, "metadata", "", "auxiliary JSON stored with the action")

	return cmd
}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued actions",
		Example: `  ppesync list
  ppesync list --status failed -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var actions []*action.QueuedAction
			switch status {
			case "outstanding", "":
				actions, err = c.Store().ListPending(ctx)
			default:
				s := action.Status(status)
				if !s.Valid() {
					return fmt.Errorf("invalid status %q: must be one of outstanding, pending, failed, completed", status)
				}
				actions, err = c.Store().ListByStatus(ctx, s)
			}
			if err != nil {
				return err
			}

			views := make([]ActionView, 0, len(actions))
			for _, a := range actions {
				views = append(views, newActionView(a))
			}
			return printActions(GetFormatter(), views)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "outstanding", "filter: outstanding, pending, failed, completed")

	return cmd
}

func printActions(f *output.Formatter, views []ActionView) error {
	if f.Format() == output.FormatJSON {
		return f.JSON(views)
	}
	if len(views) == 0 {
		return f.Info("No queued actions.")
	}

	now := time.Now()
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID,
			v.Type,
			f.ActionStatus(v.Status),
			strconv.Itoa(v.RetryCount),
			output.Ago(v.CreatedAt, now),
			truncate(v.LastError, 48),
		})
	}
	return f.Table([]string{"ID", "TYPE", "STATUS", "RETRIES", "CREATED", "LAST ERROR"}, rows)
}

// NewClearCmd creates the clear command.
func NewClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete completed actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}
			n, err := c.Store().ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}

			f := GetFormatter()
			if f.Format() == output.FormatJSON {
				return f.JSON(map[string]int{"cleared": n})
			}
			return f.Success("Cleared %d completed action(s)", n)
		},
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
