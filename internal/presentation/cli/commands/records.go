package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/consumers"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/inspection"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var (
		rec    inspection.Record
		result string
		date   string
		checks []string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Record an inspection",
		Long: `Record an inspection and update the inspected item's status.

The record is written to the remote backend when online and queued for
replay otherwise.`,
		Example: `  ppesync inspect --ppe ppe-1 --inspector u-1 --type pre-use --result pass \
    --check harness=pass --check lanyard=pass`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}

			rec.OverallResult = inspection.Result(result)
			if date != "" {
				t, err := time.Parse(time.RFC3339, date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				rec.Date = t
			}
			items, err := parseChecks(checks)
			if err != nil {
				return err
			}
			rec.Results = items

			out, err := c.Inspections().Submit(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return printOutcome(GetFormatter(), "Inspection recorded", out)
		},
	}

	cmd.Flags().StringVar(&rec.PPEID, "ppe", "", "inspected item ID (required)")
	cmd.Flags().StringVar(&rec.InspectorID, "inspector", "", "inspector user ID (required)")
	cmd.Flags().StringVar(&rec.Type, "type", "", "inspection type (required)")
	cmd.Flags().StringVar(&result, "result", "", "overall result: pass, fail (required)")
	cmd.Flags().StringVar(&rec.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&rec.SignatureURL, "signature-url", "", "signature image URL")
	cmd.Flags().StringVar(&date, "date", "", "inspection time, RFC 3339 (default: now)")
	cmd.Flags().StringArrayVar(&checks, "check", nil, "checkpoint result as id=pass|fail|na (repeatable)")

	return cmd
}

// parseChecks turns id=pass|fail|na pairs into checklist items.
func parseChecks(checks []string) ([]inspection.ChecklistItem, error) {
	items := make([]inspection.ChecklistItem, 0, len(checks))
	for _, c := range checks {
		id, verdict, ok := strings.Cut(c, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid --check %q: want id=pass|fail|na", c)
		}

		item := inspection.ChecklistItem{CheckpointID: strings.TrimSpace(id)}
		switch strings.ToLower(strings.TrimSpace(verdict)) {
		case "pass":
			v := true
			item.Passed = &v
		case "fail":
			v := false
			item.Passed = &v
		case "na", "":
		default:
			return nil, fmt.Errorf("invalid --check %q: want id=pass|fail|na", c)
		}
		items = append(items, item)
	}
	return items, nil
}

// NewPPECmd creates the ppe command.
func NewPPECmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ppe",
		Short: "Update equipment records",
	}

	var next string
	setStatus := &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Change an item's status",
		Long:  `Change an item's status: active, flagged, expired, maintenance, out_of_service.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}

			upd := inspection.PPEUpdate{ID: args[0], Status: inspection.PPEStatus(args[1])}
			if next != "" {
				t, err := time.Parse("2006-01-02", next)
				if err != nil {
					return fmt.Errorf("invalid --next-inspection: %w", err)
				}
				upd.NextInspection = &t
			}

			out, err := c.PPE().UpdateStatus(cmd.Context(), upd)
			if err != nil {
				return err
			}
			return printOutcome(GetFormatter(), "Status updated", out)
		},
	}
	setStatus.Flags().StringVar(&next, "next-inspection", "", "next inspection date, YYYY-MM-DD")

	cmd.AddCommand(setStatus)
	return cmd
}

// NewNotificationsCmd creates the notifications command.
func NewNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Manage user notifications",
	}

	var n inspection.Notification
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNotifications(cmd, "Notification added", func(s *consumers.NotificationService) (consumers.Outcome, error) {
				return s.Add(cmd.Context(), n)
			})
		},
	}
	add.Flags().StringVar(&n.UserID, "user", "", "recipient user ID (required)")
	add.Flags().StringVar(&n.Title, "title", "", "title")
	add.Flags().StringVar(&n.Message, "message", "", "body")
	add.Flags().StringVar(&n.Type, "type", "", "category")

	var unread bool
	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			isRead := !unread
			return withNotifications(cmd, "Notification updated", func(s *consumers.NotificationService) (consumers.Outcome, error) {
				return s.Update(cmd.Context(), inspection.NotificationPatch{ID: args[0], Read: &isRead})
			})
		},
	}
	read.Flags().BoolVar(&unread, "unread", false, "mark unread instead")

	readAll := &cobra.Command{
		Use:   "read-all <user-id>",
		Short: "Mark every notification of a user read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNotifications(cmd, "Notifications marked read", func(s *consumers.NotificationService) (consumers.Outcome, error) {
				return s.MarkAllRead(cmd.Context(), args[0])
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNotifications(cmd, "Notification deleted", func(s *consumers.NotificationService) (consumers.Outcome, error) {
				return s.Delete(cmd.Context(), args[0])
			})
		},
	}

	delAll := &cobra.Command{
		Use:   "delete-all <user-id>",
		Short: "Delete every notification of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNotifications(cmd, "Notifications deleted", func(s *consumers.NotificationService) (consumers.Outcome, error) {
				return s.DeleteAll(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(add, read, readAll, del, delAll)
	return cmd
}

func withNotifications(cmd *cobra.Command, done string, fn func(*consumers.NotificationService) (consumers.Outcome, error)) error {
	c, err := requireContainer()
	if err != nil {
		return err
	}
	out, err := fn(c.Notifications())
	if err != nil {
		return err
	}
	return printOutcome(GetFormatter(), done, out)
}

func printOutcome(f *output.Formatter, done string, out consumers.Outcome) error {
	if f.Format() == output.FormatJSON {
		return f.JSON(map[string]bool{"queued": out.Queued})
	}
	if out.Queued {
		return f.Warning("%s offline. It will sync when you reconnect.", done)
	}
	return f.Success("%s", done)
}
