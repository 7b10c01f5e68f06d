package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

var consoleCommands = []string{
	"status", "list", "failed", "queue", "sync", "retry", "clear",
	"online", "offline", "help", "exit",
}

// NewConsoleCmd creates the console command.
func NewConsoleCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive sync console",
		Long: `Start an interactive console over the action queue.

By default connectivity is simulated: use 'offline' and 'online' to flip it
and watch queued actions replay on reconnect. With --live the console polls
the remote backend and runs the background services instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}
			return runConsole(cmd.Context(), c, live)
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "poll real connectivity and run background services")

	return cmd
}

func runConsole(ctx context.Context, c *application.Container, live bool) error {
	f := GetFormatter()

	if live {
		if err := c.StartBackground(ctx); err != nil {
			return err
		}
		defer c.StopBackground()
	} else {
		c.Engine().Attach()
	}

	items := make([]readline.PrefixCompleterInterface, 0, len(consoleCommands))
	for _, name := range consoleCommands {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "ppesync> ",
		AutoComplete: readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	f.Info("Type 'help' for commands, 'exit' to quit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		exit, err := handleConsoleLine(ctx, c, f, line)
		if err != nil {
			f.Error("%s", err.Error())
			continue
		}
		if exit {
			break
		}
	}

	return nil
}

// handleConsoleLine runs one console command. It reports whether the console
// should exit.
func handleConsoleLine(ctx context.Context, c *application.Container, f *output.Formatter, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	switch name {
	case "exit", "quit":
		return true, nil

	case "help":
		f.Header("Commands")
		f.Item("status", "queue counts and connectivity")
		f.Item("list", "outstanding actions")
		f.Item("failed", "actions that exhausted their retries")
		f.Item("queue <type> [json]", "queue a mutation")
		f.Item("sync", "replay pending actions now")
		f.Item("retry", "reset failed actions and replay")
		f.Item("clear", "delete completed actions")
		f.Item("online | offline", "set connectivity")
		f.Item("exit", "leave the console")
		return false, nil

	case "status":
		s, err := collectStatus(ctx, c, false)
		if err != nil {
			return false, err
		}
		return false, printStatus(f, s)

	case "list", "failed":
		list := c.Store().ListPending
		if name == "failed" {
			list = func(ctx context.Context) ([]*action.QueuedAction, error) {
				return c.Store().ListByStatus(ctx, action.StatusFailed)
			}
		}
		actions, err := list(ctx)
		if err != nil {
			return false, err
		}
		views := make([]ActionView, 0, len(actions))
		for _, a := range actions {
			views = append(views, newActionView(a))
		}
		return false, printActions(f, views)

	case "queue":
		typ, data, _ := strings.Cut(rest, " ")
		if typ == "" {
			return false, fmt.Errorf("usage: queue <type> [json]")
		}
		var payload any
		if data = strings.TrimSpace(data); data != "" {
			if !json.Valid([]byte(data)) {
				return false, fmt.Errorf("data is not valid JSON")
			}
			payload = json.RawMessage(data)
		}
		queued, ok := c.Queue().Enqueue(ctx, action.Type(typ), payload, nil)
		if !ok {
			return false, fmt.Errorf("action was not queued")
		}
		return false, f.Success("Queued %s as %s", queued.Type, queued.ID)

	case "sync":
		res := c.Engine().SyncOfflineData(ctx, true)
		report := DrainReport{
			Online:    c.Monitor().Online(),
			Attempted: res.Attempted,
			Succeeded: res.Succeeded,
			Failed:    res.Failed,
			Remaining: res.Remaining,
			Skipped:   string(res.Skipped),
		}
		if res.Err != nil {
			report.Error = res.Err.Error()
		}
		return false, printDrain(f, report)

	case "retry":
		n, err := c.Engine().RetryFailed(ctx)
		if err != nil {
			return false, err
		}
		return false, f.Info("Reset %d failed action(s)", n)

	case "clear":
		n, err := c.Store().ClearCompleted(ctx)
		if err != nil {
			return false, err
		}
		return false, f.Success("Cleared %d completed action(s)", n)

	case "online":
		c.Monitor().SetOnline(true)
		return false, nil

	case "offline":
		c.Monitor().SetOnline(false)
		return false, nil
	}

	return false, fmt.Errorf("unknown command %q; type 'help'", name)
}
