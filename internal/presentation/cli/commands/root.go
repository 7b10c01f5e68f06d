// Package commands implements the CLI commands for ppesync.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/notify"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/config"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// session is the state shared by the command that is running.
type session struct {
	formatter *output.Formatter
	container *application.Container
}

var (
	globalFlags GlobalFlags

	sessMu sync.RWMutex
	sess   *session
)

// commands that run without opening the action store
var skipInit = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
	"init":       true,
}

var commandGroups = []struct {
	group *cobra.Group
	cmds  []func() *cobra.Command
}{
	{&cobra.Group{ID: "queue", Title: "Action queue:"}, []func() *cobra.Command{
		NewStatusCmd, NewQueueCmd, NewListCmd, NewSyncCmd, NewRetryCmd, NewClearCmd,
	}},
	{&cobra.Group{ID: "records", Title: "Inspection records:"}, []func() *cobra.Command{
		NewInspectCmd, NewPPECmd, NewNotificationsCmd,
	}},
	{&cobra.Group{ID: "modes", Title: "Long-running modes:"}, []func() *cobra.Command{
		NewRunCmd, NewConsoleCmd,
	}},
}

// NewRootCmd creates the root command for the ppesync CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ppesync",
		Short: "Offline-first sync for PPE inspections",
		Long: `ppesync keeps PPE inspection data flowing when the network does not.

Mutations made while offline go to a durable local queue and are replayed
against the remote record store, oldest first, once connectivity returns.
Actions that keep failing are parked as failed until 'ppesync retry'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit[cmd.Name()] {
				return nil
			}
			if err := initializeApp(); err != nil {
				return err
			}
			cmd.SetContext(logging.WithCorrelationID(cmd.Context(), uuid.NewString()))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.ppesync/config.yaml)")
	flags.StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	flags.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd(), NewInitCmd())
	for _, g := range commandGroups {
		rootCmd.AddGroup(g.group)
		for _, newCmd := range g.cmds {
			cmd := newCmd()
			cmd.GroupID = g.group.ID
			rootCmd.AddCommand(cmd)
		}
	}

	return rootCmd
}

// newFormatter builds a formatter from the global output flag.
func newFormatter() *output.Formatter {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		format = output.FormatText
	}
	return output.NewFormatter(
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.IsColorSupported()),
	)
}

// initializeApp loads the configuration and builds the container.
func initializeApp() error {
	formatter := newFormatter()

	loader, err := config.NewLoader("")
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}
	cfg, err := loader.Load(globalFlags.ConfigFile)
	if err != nil {
		return err
	}
	configDir := loader.ConfigDir()
	if globalFlags.ConfigFile != "" {
		configDir = filepath.Dir(globalFlags.ConfigFile)
	}

	opts := []application.Option{
		application.WithVerbose(globalFlags.Verbose),
		application.WithConfigDir(configDir),
	}
	// Toasts go to text output only.
	if formatter.Format() == output.FormatText {
		opts = append(opts, application.WithNotifier(notify.NewToast(formatter)))
	}

	container, err := application.NewContainer(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	sessMu.Lock()
	sess = &session{formatter: formatter, container: container}
	sessMu.Unlock()
	return nil
}

func current() *session {
	sessMu.RLock()
	defer sessMu.RUnlock()
	return sess
}

// GetFormatter returns the session formatter, or a fresh one built from the
// global flags before initialization.
func GetFormatter() *output.Formatter {
	if s := current(); s != nil {
		return s.formatter
	}
	return newFormatter()
}

// GetContainer returns the application container, or nil before initialization.
func GetContainer() *application.Container {
	if s := current(); s != nil {
		return s.container
	}
	return nil
}

// requireContainer returns the container or an error for commands that need it.
func requireContainer() (*application.Container, error) {
	if c := GetContainer(); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("application not initialized")
}

// Shutdown closes the container and ends the session.
func Shutdown() {
	sessMu.Lock()
	defer sessMu.Unlock()

	if sess != nil && sess.container != nil {
		_ = sess.container.Close()
	}
	sess = nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so long-running commands can drain and exit cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := NewRootCmd().ExecuteContext(ctx)
	formatter := GetFormatter()
	Shutdown()
	stop()

	if err != nil {
		formatter.Error("%s", err.Error())
		os.Exit(1)
	}
}
