package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/config"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/presentation/cli/output"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigFile   string `json:"config_file"`
	StorePath    string `json:"store_path"`
	Backend      string `json:"backend"`
	APIKeySealed bool   `json:"api_key_sealed"`
}

type initOptions struct {
	force     bool
	backend   string
	baseURL   string
	apiKey    string
	dsn       string
	storePath string
	inboxDir  string
	wsAddr    string
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a ppesync configuration file",
		Long: `Write a configuration file with the remote backend and local paths.

The REST API key is sealed with a machine-bound key before it is written,
so the config file never holds it in plaintext.`,
		Example: `  # REST backend with an API key
  ppesync init --base-url https://project.example.co --api-key $ANON_KEY

  # Direct PostgreSQL backend
  ppesync init --backend postgres --dsn postgres://app@db/inspections`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&opts.backend, "backend", config.DefaultRemoteBackend, "remote backend: rest, postgres")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", config.DefaultRESTBaseURL, "REST backend base URL")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "REST backend API key (stored sealed)")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL connection string")
	cmd.Flags().StringVar(&opts.storePath, "store", config.DefaultStorePath, "action store database path")
	cmd.Flags().StringVar(&opts.inboxDir, "inbox", config.DefaultBridgeInboxDir, "background sync inbox directory")
	cmd.Flags().StringVar(&opts.wsAddr, "websocket-addr", "", "background sync WebSocket listen address")

	return cmd
}

func runInit(opts initOptions) error {
	formatter := newFormatter()

	loader, err := config.NewLoader("")
	if err != nil {
		return err
	}
	configFile := globalFlags.ConfigFile
	if configFile == "" {
		configFile = loader.DefaultConfigPath()
	}

	if _, err := os.Stat(configFile); err == nil && !opts.force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configFile)
	}

	cfg := config.NewDefaultConfig()
	cfg.Store.Path = opts.storePath
	cfg.Remote.Backend = opts.backend
	cfg.Remote.REST.BaseURL = opts.baseURL
	cfg.Remote.Postgres.DSN = opts.dsn
	cfg.Bridge.InboxDir = opts.inboxDir
	cfg.Bridge.WebSocketAddr = opts.wsAddr

	if opts.apiKey != "" {
		sealer, err := application.NewSealer(filepath.Dir(configFile))
		if err != nil {
			return fmt.Errorf("failed to prepare key sealing: %w", err)
		}
		sealed, err := sealer.Seal(opts.apiKey)
		if err != nil {
			return fmt.Errorf("failed to seal api key: %w", err)
		}
		cfg.Remote.REST.APIKeyEncrypted = sealed
	}

	if err := loader.Save(cfg, configFile); err != nil {
		return err
	}

	result := InitResult{
		ConfigFile:   configFile,
		StorePath:    cfg.Store.Path,
		Backend:      cfg.Remote.Backend,
		APIKeySealed: cfg.Remote.REST.APIKeyEncrypted != "",
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(result)
	}

	formatter.Success("Configuration written to %s", result.ConfigFile)
	formatter.Item("Backend", result.Backend)
	formatter.Item("Action store", result.StorePath)
	if result.APIKeySealed {
		formatter.Item("API key", "sealed")
	}
	return nil
}
