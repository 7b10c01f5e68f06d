package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application"
)

const shutdownTimeout = 5 * time.Second

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run in the foreground until interrupted.

The daemon polls connectivity, drains the queue on reconnect and on the
periodic schedule, and accepts background sync notices from the inbox
directory and the WebSocket endpoint (/ws) when configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireContainer()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = c.Config().Bridge.WebSocketAddr
			}
			return runDaemon(cmd.Context(), c, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address for /ws and /status (default: bridge.websocket_addr)")

	return cmd
}

func runDaemon(ctx context.Context, c *application.Container, listen string) error {
	f := GetFormatter()
	logger := c.Logger()

	if err := c.StartBackground(ctx); err != nil {
		return err
	}
	defer c.StopBackground()

	g, ctx := errgroup.WithContext(ctx)

	if listen != "" {
		ln, err := net.Listen("tcp", listen)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Handler:           daemonMux(c),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("daemon listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	f.Info("Sync daemon running (backend: %s). Press Ctrl+C to stop.", c.Remote().Name())

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	f.Info("Sync daemon stopped.")
	return err
}

// daemonMux serves the bridge WebSocket and a JSON snapshot of sync state.
func daemonMux(c *application.Container) *http.ServeMux {
	mux := http.NewServeMux()
	if ws := c.WebSocketHandler(); ws != nil {
		mux.Handle("/ws", ws)
	}
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status, err := collectStatus(r.Context(), c, false)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}
