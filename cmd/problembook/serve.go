package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/config"
	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the problembook server",
	Long: `Start the problembook HTTP server.

The server opens the result store and extraction cache in the home
directory, runs OCR and solve jobs in the background, and watches the
config file so provider changes apply without a restart.

The server provides:
  - /health       - Basic server health check
  - /ready        - Readiness check (job manager and store)
  - /api/...      - Batches, jobs, pages and problems
  - /swagger.json - OpenAPI document

Examples:
  problembook serve                    # Start on the configured port (default 8080)
  problembook serve --port 3000        # Start on custom port
  problembook serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.Default()

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}
		cm.WatchConfig()
		if f := cm.ConfigFile(); f != "" {
			logger.Info("loaded config", "file", f)
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port from config)")

	rootCmd.AddCommand(serveCmd)
}
