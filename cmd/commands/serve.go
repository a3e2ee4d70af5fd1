package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/cloudcity/internal/api"
	"github.com/yourusername/cloudcity/internal/app"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Long: `Run the REST API under /api/v1 together with /health and /metrics.
The server stops on SIGINT or SIGTERM after draining in-flight requests and
cancelling running discoveries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")

	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, app.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv := api.NewServer(container.APIServices(), api.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		TopN:         cfg.Graph.TopN,
		Version:      Version,
	}, log)

	serveErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := container.Close(shutdownCtx); err != nil {
		log.Warn("shutdown: %v", err)
	}
	return serveErr
}
