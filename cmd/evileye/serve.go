package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/gateway"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		staticDir  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway with the built-in schema, configured signing keys and
an optional static file root. Configuration is read from the config file
and EVILEYE_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if staticDir != "" {
				cfg.Server.StaticDir = staticDir
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides configuration)")
	cmd.Flags().StringVar(&staticDir, "static", "", "Directory served at /")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(ctx, cfg)
	if err != nil {
		return err
	}

	if _, err := gw.Listen(ctx); err != nil {
		gw.Close(context.Background())
		return fmt.Errorf("starting gateway: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	return gw.Close(shutdownCtx)
}
