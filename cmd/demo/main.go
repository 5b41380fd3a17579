// Command demo runs a small user directory on the gateway: an addUser
// command, a getUserById query and a whoAmI-aware listing.
//
//	go run ./cmd/demo
//	curl -s localhost:3000/graphql -d '{"query":"mutation { addUser(username: \"alfred\") { id username city } }"}'
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if cfg.Name == "unknown" {
		cfg.Name = "evileye-demo"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(ctx, cfg, gateway.WithInitialState(initialState()))
	if err != nil {
		return err
	}
	if err := registerUsers(gw); err != nil {
		gw.Close(context.Background())
		return err
	}

	if _, err := gw.Listen(ctx); err != nil {
		gw.Close(context.Background())
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return gw.Close(shutdownCtx)
}
