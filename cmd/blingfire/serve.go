package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-blingfire/internal/server"
	"github.com/example/go-blingfire/internal/tokenizer"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tokenizer HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Start returns only after in-flight requests drain, so the model
			// is freed once nothing is using it.
			return withModel(cfg, func(m *tokenizer.Model) error {
				return server.New(cfg, m).WithLogger(slog.Default()).Start(ctx)
			})
		},
	}

	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
