package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-blingfire/internal/server"
)

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the /health endpoint of a running blingfire server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			target := addr
			if target == "" {
				target = cfg.Server.ListenAddr
			}

			ctx, cancel := context.WithTimeout(contextOf(cmd), timeout)
			defer cancel()

			h, err := server.ProbeHTTP(ctx, target)
			if err != nil {
				return fmt.Errorf("health %s: %w", target, err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (version %s)\n", h.Status, h.Version)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server address to probe (defaults to server.listen_addr)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Give up when the server has not answered within this duration")

	return cmd
}
