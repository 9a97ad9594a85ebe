package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/transport"
)

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Answer conversation turns over NATS request/reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			nt, err := transport.NewNATSTransport(a.cfg.NATS, a.orch, a.logger)
			if err != nil {
				return err
			}
			defer nt.Close()

			if err := nt.Start(); err != nil {
				return err
			}

			<-ctx.Done()
			a.logger.Info("shutting down listener")
			return nil
		},
	}
}
