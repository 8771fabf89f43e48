package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	statushttp "refdata-seeder/internal/seeding/adapter/http"

	"github.com/spf13/cobra"
)

// NewHealthCommand probes every configured backend once
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the document store, blob storage and run history backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			report := container.Health(ctx)
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Healthy {
				return errors.New("one or more components are unhealthy")
			}
			return nil
		},
	}
	return cmd
}

// NewServeCommand runs the read-only status server until interrupted
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only status server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			addr := container.Config.Status.ListenAddr
			if a := addressFlag(cmd); a != "" {
				addr = a
			}

			log := container.Logger.WithComponent("status-server")
			app := statushttp.NewServer(container.StatusHandler(), log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Infof("Status server listening on %s", addr)
				errCh <- app.Listen(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("Shutting down status server")
				return app.ShutdownWithTimeout(10 * time.Second)
			}
		},
	}
	addAddressFlag(cmd.Flags())
	return cmd
}
