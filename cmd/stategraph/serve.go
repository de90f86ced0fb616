package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/aretw0/stategraph/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the HTTP server",
	Long:    `Exposes the registered graphs over a JSON API (see /openapi.yaml and /swagger), with run inspection, resume and Prometheus metrics.`,
	PreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := app.Config.HTTP.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := &httpAdapter.Server{
			Registry: app.Registry,
			Store:    app.Store,
			Locker:   app.Locker,
			LockTTL:  app.Config.Checkpoint.LockTTL,
			Logger:   app.Logger,
		}
		if app.Config.HTTP.Metrics {
			server.Gatherer = app.Gatherer
		}
		handler, err := httpAdapter.NewHandler(server)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("starting stategraph server", "addr", srv.Addr, "checkpoint", app.Config.Checkpoint.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			app.Logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Warn("graceful shutdown did not complete", "err", err)
				return srv.Close()
			}
			app.Logger.Info("server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides http.port)")
}
