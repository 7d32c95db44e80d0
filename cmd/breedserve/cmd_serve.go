package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"breedserve/internal/httpapi"
	"breedserve/internal/lifecycle"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inference host HTTP server",
		Long: `Runs the inference host. The server accepts connections immediately;
the model is acquired, validated and loaded in the background (after a
warm-up delay, or on the first request in lazy mode) while /health keeps
answering 200.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			log := newLogger(cfg, cmd.ErrOrStderr())

			httpapi.SetLogger(log)
			httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
			httpapi.SetRequestTimeout(cfg.HTTP.RequestTimeout.D())
			httpapi.SetCORSOptions(cfg.HTTP.CORSEnabled, cfg.HTTP.CORSOrigins, cfg.HTTP.CORSMethods, cfg.HTTP.CORSHeaders)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			httpapi.SetBaseContext(ctx)

			svc, lc, err := newEngine(cfg, log, lifecycle.MultiPublisher{httpapi.MetricsPublisher{}}, httpapi.InferenceObserver{})
			if err != nil {
				return err
			}
			defer lc.Close()
			lc.Start()

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpapi.NewMux(svc),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Str("model", cfg.Model.Path).Str("start_mode", cfg.Model.StartMode).Msg("breedserve listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Error().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :5001 (overrides config and PORT)")
	return cmd
}
