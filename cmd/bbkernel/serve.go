package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bbkernel/internal/httpapi"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr           string
		corsOrigins    string
		requestTimeout int64
		shutdownAfter  time.Duration
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Boot the kernel and serve the HTTP API",
		Example: "  bbkernel serve --config app.yml --addr :9000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, logger, release, err := opts.boot(cmd)
			if err != nil {
				return err
			}
			defer release()
			cfg := app.Config()
			if addr == "" {
				addr = cfg.Addr
			}

			origins := cfg.HTTP.CORS.Origins
			if corsOrigins != "" {
				origins = splitCSV(corsOrigins)
			}
			httpapi.SetLogger(logger)
			httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
			httpapi.SetRequestTimeoutSeconds(requestTimeout)
			httpapi.SetCORSOptions(cfg.HTTP.CORS.Enabled || len(origins) > 0, origins, cfg.HTTP.CORS.Methods, cfg.HTTP.CORS.Headers)
			httpapi.SetSwaggerEnabled(cfg.HTTP.Swagger)

			baseCtx, cancelBase := context.WithCancel(cmd.Context())
			defer cancelBase()
			httpapi.SetBaseContext(baseCtx)

			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewMux(app),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Str("dump", app.DumpPath()).Msg("bbkernel listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			// Graceful shutdown (Ctrl+C / SIGTERM)
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(stop)
			select {
			case <-stop:
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			cancelBase()
			ctx, cancel := context.WithTimeout(context.Background(), shutdownAfter)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (defaults to config addr)")
	cmd.Flags().StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins; enables CORS")
	cmd.Flags().Int64Var(&requestTimeout, "request-timeout", 0, "Timeout in seconds for sequence requests (0 disables)")
	cmd.Flags().DurationVar(&shutdownAfter, "shutdown-timeout", 5*time.Second, "Grace period for in-flight requests on shutdown")
	return cmd
}
