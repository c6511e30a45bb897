package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/annotator/internal/config"
	"github.com/discochess/annotator/internal/httpapi"
)

// shutdownTimeout bounds in-flight requests on shutdown.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cache lookups and annotation over HTTP",
	Long: `Start an HTTP server with:
  GET  /healthz
  GET  /v1/lookup?fen=FEN
  POST /v1/annotate   (PGN body, requires an engine)
  GET  /metrics       (with --metrics prometheus)

Examples:
  annotator serve --addr :8080 --store redis --redis-addr localhost:6379
  annotator serve --scalar-engine stockfish --metrics prometheus`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	addEngineFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := []httpapi.Option{httpapi.WithLogger(rt.logger)}
	if len(rt.pools) > 0 {
		opts = append(opts, httpapi.WithAnnotator(rt.annotator))
	}
	if rt.cfg.Metrics == config.MetricsPrometheus {
		opts = append(opts, httpapi.WithMetrics(prometheus.DefaultGatherer))
	}

	srv := &http.Server{
		Addr:              rt.cfg.Server.Addr,
		Handler:           httpapi.New(rt.annotator.Cache(), opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
