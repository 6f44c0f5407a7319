// Command mock-tracking runs an in-memory MLflow-compatible tracking
// server for development and conformance testing. State lives in process
// memory and is lost on shutdown.
//
// Configuration:
//
//	MOCKTRACKING_PORT  - Listen port (default: 5000)
//	MOCKTRACKING_TOKEN - When set, clients must send this bearer token
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlbridge-io/mlbridge/pkg/tracking/memory"
	"github.com/mlbridge-io/mlbridge/pkg/trackingtest"
)

func main() {
	port := os.Getenv("MOCKTRACKING_PORT")
	if port == "" {
		port = "5000"
	}

	store := memory.New()
	defer store.Close()

	var opts []trackingtest.Option
	if token := os.Getenv("MOCKTRACKING_TOKEN"); token != "" {
		opts = append(opts, trackingtest.WithToken(token))
	}

	srv := &http.Server{Addr: ":" + port, Handler: trackingtest.Handler(store, opts...)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock tracking server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock tracking server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock tracking server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
