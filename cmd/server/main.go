// Command main is the entry point for the Piazza API server.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"piazza/internal/bootstrap"
	"piazza/internal/config"
	"piazza/internal/middleware"
	"piazza/internal/observability"
	"piazza/internal/server"
)

// @title Piazza API
// @version 1.0
// @description Topic bulletin board with expiring posts, reactions and comments.

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:3000
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.Logger = middleware.NewLogger(cfg.Env, os.Getenv("LOG_LEVEL"))

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "piazza-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv, err := server.NewServer(cfg, rt)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	err = serve(srv.Start, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			middleware.Logger.Error("server shutdown error", slog.String("error", err.Error()))
		}
		if err := shutdownTracing(ctx); err != nil {
			middleware.Logger.Error("tracing shutdown error", slog.String("error", err.Error()))
		}
	}, sigChan, 10*time.Second)
	if err != nil {
		log.Fatal(err)
	}
}

// serve runs start until a signal arrives, then runs stop. start returns as
// soon as the listener closes, so serve also waits for stop to finish.
func serve(start func() error, stop func(context.Context), sig <-chan os.Signal, grace time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sig

		middleware.Logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		stop(ctx)
	}()

	if err := start(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	<-done
	return nil
}
