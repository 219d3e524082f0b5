package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/solatis/labelkeeper/internal/core/api"
	"github.com/solatis/labelkeeper/internal/core/auth"
	"github.com/solatis/labelkeeper/internal/core/broadcast"
	"github.com/solatis/labelkeeper/internal/core/config"
	"github.com/solatis/labelkeeper/internal/core/db"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/core/server"
	"github.com/solatis/labelkeeper/internal/core/tracing"
	"github.com/solatis/labelkeeper/internal/rules"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC API servers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	d := config.Default()
	serveCmd.Flags().String("host", d.Server.Host, "listen host")
	serveCmd.Flags().Int("http-port", d.Server.HTTPPort, "HTTP server port")
	serveCmd.Flags().Int("grpc-port", d.Server.GRPCPort, "gRPC server port")
	serveCmd.Flags().String("data-dir", d.Server.DataDir, "directory for the payload audit log")
	serveCmd.Flags().Bool("seed-demo", d.Server.SeedDemo, "create the demo user and rules on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := slog.Default()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := db.RequireMigrated(ctx, database); err != nil {
		return err
	}

	store, err := db.NewStore(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	m := metrics.New()
	metrics.RegisterPoolMetrics(m.Registry, database)

	hub := broadcast.NewHub()
	defer hub.Close()

	service, err := api.NewLabelService(store, rules.NewEngine(), hub, m, cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if cfg.Server.SeedDemo {
		n, err := service.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		log.Info("demo data seeded", "rules_created", n)
	}

	resolver := auth.NewResolver(cfg.Server.DefaultUser)

	httpHandler := server.NewHTTPHandler(service, server.HTTPOptions{
		Resolver:        resolver,
		Metrics:         m,
		Logger:          log,
		RequestTimeout:  cfg.Server.RequestTimeout,
		MaxBodySize:     cfg.Server.MaxBodySize,
		StreamHeartbeat: cfg.Server.StreamHeartbeat,
		Ready:           store.Ping,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr(),
		Handler:           otelhttp.NewHandler(httpHandler, "labelkeeper-http"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Server, service, resolver, m, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("starting labelkeeper",
		"version", Version,
		"http_addr", cfg.Server.HTTPAddr(),
		"grpc_addr", cfg.Server.GRPCAddr(),
	)

	errChan := make(chan error, 2)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case runErr = <-errChan:
		log.Error("server failed", "error", runErr)
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// End SSE streams first so the HTTP server can drain.
	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("grpc shutdown", "error", err)
	}

	return runErr
}
