package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/rafaeljc/eapproval/internal/approval"
	"github.com/rafaeljc/eapproval/internal/cache"
	"github.com/rafaeljc/eapproval/internal/config"
	"github.com/rafaeljc/eapproval/internal/database"
	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/observability"
	"github.com/rafaeljc/eapproval/internal/restapi"
	"github.com/rafaeljc/eapproval/internal/rpcapi"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
	"github.com/rafaeljc/eapproval/internal/store"
	"github.com/rafaeljc/eapproval/internal/syncer"
)

// shutdownGrace applies when no shutdown timeout is configured.
const shutdownGrace = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the validation service (REST, gRPC and observability servers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.App.Version == "dev" {
				cfg.App.Version = version
			}

			log := logger.New(&cfg.App)
			slog.SetDefault(log)
			cfg.LogConfig(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(logger.WithContext(ctx, log), cfg, log)
		},
	}
}

// serve is the composition root. It blocks until ctx is cancelled or a
// server fails, then shuts everything down within the configured timeout.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// -------------------------------------------------------------------------
	// 1. Ruleset (Fail Fast)
	// -------------------------------------------------------------------------
	rules := rulestore.New(rulestore.NewFileSource(cfg.Rules.File), log)

	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.Rules.LoadTimeout)
	_, err := rules.Reload(loadCtx, rulestore.TriggerStartup)
	cancelLoad()
	if err != nil {
		return fmt.Errorf("failed to load ruleset: %w", err)
	}

	// Background workers stop with workerCtx; they are waited for on exit.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer workers.Wait()
	defer stopWorkers()

	spawn := func(fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn(workerCtx)
		}()
	}

	// -------------------------------------------------------------------------
	// 2. Optional Infrastructure
	// -------------------------------------------------------------------------
	opts := approval.Options{}
	checkers := []observability.Checker{rulestore.NewHealthChecker(rules)}
	interval := cfg.Observability.CollectInterval

	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(cfg.Cache.Capacity, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("failed to create result cache: %w", err)
		}
		defer resultCache.Close()

		opts.Cache = resultCache
		opts.CacheKey = cache.ResultKey
		spawn(func(ctx context.Context) { resultCache.RunMetricsCollector(ctx, interval) })
	}

	if cfg.Database.IsConfigured() {
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		opts.Audit = store.NewPostgresStore(pool)
		opts.AuditTimeout = cfg.Database.AuditTimeout
		checkers = append(checkers, database.NewHealthChecker(pool))
		spawn(func(ctx context.Context) { database.RunPoolMonitor(ctx, pool, interval) })
	} else {
		log.Warn("database not configured: validation history is disabled")
	}

	var subscriber syncer.Subscriber
	if cfg.Redis.IsConfigured() {
		redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		bus := cache.NewReloadBus(redisClient, cfg.Redis.ReloadChannel, uuid.NewString(), log)
		opts.Broadcaster = bus
		subscriber = bus
		checkers = append(checkers, cache.NewHealthChecker(redisClient))
		spawn(func(ctx context.Context) { cache.RunPoolMonitor(ctx, redisClient, interval) })
		log.Info("reload broadcasting enabled", slog.String("origin", bus.Origin()))
	} else {
		log.Warn("redis not configured: reloads are not broadcast to peers")
	}

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	svc := approval.NewService(rules, ruleengine.New(log), log, opts)

	ruleSyncer := syncer.New(log, syncer.Config{
		WatchEnabled:  cfg.Rules.WatchEnabled,
		WatchInterval: cfg.Rules.WatchInterval,
	}, rules, subscriber)
	spawn(func(ctx context.Context) { _ = ruleSyncer.Run(ctx) })

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	errChan := make(chan error, 2)

	// Every port is bound before any server starts, so a bind failure leaves
	// nothing running.
	httpListener, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to bind http address %s: %w", cfg.Server.Address(), err)
	}

	var grpcListener net.Listener
	if cfg.GRPC.Enabled {
		grpcListener, err = net.Listen("tcp", cfg.GRPC.Address())
		if err != nil {
			_ = httpListener.Close()
			return fmt.Errorf("failed to bind grpc address %s: %w", cfg.GRPC.Address(), err)
		}
	}

	obsServer := observability.NewServer(log, &cfg.Observability, checkers...)
	if err := obsServer.Start(); err != nil {
		_ = httpListener.Close()
		if grpcListener != nil {
			_ = grpcListener.Close()
		}
		return err
	}

	api := restapi.NewAPI(svc, restapi.Config{
		APIKeyHash:   cfg.Server.APIKeyHash,
		SkipAuth:     cfg.Server.APIKeyHash == "",
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, log)
	httpServer := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info("REST API listening", slog.String("addr", httpServer.Addr), slog.Bool("tls", cfg.Server.TLSEnabled))
		var err error
		if cfg.Server.TLSEnabled {
			err = httpServer.ServeTLS(httpListener, cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = httpServer.Serve(httpListener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if grpcListener != nil {
		grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(
				rpcapi.RequestLoggerInterceptor(log),
				rpcapi.ObservabilityInterceptor(),
			),
			grpc.MaxConcurrentStreams(cfg.GRPC.MaxConcurrentStreams),
			grpc.MaxRecvMsgSize(cfg.GRPC.MaxRecvMsgBytes),
			grpc.KeepaliveParams(keepalive.ServerParameters{
				Time:             cfg.GRPC.KeepaliveTime,
				Timeout:          cfg.GRPC.KeepaliveTimeout,
				MaxConnectionAge: cfg.GRPC.MaxConnectionAge,
			}),
		)
		rpcapi.NewAPI(svc).Register(grpcServer)

		healthServer := health.NewServer()
		healthServer.SetServingStatus(rpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		go func() {
			log.Info("gRPC server listening", slog.String("addr", cfg.GRPC.Address()))
			if err := grpcServer.Serve(grpcListener); err != nil {
				errChan <- fmt.Errorf("grpc server failed: %w", err)
			}
		}()
	}

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errChan:
		log.Error("server failed, shutting down", slog.String("error", runErr.Error()))
	}

	timeout := cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = shutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}
	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	stopWorkers()
	workers.Wait()

	log.Info("service exited")
	return runErr
}

// stopGRPC drains in-flight RPCs, forcing the stop once ctx expires.
func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
		<-done
	}
}

