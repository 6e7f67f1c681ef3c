package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-chat/api"
	"support-chat/auth"
	"support-chat/contract"
	chatredis "support-chat/infrastructure/redis"
	"support-chat/moderation"
	"support-chat/repositories"
	"support-chat/runtime"
	"support-chat/runtime/workers"
	"support-chat/services"
	"support-chat/sink"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, _ := config.CharacterRune()

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Persistence gateway
	st, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer st.close()

	// 3. Change feed, shared through Redis when several instances run
	registry := runtime.NewRegistry(logger, config.SubscriberBuffer)
	var publisher contract.IPublisher = registry
	var relays []contract.Worker
	if config.RedisURL != "" {
		rdb, err := chatredis.NewClient(ctx, config.RedisURL, config.RedisDB)
		if err != nil {
			return exitRuntime, err
		}
		defer func() { _ = rdb.Close() }()
		publisher = chatredis.NewPublisher(rdb, chatredis.DefaultFeedChannel)
		relays = append(relays, chatredis.NewRelayWorker(rdb, chatredis.DefaultFeedChannel, registry, logger))
		st.leases = chatredis.NewLeaseRepository(rdb, config.LeaseRetention, logger)
		logger.Info("Redis feed relay and presence store enabled")
	}
	sessions := runtime.NewObservedSessions(st.sessions, publisher, logger)
	messages := runtime.NewObservedMessages(st.messages, publisher, logger)

	// 4. Moderation & search
	var filter contract.IContentFilter
	if config.ModerationEnabled {
		moderator, err := runtime.PrepareModeration(moderation.NewEmbeddedLoader(),
			moderation.DefaultDictionaryDir, charReplacement, logger)
		if err != nil {
			return exitRuntime, fmt.Errorf("moderation init failed: %w", err)
		}
		filter = moderator
	}

	blugeWriter, err := repositories.OpenSearchWriter(config.BlugeFilepath)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()
	index := repositories.NewSearchRepository(blugeWriter, logger)
	searchSink := sink.NewSearchSink(st.messages, index, logger,
		config.IndexBatchSize, config.IndexBufferTimeout, config.SinkTimeout)

	// 5. Background workers
	sup := workers.NewSupervisor(logger).WithRestartDelay(config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, config.SinkTimeout).
		Add(searchSink).
		AddWorker(relays...).
		AddWorker(workers.NewFeedMonitorWorker(logger, registry, config.MetricInterval, config.FeedSaturation))

	errChan := make(chan error, 3)
	go func() {
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. HTTP API & change feed
	opts := config.serviceOptions()
	tokens := auth.NewTokenManager(config.JWTSecret, config.TokenTTL)
	apiServer := api.NewServer(api.Dependencies{
		Lifecycle: services.NewLifecycleService(sessions, messages, filter, opts, logger),
		Messages:  services.NewMessageService(messages, filter, opts, logger),
		Presence:  services.NewPresenceService(st.leases, config.PresenceWindow, opts, logger),
		Activity:  services.NewActivityService(sessions, messages, opts, logger),
		Searcher:  index,
		Feed:      registry,
	}, tokens, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", config.HTTPPort),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "driver", config.StorageDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC health
	address := fmt.Sprintf("0.0.0.0:%d", config.GRPCPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			auth.UnaryInterceptor(tokens),
		))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful shutdown: stop accepting, drain, then flush the index
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()
	orchestrator.Stop(config.ShutdownTimeout)
	logger.Info("Program stopped cleanly")

	return code, runErr
}
