package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpc_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/in/grpc"
	httpadapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/in/http"
	kafka_adapter "github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/kafka"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
	"github.com/JoeShih716/go-ledger-engine/internal/buildinfo"
	"github.com/JoeShih716/go-ledger-engine/internal/config"
	"github.com/JoeShih716/go-ledger-engine/pkg/logger"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC ledger service and the admin HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// 1. 儲存層
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	// 2. UseCase 與 decorators: logging(publishing(core))
	service, closePublisher, err := buildService(cfg, store.ledger, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	// 3. gRPC Server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer(grpc_adapter.ServerOptions(log.With(zap.String("component", "grpc")))...)
	grpc_adapter.RegisterLedgerServiceServer(grpcServer, grpc_adapter.NewGrpcServer(service))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpc_adapter.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	// 4. 管理用 HTTP Server
	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: httpadapter.NewRouter(log.With(zap.String("component", "http")), httpadapter.BuildInfo{
			Version: buildinfo.Version,
			Commit:  buildinfo.Commit,
			Storage: cfg.Storage.Driver,
		}, map[string]httpadapter.Pinger{"storage": store.pinger}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("Starting gRPC server", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("Starting admin HTTP server", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case serveErr = <-errCh:
		log.Error("Server failed, shutting down", zap.Error(serveErr))
	}

	// Graceful Shutdown
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Admin HTTP server shutdown", zap.Error(err))
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn("Graceful stop timed out, forcing")
		grpcServer.Stop()
	}

	log.Info("Server exited")
	return serveErr
}

// buildService 組裝 CoreUseCase 與 decorators，回傳關閉 publisher 的函式
func buildService(cfg *config.Config, ledger usecase.Ledger, log *zap.Logger) (usecase.Service, func(), error) {
	refs, err := usecase.NewSnowflakeReferences(cfg.Engine.SnowflakeNode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init reference generator: %w", err)
	}
	core := usecase.NewCoreUseCase(ledger,
		usecase.WithReferences(refs),
		usecase.WithAccountNumberRetry(cfg.Engine.AccountNumberAttempts, cfg.Engine.AccountNumberBackoff),
	)

	var publisher usecase.RecordPublisher = kafka_adapter.NopPublisher{}
	closePublisher := func() {}
	if cfg.Kafka.Enabled {
		kp := kafka_adapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.With(zap.String("component", "kafka")))
		publisher = kp
		closePublisher = func() {
			if err := kp.Close(); err != nil {
				log.Error("Failed to close kafka publisher", zap.Error(err))
			}
		}
	}

	var service usecase.Service = usecase.NewPublishingService(core, publisher, log)
	service = usecase.NewLoggingService(service, log.With(zap.String("component", "ledger")))
	return service, closePublisher, nil
}
