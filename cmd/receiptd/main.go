package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/receiptdev/receipt-manager/internal/async"
	"github.com/receiptdev/receipt-manager/internal/common"
	"github.com/receiptdev/receipt-manager/internal/ingest"
	"github.com/receiptdev/receipt-manager/internal/llm/openai"
	"github.com/receiptdev/receipt-manager/internal/ocr"
	"github.com/receiptdev/receipt-manager/internal/pipeline"
	"github.com/receiptdev/receipt-manager/internal/repository"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, 3*time.Second); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Error("applying schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	receiptsRepo := repository.NewReceiptRepository(pool, logger)
	itemsRepo := repository.NewItemRepository(pool, logger)
	categoriesRepo := repository.NewCategoryRepository(pool, logger)

	extractor := ocr.NewClient(ocr.Config{
		BaseURL:  cfg.OCR.BaseURL,
		APIKey:   cfg.OCR.APIKey,
		APIToken: cfg.OCR.APIToken,
		Timeout:  cfg.OCR.Timeout,
	}, logger)

	parser := openai.NewClient(openai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	proc := pipeline.NewProcessor(logger, pipeline.Config{
		StorageRoot: cfg.Storage.Root,
		Timezone:    cfg.Storage.Timezone,
	}, receiptsRepo, itemsRepo, categoriesRepo, extractor, parser)

	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithProcessTimeout(cfg.Worker.JobTimeout),
		async.WithMaxAttempts(cfg.Worker.MaxAttempts),
		async.WithRetryBackoff(cfg.Worker.RetryBackoff),
	)

	// Inbox watcher is optional; the daemon also serves receipts ingested by
	// the CLI tools against the same database.
	if cfg.Storage.InboxDir != "" {
		ownerID, err := uuid.Parse(os.Getenv("OWNER_ID"))
		if err != nil {
			logger.Error("OWNER_ID env var must be a UUID when INBOX_DIR is set", "error", err)
			os.Exit(2)
		}
		events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Root:        cfg.Storage.InboxDir,
			InitialScan: true,
			Debounce:    500 * time.Millisecond,
		}, logger)
		if err != nil {
			logger.Error("starting inbox watcher", "inbox", cfg.Storage.InboxDir, "error", err)
			os.Exit(1)
		}
		ingestor := ingest.NewIngestor(receiptsRepo, queue, cfg.Storage.Root, ownerID, logger)
		go ingestor.Run(ctx, events)
		go func() {
			for err := range watchErrs {
				logger.Error("inbox watcher error", "error", err)
			}
		}()
		logger.Info("watching inbox", "inbox", cfg.Storage.InboxDir, "owner_id", ownerID)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("gRPC serving", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	grpcServer.GracefulStop()

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(drainCtx)
	logger.Info("stopped")
}
