package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/burakkarakan/letter-engine/internal/config"
	"github.com/burakkarakan/letter-engine/internal/document"
	"github.com/burakkarakan/letter-engine/internal/gateway"
	"github.com/burakkarakan/letter-engine/internal/handler"
	"github.com/burakkarakan/letter-engine/internal/infra/postgresql"
	"github.com/burakkarakan/letter-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/burakkarakan/letter-engine/internal/infra/redis"
	"github.com/burakkarakan/letter-engine/internal/ingest"
	"github.com/burakkarakan/letter-engine/internal/observability"
	"github.com/burakkarakan/letter-engine/internal/provision"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/burakkarakan/letter-engine/internal/registry"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/burakkarakan/letter-engine/internal/service"
	"github.com/burakkarakan/letter-engine/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("letter-engine exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rmq.Close()

	publisher := queue.NewRabbitMQPublisher(rmq)
	consumer := queue.NewRabbitMQConsumer(rmq, cfg.WorkerConcurrency, logger)

	metrics := observability.NewMetrics()

	typeRepo := repository.NewGormLetterTypeRepo(db)
	jobRepo := repository.NewGormEmailJobRepo(db)
	batchRepo := repository.NewGormBatchRepo(db)
	documentRepo := repository.NewGormDocumentRepo(db)
	eventRepo := repository.NewGormWebhookEventRepo(db)

	provisioner := provision.NewProvisioner(provision.NewGormTableStore(db), logger)
	typeRegistry := registry.NewRegistry(typeRepo, provisioner, logger)
	importer := ingest.NewImporter(typeRegistry, provisioner, logger)

	renderer, err := document.NewHTTPRenderer(cfg.RendererURL)
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	pipeline := document.NewPipeline(typeRegistry, provisioner, renderer, documentRepo, metrics, logger)

	mailGateway, err := gateway.NewHTTPGateway(cfg.MailGatewayURL)
	if err != nil {
		return fmt.Errorf("mail gateway initialization failed: %w", err)
	}

	dispatchService, err := service.NewDispatchService(
		typeRepo, jobRepo, batchRepo, pipeline, publisher,
		cfg.DefaultRatePerMinute, cfg.MaxSendRetries, logger,
	)
	if err != nil {
		return fmt.Errorf("dispatch service initialization failed: %w", err)
	}

	dispatchWorker, err := service.NewDispatchWorker(
		jobRepo, batchRepo, documentRepo, consumer, mailGateway, rateLimiter,
		cfg.WorkerConcurrency, logger,
	)
	if err != nil {
		return fmt.Errorf("dispatch worker initialization failed: %w", err)
	}
	dispatchWorker.SetMetrics(metrics)

	deliveryService, err := service.NewDeliveryService(
		jobRepo, eventRepo, publisher, cfg.WebhookResolveMaxRetries, logger,
	)
	if err != nil {
		return fmt.Errorf("delivery service initialization failed: %w", err)
	}
	deliveryService.SetMetrics(metrics)

	deliveryWorker, err := service.NewDeliveryWorker(deliveryService, consumer, cfg.WorkerConcurrency, logger)
	if err != nil {
		return fmt.Errorf("delivery worker initialization failed: %w", err)
	}
	deliveryWorker.SetMetrics(metrics)

	retryScanner, err := service.NewRetryScanner(jobRepo, publisher, 0, 0, logger)
	if err != nil {
		return fmt.Errorf("retry scanner initialization failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "letter-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(transport.RequestID())
	app.Use(transport.RequestLogger(logger))
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterLetterTypeRoutes(app, typeRegistry); err != nil {
		return fmt.Errorf("failed to register letter type routes: %w", err)
	}
	if err := handler.RegisterRowRoutes(app, typeRegistry, provisioner, importer); err != nil {
		return fmt.Errorf("failed to register row routes: %w", err)
	}
	if err := handler.RegisterDocumentRoutes(app, pipeline); err != nil {
		return fmt.Errorf("failed to register document routes: %w", err)
	}
	if err := handler.RegisterDispatchRoutes(app, dispatchService); err != nil {
		return fmt.Errorf("failed to register dispatch routes: %w", err)
	}
	if err := handler.RegisterWebhookRoutes(app, publisher, cfg.WebhookSecret, logger); err != nil {
		return fmt.Errorf("failed to register webhook routes: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("letter-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		return dispatchWorker.Start(groupCtx)
	})

	g.Go(func() error {
		return deliveryWorker.Start(groupCtx)
	})

	g.Go(func() error {
		return retryScanner.Start(groupCtx)
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("letter-engine stopped")
	return nil
}
