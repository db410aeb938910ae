package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/alert"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/config"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/db"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/health"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/ingest"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/metrics"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/mq"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/pipeline"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/repository"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/status"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/threshold"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startConsumer wires the ingest service to the telemetry queue
func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	service *ingest.Service,
) (*mq.Consumer, error) {
	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.IngestQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: service.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting ingest consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("ingest consumer stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

// startPipeline runs the derivation loop for the process lifetime
func startPipeline(lc fx.Lifecycle, p *pipeline.Pipeline, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			go func() {
				defer close(done)
				p.Start(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				logger.Info("pipeline stopped gracefully")
				return nil
			case <-stopCtx.Done():
				return fmt.Errorf("pipeline did not stop before shutdown deadline: %w", stopCtx.Err())
			}
		},
	})
}

// startMetricsServer exposes Prometheus metrics on the service port
func startMetricsServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	metrics.Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServicePort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			go func() {
				logger.Info("metrics server listening", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			return server.Shutdown(stopCtx)
		},
	})
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the alert event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.AlertExchange, logger)
}

// ProvideAlertNotifier creates the alert lifecycle notifier
func ProvideAlertNotifier(publisher *mq.Publisher, cfg *config.Config, logger *zap.Logger) *mq.AlertNotifier {
	return mq.NewAlertNotifier(publisher, cfg.RabbitMQ.AlertRoutingKey, logger)
}

// ProvideTelemetryRepository creates a new telemetry repository instance
func ProvideTelemetryRepository(pool *db.Pool) *repository.TelemetryRepository {
	return repository.NewTelemetryRepository(pool)
}

// ProvideHealthRepository creates a new health repository instance
func ProvideHealthRepository(pool *db.Pool) *repository.HealthRepository {
	return repository.NewHealthRepository(pool)
}

// ProvideMachineRepository creates a new machine repository instance
func ProvideMachineRepository(pool *db.Pool) *repository.MachineRepository {
	return repository.NewMachineRepository(pool)
}

// ProvideThresholdRepository creates a new threshold repository instance
func ProvideThresholdRepository(pool *db.Pool) *repository.ThresholdRepository {
	return repository.NewThresholdRepository(pool)
}

// ProvideAlertRepository creates a new alert repository instance
func ProvideAlertRepository(pool *db.Pool) *repository.AlertRepository {
	return repository.NewAlertRepository(pool)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideIngestService creates a new ingest service instance
func ProvideIngestService(
	repo *repository.TelemetryRepository,
	validator *validator.Validator,
	logger *zap.Logger,
) *ingest.Service {
	return ingest.NewService(repo, validator, logger)
}

// ProvideThresholdResolver creates a new threshold resolver instance
func ProvideThresholdResolver(repo *repository.ThresholdRepository) *threshold.Resolver {
	return threshold.NewResolver(repo)
}

// ProvideHealthDeriver creates a new health deriver instance
func ProvideHealthDeriver(
	telemetry *repository.TelemetryRepository,
	healths *repository.HealthRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *health.Deriver {
	return health.NewDeriver(telemetry, healths, cfg.Pipeline.BatchSize, logger)
}

// ProvideStatusClassifier creates a new status classifier instance
func ProvideStatusClassifier(
	telemetry *repository.TelemetryRepository,
	machines *repository.MachineRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *status.Classifier {
	return status.NewClassifier(telemetry, machines, cfg.Pipeline.RunningRPM, logger)
}

// ProvideAlertEvaluator creates a new alert evaluator instance
func ProvideAlertEvaluator(
	telemetry *repository.TelemetryRepository,
	healths *repository.HealthRepository,
	machines *repository.MachineRepository,
	alerts *repository.AlertRepository,
	resolver *threshold.Resolver,
	notifier *mq.AlertNotifier,
	cfg *config.Config,
	logger *zap.Logger,
) *alert.Evaluator {
	return alert.NewEvaluator(
		telemetry,
		healths,
		machines,
		alerts,
		resolver,
		cfg.Pipeline.RunningRPM,
		cfg.Pipeline.BatchSize,
		logger,
		alert.WithNotifier(notifier),
	)
}

// ProvidePipeline creates the derivation pipeline
func ProvidePipeline(
	deriver *health.Deriver,
	classifier *status.Classifier,
	evaluator *alert.Evaluator,
	cfg *config.Config,
	logger *zap.Logger,
) *pipeline.Pipeline {
	return pipeline.New(deriver, classifier, evaluator, cfg.Pipeline.TickInterval, logger)
}
