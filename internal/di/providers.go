package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/handler/api"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/features"
	"FinCast/internal/services/forecast"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	"FinCast/pkg/http/middleware"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/queue"
	"FinCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client and, when configured,
// the records table.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, pkgch.RecordsSchema(client.Database(), cfg.Source.Table)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, nil
}

// ProvideRecordSource opens the backend selected by source.driver.
func ProvideRecordSource(cfg *config.Config, l *applogger.Logger) (domrepo.RecordSource, error) {
	switch cfg.Source.Driver {
	case "clickhouse":
		client, err := ProvideClickHouseClient(cfg)
		if err != nil {
			return nil, err
		}
		src, err := internalrepo.NewCHRecordSource(client, cfg.Source.Table)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		src.SetLogger(l)
		return src, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		src, err := internalrepo.NewPGRecordSource(ctx, cfg.Postgres.DSN, cfg.Source.Table, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		src.SetLogger(l)
		return src, nil
	case "sqlite":
		src, err := internalrepo.NewSQLiteRecordSource(cfg.SQLite.Path, cfg.Source.Table)
		if err != nil {
			return nil, err
		}
		src.SetLogger(l)
		return src, nil
	case "csv", "parquet":
		src, err := internalrepo.NewFileRecordSource(cfg.Source.Path, cfg.Source.Driver)
		if err != nil {
			return nil, err
		}
		src.SetLogger(l)
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
	}
}

// ProvideLoader wraps the source with parsing and retry policy.
func ProvideLoader(src domrepo.RecordSource, cfg *config.Config, l *applogger.Logger) *internalrepo.Loader {
	lc := internalrepo.DefaultLoaderConfig()
	lc.StrictTimestamps = cfg.Strict()
	if cfg.Loader.MaxAttempts > 0 {
		lc.MaxAttempts = cfg.Loader.MaxAttempts
	}
	if cfg.Loader.InitialInterval > 0 {
		lc.InitialInterval = cfg.Loader.InitialInterval
	}
	if cfg.Loader.MaxElapsed > 0 {
		lc.MaxElapsed = cfg.Loader.MaxElapsed
	}
	return internalrepo.NewLoader(src, lc, l)
}

// ProvideRedis dials Redis when enabled. The returned client is shared by
// the prediction cache and the job queue; nil when Redis is disabled.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache builds the prediction cache for cache.mode.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	switch cfg.Cache.Mode {
	case "memory":
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(1000))
	case "redis":
		return cache.NewRedisCacheWithClient(rc.Client(), cfg.Redis.Prefix)
	case "layered":
		return cache.NewLayeredCache(cache.NewRedisCacheWithClient(rc.Client(), cfg.Redis.Prefix),
			cache.WithLayeredL1TTL(time.Minute))
	default:
		return cache.Nop{}
	}
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideForecastPublisher publishes forecast events through the producer.
// It returns a nil interface when Kafka is disabled.
func ProvideForecastPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ForecastPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.ForecastTopic)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(nil)
}

// ProvideTrainingConfig maps model and train settings onto the pipeline.
func ProvideTrainingConfig(cfg *config.Config) (usecase.TrainingConfig, error) {
	mode, err := features.ParseStepMode(cfg.Train.Mode)
	if err != nil {
		return usecase.TrainingConfig{}, err
	}
	b := features.SequenceBuilder{
		Mode:        mode,
		WindowSize:  cfg.Model.WindowSize,
		FutureSteps: cfg.Train.FutureSteps,
		MaxHistory:  cfg.Train.MaxHistory,
	}
	if err := b.Validate(); err != nil {
		return usecase.TrainingConfig{}, fmt.Errorf("train config: %w", err)
	}

	tc := forecast.DefaultTrainConfig()
	tc.Hidden = cfg.Model.HiddenSize
	if cfg.Train.Epochs > 0 {
		tc.Epochs = cfg.Train.Epochs
	}
	if cfg.Train.BatchSize > 0 {
		tc.BatchSize = cfg.Train.BatchSize
	}
	if cfg.Train.LearningRate > 0 {
		tc.LearningRate = cfg.Train.LearningRate
	}
	if cfg.Train.Patience > 0 {
		tc.Patience = cfg.Train.Patience
	}
	if cfg.Train.ClipNorm > 0 {
		tc.ClipNorm = cfg.Train.ClipNorm
	}
	if cfg.Train.SplitSeed != 0 {
		tc.SplitSeed = cfg.Train.SplitSeed
	}
	if cfg.Train.InitSeed != 0 {
		tc.InitSeed = cfg.Train.InitSeed
	}

	return usecase.TrainingConfig{
		Builder: b,
		Train:   tc,
		Clamp:   cfg.Model.Clamp,
		Resume:  cfg.Train.Resume,
	}, nil
}

// ProvideForecastUseCase creates the forecast use case.
func ProvideForecastUseCase(
	cfg *config.Config,
	training usecase.TrainingConfig,
	loader *internalrepo.Loader,
	c cache.Service,
	pub domrepo.ForecastPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ForecastUseCase {
	return usecase.NewForecastUseCase(usecase.ForecastConfig{
		ArtifactPath: cfg.Model.ArtifactPath,
		MaxSteps:     cfg.Model.MaxSteps,
		CacheTTL:     cfg.Cache.TTL,
	}, training, loader, c, pub, m, l)
}

// ProvideQueue creates the training job queue with the train job
// registered, or nil when the queue is disabled.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, uc *usecase.ForecastUseCase, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(usecase.NewTrainJob(uc))
	return q
}

// ProvideTrainScheduler enqueues training runs, or is nil without a queue.
func ProvideTrainScheduler(q *queue.RedisQueue) *usecase.TrainScheduler {
	if q == nil {
		return nil
	}
	return usecase.NewTrainScheduler(q)
}

// ProvideRateLimiter returns the per-client limiter for the predict routes.
func ProvideRateLimiter(cfg *config.Config) middleware.Allower {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// ProvideForecastHandler creates the HTTP handler with health checks for
// the source and, when enabled, Redis.
func ProvideForecastHandler(
	l *applogger.Logger,
	uc *usecase.ForecastUseCase,
	scheduler *usecase.TrainScheduler,
	limiter middleware.Allower,
	src domrepo.RecordSource,
	rc *cache.RedisCache,
) *api.ForecastEchoHandler {
	checks := map[string]api.HealthCheck{"source": src.Health}
	if rc != nil {
		checks["redis"] = rc.Ping
	}
	return api.NewForecastEchoHandler(l, uc, scheduler, limiter, checks)
}

// ProvideApp creates the application server and attaches the log collector
// to the Kafka producer when both are enabled.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	uc *usecase.ForecastUseCase,
	src domrepo.RecordSource,
	c cache.Service,
	rc *cache.RedisCache,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	h *api.ForecastEchoHandler,
) *server.App {
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        "fincast",
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.Threshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, l, server.Deps{
		UseCase:  uc,
		Source:   src,
		Cache:    c,
		Redis:    rc,
		Queue:    q,
		Producer: producer,
		Handlers: []xhttp.Handler{h},
	})
}
