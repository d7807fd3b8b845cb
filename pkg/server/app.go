package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	uc         *usecase.ForecastUseCase
	source     domrepo.RecordSource
	cache      cache.Service
	redis      *cache.RedisCache
	queue      *queue.RedisQueue
	producer   *pkgkafka.Producer
	httpServer *xhttp.Server
}

// Deps groups the components the App starts and stops.
type Deps struct {
	UseCase  *usecase.ForecastUseCase
	Source   domrepo.RecordSource
	Cache    cache.Service
	Redis    *cache.RedisCache
	Queue    *queue.RedisQueue
	Producer *pkgkafka.Producer
	Handlers []xhttp.Handler
}

// New creates a new App instance with all dependencies. Redis, Queue and
// Producer may be nil when disabled.
func New(cfg *config.Config, l *applogger.Logger, d Deps) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:      cfg,
		l:        l,
		uc:       d.UseCase,
		source:   d.Source,
		cache:    d.Cache,
		redis:    d.Redis,
		queue:    d.Queue,
		producer: d.Producer,
		httpServer: xhttp.NewServer(d.Handlers,
			xhttp.WithHost(cfg.Server.Host),
			xhttp.WithPort(cfg.Server.Port),
			xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
			xhttp.WithCORS(cfg.Server.CORS),
			xhttp.WithLogger(l),
		),
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.loadModel(ctx); err != nil {
		return err
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.l.Error("queue start error", applogger.Error(err))
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("fincast started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("source", a.source.Name()),
		applogger.String("cache", a.cfg.Cache.Mode),
		applogger.Bool("queue", a.queue != nil),
		applogger.Bool("kafka", a.producer != nil))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// loadModel installs the artifact before serving. With model.required off a
// missing artifact only warns and predict answers 503 until a reload or a
// training run installs one.
func (a *App) loadModel(ctx context.Context) error {
	info, err := a.uc.Reload(ctx)
	if err != nil {
		if a.cfg.ModelRequired() {
			a.l.Error("model artifact is required", applogger.String("path", a.cfg.Model.ArtifactPath), applogger.Error(err))
			return err
		}
		a.l.Warn("starting without a model", applogger.Error(err))
		return nil
	}
	a.l.Info("model loaded",
		applogger.String("path", info.Path),
		applogger.Int("window_size", info.WindowSize),
		applogger.Time("trained_at", info.TrainedAt))
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	// Workers finish their current job before the stores go away.
	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.l.Warn("queue stop error", applogger.Error(err))
		}
	}

	// The collector publishes through the producer, so it flushes first.
	a.l.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.l.Warn("redis close error", applogger.Error(err))
		}
	}
	if err := a.source.Close(); err != nil {
		a.l.Warn("source close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}
