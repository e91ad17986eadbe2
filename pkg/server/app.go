package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PulseDeck/internal/dispatch"
	mid "PulseDeck/internal/middleware"
	"PulseDeck/internal/usecase"
	pkgch "PulseDeck/pkg/clickhouse"
	"PulseDeck/pkg/config"
	xhttp "PulseDeck/pkg/http"
	pkgkafka "PulseDeck/pkg/kafka"
	applogger "PulseDeck/pkg/logger"
)

// App encapsulates the entire application lifecycle: the bar feed, the
// evaluation pipeline, the outcome dispatcher, the learning loop and the
// HTTP surface.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	registry   *usecase.SignalRegistry
	pipeline   *mid.BarPipeline
	dispatcher *dispatch.Dispatcher
	learning   *usecase.LearningAggregator

	collector *usecase.BarCollector // websocket feed, nil when feed.type=kafka
	consumer  *pkgkafka.Consumer    // kafka feed, nil when feed.type=websocket
	kh        pkgkafka.MessageHandler

	chClient  *pkgch.Client
	publisher interface{ Close() error } // kafka outcome publisher, nil when disabled

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	registry *usecase.SignalRegistry,
	pipeline *mid.BarPipeline,
	dispatcher *dispatch.Dispatcher,
	learning *usecase.LearningAggregator,
	collector *usecase.BarCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		learning:   learning,
		collector:  collector,
		consumer:   consumer,
		kh:         kh,
		chClient:   chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetPublisher hands the app an outcome publisher to close on shutdown.
func (a *App) SetPublisher(p interface{ Close() error }) { a.publisher = p }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := a.logger

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		xhttp.WithLogger(l),
	)

	// Outcome fan-out must be running before the first bar can decide a signal.
	a.dispatcher.Start(ctx)
	l.Info("dispatcher started")

	a.pipeline.Start(ctx)

	switch a.cfg.Feed.Type {
	case "kafka":
		if a.consumer != nil && a.kh != nil {
			a.consumer.RegisterHandler(a.kh)
			go func() {
				if err := a.consumer.Start(); err != nil {
					l.Error("kafka consumer error", applogger.Error(err))
				}
			}()
			l.Info("kafka feed started", applogger.String("topic", a.kh.Topic()))
		}
	default:
		if a.collector != nil {
			go func() {
				if err := a.collector.Start(ctx); err != nil {
					l.Error("feed collector error", applogger.Error(err))
				}
			}()
			l.Info("websocket feed started", applogger.Strings("instruments", a.cfg.Feed.Instruments))
		}
	}

	// Timeout sweeps: expiry is otherwise lazy, driven by incoming bars.
	go a.sweepLoop(ctx)

	a.learning.Start(ctx)
	l.Info("learning aggregator started", applogger.Duration("interval", a.cfg.Learning.Interval))

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func (a *App) sweepLoop(ctx context.Context) {
	interval := a.cfg.Evaluation.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.registry.SweepTimeouts(time.Now()); n > 0 {
				a.logger.Debug("timeout sweep", applogger.Int("expired", n))
			}
		}
	}
}

// shutdown stops intake first, then drains decisions outward.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("feed collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.pipeline.Stop()
	a.learning.Stop()

	// Drains queued outcome events before subscribers lose their clients.
	a.dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
