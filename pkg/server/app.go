package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"KeyZones/internal/handler/ws"
	"KeyZones/internal/usecase"
	"KeyZones/pkg/cache"
	pkgch "KeyZones/pkg/clickhouse"
	"KeyZones/pkg/config"
	xhttp "KeyZones/pkg/http"
	pkgkafka "KeyZones/pkg/kafka"
	applogger "KeyZones/pkg/logger"
)

// App encapsulates the serve lifecycle: HTTP API, WebSocket hub, refresh
// coordinator and the optional Kafka and ClickHouse clients.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	httpServer  *xhttp.Server
	coordinator *usecase.RefreshCoordinator
	hub         *ws.Hub
	cache       cache.Service

	consumer *pkgkafka.Consumer
	kh       pkgkafka.MessageHandler
	producer *pkgkafka.Producer
	chClient *pkgch.Client
}

// New creates a new App instance with all dependencies. consumer, kh,
// producer and chClient may be nil when the integration is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	coordinator *usecase.RefreshCoordinator,
	hub *ws.Hub,
	c cache.Service,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:         cfg,
		l:           l,
		httpServer:  httpServer,
		coordinator: coordinator,
		hub:         hub,
		cache:       c,
		consumer:    consumer,
		kh:          kh,
		producer:    producer,
		chClient:    chClient,
	}
}

// Run starts the application and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return a.shutdown(fmt.Errorf("kafka consumer: %w", err))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return a.shutdown(err)
	}
	a.l.Info("keyzones started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("scratch", a.cfg.KeyZones.ScratchDir()),
		applogger.Bool("kafka", a.consumer != nil),
		applogger.Bool("clickhouse", a.chClient != nil),
	)

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(nil)
}

// shutdown stops intake first, then running batches, then clients.
func (a *App) shutdown(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	errs := []error{cause}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.hub.Close()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.coordinator.Close(ctx); err != nil {
		a.l.Error("coordinator close error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.producer != nil {
		// flush shipped logs while the producer is still open
		a.l.RemoveCollector()
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.l.Warn("cache close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
