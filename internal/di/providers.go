package di

import (
	"context"
	"fmt"

	"KeyZones/internal/domain/repository"
	"KeyZones/internal/handler/api"
	"KeyZones/internal/handler/ws"
	internalrepo "KeyZones/internal/repository"
	"KeyZones/internal/services/detector"
	"KeyZones/internal/usecase"
	"KeyZones/pkg/cache"
	pkgch "KeyZones/pkg/clickhouse"
	"KeyZones/pkg/config"
	xhttp "KeyZones/pkg/http"
	pkgkafka "KeyZones/pkg/kafka"
	applogger "KeyZones/pkg/logger"
	"KeyZones/pkg/metrics"
	"KeyZones/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. Error and warn entries are
// shipped to the log topic when Kafka is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			Service:   "keyzones",
			Topic:     cfg.Kafka.LogTopic,
			Publisher: producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideCache backs the sequencer and snapshots with memory or Redis.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Sequencer.Backend != "redis" {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

func ProvideSequencer(c cache.Service) repository.Sequencer {
	return internalrepo.NewCacheSequencer(c)
}

func ProvideSnapshotStore(c cache.Service) *internalrepo.CacheSnapshotStore {
	return internalrepo.NewCacheSnapshotStore(c)
}

func ProvideArtifactStore(cfg *config.Config, l *applogger.Logger) *internalrepo.FSArtifactStore {
	return internalrepo.NewFSArtifactStore(cfg.KeyZones.ScratchDir(), l)
}

func ProvideCandleSource(cfg *config.Config) *internalrepo.FSCandleSource {
	return internalrepo.NewFSCandleSource(cfg.KeyZones.DataDir())
}

// ProvideDetector creates the process-backed zone detector.
func ProvideDetector(
	cfg *config.Config,
	candles *internalrepo.FSCandleSource,
	store *internalrepo.FSArtifactStore,
	l *applogger.Logger,
	m repository.Metrics,
) *detector.ProcessDetector {
	kz := cfg.KeyZones
	return detector.NewProcessDetector(kz.Interpreter, kz.ScriptFile(), candles, store,
		detector.WithTimeout(kz.DetectorTimeout),
		detector.WithMergeStderr(kz.MergeStderr),
		detector.WithPreflight(kz.PreflightCandles),
		detector.WithDateLayout(kz.DateLayout),
		detector.WithLogger(l),
		detector.WithMetrics(m),
	)
}

// ProvideOrchestrator creates the batch orchestrator.
func ProvideOrchestrator(
	cfg *config.Config,
	store *internalrepo.FSArtifactStore,
	det *detector.ProcessDetector,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.ZoneOrchestrator {
	kz := cfg.KeyZones
	return usecase.NewZoneOrchestrator(store, det,
		usecase.WithWorkers(kz.Workers),
		usecase.WithDateLayout(kz.DateLayout),
		usecase.WithPercents(kz.ZoneSizePercent, kz.MergeDistancePercent),
		usecase.WithOrchestratorLogger(l),
		usecase.WithOrchestratorMetrics(m),
	)
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(ws.WithLogger(l))
}

// ProvideCoordinator creates the refresh coordinator and registers every
// result sink: the WebSocket hub, the cache snapshot and, with Kafka, the
// batch event topic.
func ProvideCoordinator(
	cfg *config.Config,
	orch *usecase.ZoneOrchestrator,
	seq repository.Sequencer,
	store *internalrepo.FSArtifactStore,
	hub *ws.Hub,
	snaps *internalrepo.CacheSnapshotStore,
	producer *pkgkafka.Producer,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.RefreshCoordinator {
	publishers := []repository.ResultPublisher{hub, snaps}
	if producer != nil {
		publishers = append(publishers, internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.EventsTopic, l))
	}
	c := usecase.NewRefreshCoordinator(orch, seq, store,
		usecase.WithPublishers(publishers...),
		usecase.WithClearOnClose(cfg.KeyZones.ClearOnShutdown),
		usecase.WithCoordinatorLogger(l),
		usecase.WithCoordinatorMetrics(m),
	)
	hub.SetSnapshot(c.Latest)
	return c
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(context.Background(),
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCandleSync creates the candle export use case, or nil without ClickHouse.
func ProvideCandleSync(
	cfg *config.Config,
	client *pkgch.Client,
	candles *internalrepo.FSCandleSource,
	l *applogger.Logger,
) *usecase.CandleSync {
	if client == nil {
		return nil
	}
	store := internalrepo.NewCHCandleStore(client, cfg.ClickHouse.CandlesTable)
	store.SetLogger(l)
	return usecase.NewCandleSync(store, internalrepo.NewCSVCandleWriter(candles), internalrepo.Symbol, l)
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRefreshHandler handles remote refresh commands.
func ProvideRefreshHandler(cfg *config.Config, c *usecase.RefreshCoordinator, m repository.Metrics, l *applogger.Logger) pkgkafka.MessageHandler {
	return usecase.NewRefreshRequestHandler(cfg.Kafka.RefreshTopic, c, m, l)
}

// ProvideZonesHandler creates the HTTP API handler.
func ProvideZonesHandler(
	cfg *config.Config,
	l *applogger.Logger,
	c *usecase.RefreshCoordinator,
	store *internalrepo.FSArtifactStore,
	snaps *internalrepo.CacheSnapshotStore,
	client *pkgch.Client,
) *api.ZonesEchoHandler {
	opts := []api.Option{
		api.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.WithSnapshots(snaps),
		api.WithHealthCheck("artifact_store", store.Ensure),
	}
	if client != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", client.Health))
	}
	return api.NewZonesEchoHandler(l, c, store, opts...)
}

// ProvideHTTPServer creates the Echo server with every route registered.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, zones *api.ZonesEchoHandler, hub *ws.Hub) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{zones, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	c *usecase.RefreshCoordinator,
	hub *ws.Hub,
	cs cache.Service,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	producer *pkgkafka.Producer,
	client *pkgch.Client,
) *server.App {
	if consumer == nil {
		kh = nil
	}
	return server.New(cfg, l, httpServer, c, hub, cs, consumer, kh, producer, client)
}

// Toolkit bundles what the one-shot CLI commands need.
type Toolkit struct {
	Config       *config.Config
	Logger       *applogger.Logger
	Store        *internalrepo.FSArtifactStore
	Orchestrator *usecase.ZoneOrchestrator
	CandleSync   *usecase.CandleSync
	ClickHouse   *pkgch.Client
	Producer     *pkgkafka.Producer
}

// Close releases the clients opened for the toolkit.
func (t *Toolkit) Close() {
	t.Logger.RemoveCollector()
	if t.Producer != nil {
		_ = t.Producer.Close()
	}
	if t.ClickHouse != nil {
		_ = t.ClickHouse.Close()
	}
}
