package di

import (
	"context"
	"fmt"
	"time"

	"PulseDeck/internal/dispatch"
	drepo "PulseDeck/internal/domain/repository"
	"PulseDeck/internal/handler/api"
	mid "PulseDeck/internal/middleware"
	internalrepo "PulseDeck/internal/repository"
	icache "PulseDeck/internal/service/cache"
	"PulseDeck/internal/service/feed"
	"PulseDeck/internal/service/ratelimit"
	"PulseDeck/internal/service/snapshot"
	"PulseDeck/internal/services/classify"
	"PulseDeck/internal/usecase"
	pkgch "PulseDeck/pkg/clickhouse"
	"PulseDeck/pkg/config"
	pkgkafka "PulseDeck/pkg/kafka"
	applogger "PulseDeck/pkg/logger"
	"PulseDeck/pkg/metrics"
	"PulseDeck/pkg/server"
)

// ProvideLogger creates the application logger from the environment.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates the ClickHouse client and initializes
// the outcome mirror schema. Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".signal_outcomes (" +
			"event_id String, signal_id String, instrument String, direction String, " +
			"outcome String, pl_pct Float64, pattern_key String, confidence Float64, ts DateTime" +
			") ENGINE=MergeTree ORDER BY (instrument, ts)",
		"CREATE TABLE IF NOT EXISTS " + db + ".pattern_records (" +
			"last_seen DateTime, pattern_key String, descriptor String, " +
			"consecutive_losses UInt32, total_attempts UInt32, blocked UInt8" +
			") ENGINE=ReplacingMergeTree(last_seen) ORDER BY pattern_key",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideSignalMirror creates the ClickHouse outcome mirror, or nil when
// ClickHouse is disabled.
func ProvideSignalMirror(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) drepo.SignalMirror {
	if client == nil {
		return nil
	}
	db := cfg.ClickHouse.Database
	m := internalrepo.NewClickHouseMirror(client.DB(), db+".signal_outcomes", db+".pattern_records")
	if cm, ok := m.(interface{ SetLogger(*applogger.Logger) }); ok {
		cm.SetLogger(l)
	}
	return m
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideOutcomePublisher creates the Kafka outcome publisher, or nil
// when no producer is available.
func ProvideOutcomePublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.OutcomePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaOutcomePublisher(producer, cfg.Kafka.OutcomeTopic)
}

// ProvideDispatcher creates the outcome dispatcher with whatever
// downstream subscribers the configuration enables.
func ProvideDispatcher(
	cfg *config.Config,
	m drepo.Metrics,
	l *applogger.Logger,
	pub drepo.OutcomePublisher,
	mirror drepo.SignalMirror,
	ledger *usecase.AntiLossLedger,
) *dispatch.Dispatcher {
	var subs []dispatch.Subscriber
	if pub != nil {
		subs = append(subs, internalrepo.NewPublisherSubscriber(pub))
	}
	if mirror != nil {
		subs = append(subs, internalrepo.NewMirrorSubscriber(mirror).WithPatternSource(ledger))
	}
	if cfg.Dispatch.WebhookURL != "" {
		subs = append(subs, internalrepo.NewWebhookSubscriber(cfg.Dispatch.WebhookURL))
	}
	return dispatch.New(dispatch.Config{
		QueueSize:  cfg.Dispatch.QueueSize,
		RetryLimit: cfg.Dispatch.RetryLimit,
		RetryDelay: cfg.Dispatch.RetryDelay,
	}, m, l, subs...)
}

// ProvideLedger creates the anti-loss ledger.
func ProvideLedger(cfg *config.Config) *usecase.AntiLossLedger {
	return usecase.NewAntiLossLedger(usecase.LedgerConfig{
		BlockThreshold:    cfg.Ledger.BlockThreshold,
		HighRiskThreshold: cfg.Ledger.HighRiskThreshold,
		HighRiskPenalty:   cfg.Ledger.HighRiskPenalty,
		PatternExpiry:     cfg.Ledger.PatternExpiry,
	})
}

// ProvideRegistry creates the signal registry backed by the ledger, with
// the dispatcher as its outcome sink.
func ProvideRegistry(
	cfg *config.Config,
	ledger *usecase.AntiLossLedger,
	d *dispatch.Dispatcher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.SignalRegistry {
	return usecase.NewSignalRegistry(usecase.RegistryConfig{
		Thresholds: classify.Thresholds{
			Win:  cfg.Evaluation.WinThreshold,
			Loss: cfg.Evaluation.LossThreshold,
		},
		HistorySize:    cfg.Evaluation.HistorySize,
		DefaultHorizon: cfg.Evaluation.DefaultHorizon,
		DeadlineGrace:  cfg.Evaluation.DeadlineGrace,
	}, ledger, d, m, l)
}

// ProvideBarPipeline creates the bar intake pipeline feeding the registry.
func ProvideBarPipeline(registry *usecase.SignalRegistry, m drepo.Metrics) *mid.BarPipeline {
	return mid.NewBarPipeline(registry, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideFeedStream creates the WebSocket candle stream.
func ProvideFeedStream(cfg *config.Config) drepo.BarStream {
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Instruments,
		cfg.Feed.Granularity,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideBarCollector creates the feed collector use case.
func ProvideBarCollector(stream drepo.BarStream, m drepo.Metrics, pipe *mid.BarPipeline) *usecase.BarCollector {
	return usecase.NewBarCollector(stream, m, pipe)
}

// ProvideKafkaConsumer creates a Kafka consumer when the bar feed comes
// from a topic instead of the WebSocket stream.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Feed.Type != "kafka" || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaBarsHandler registers the handler for the bars topic.
func ProvideKafkaBarsHandler(pipe *mid.BarPipeline, m drepo.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, pipe, m)
}

// ProvideSnapshotMirror creates the learning snapshot mirror, backed by
// Redis when enabled and an in-process TTL cache otherwise.
func ProvideSnapshotMirror(cfg *config.Config, ledger *usecase.AntiLossLedger, l *applogger.Logger) *snapshot.Mirror {
	var cache icache.BytesCache
	if cfg.Redis.Enabled {
		cache = icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		cache = icache.NewTTLCache()
	}
	return snapshot.NewMirror(cache, ledger, cfg.Learning.CacheTTL, l)
}

// ProvideLearning creates the continuous learning aggregator.
func ProvideLearning(
	registry *usecase.SignalRegistry,
	cfg *config.Config,
	l *applogger.Logger,
	mirror *snapshot.Mirror,
) *usecase.LearningAggregator {
	return usecase.NewLearningAggregator(registry, cfg.Learning.Interval, l, mirror)
}

// ProvideHandler creates the HTTP handler for the signal API.
func ProvideHandler(
	l *applogger.Logger,
	registry *usecase.SignalRegistry,
	ledger *usecase.AntiLossLedger,
	learning *usecase.LearningAggregator,
	pipe *mid.BarPipeline,
	mirror drepo.SignalMirror,
	cfg *config.Config,
) *api.SignalsEchoHandler {
	return api.NewSignalsEchoHandler(
		l, registry, ledger, learning, pipe, mirror,
		ratelimit.New(), cfg.RateLimit.RegistrationsPerMinute,
	)
}

// producerLogSink adapts the Kafka producer to the log collector.
type producerLogSink struct {
	producer *pkgkafka.Producer
}

func (s producerLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	registry *usecase.SignalRegistry,
	pipe *mid.BarPipeline,
	d *dispatch.Dispatcher,
	learning *usecase.LearningAggregator,
	collector *usecase.BarCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	pub drepo.OutcomePublisher,
	handler *api.SignalsEchoHandler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.TracingHook{})
	}
	if producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producerLogSink{producer: producer},
		})
	}
	app := server.New(cfg, l, registry, pipe, d, learning, collector, consumer, kh, chClient)
	app.SetHTTPHandler(handler)
	if pub != nil {
		app.SetPublisher(pub)
	}
	return app
}
