package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"MycoCast/internal/domain/repository"
	domsvc "MycoCast/internal/domain/service"
	"MycoCast/internal/handler/api"
	mid "MycoCast/internal/middleware"
	internalrepo "MycoCast/internal/repository"
	"MycoCast/internal/service/audit"
	icache "MycoCast/internal/service/cache"
	"MycoCast/internal/service/decision"
	"MycoCast/internal/service/posfeed"
	"MycoCast/internal/service/recorder"
	"MycoCast/internal/services/features"
	"MycoCast/internal/services/modeladapter"
	"MycoCast/internal/usecase"
	pkgcache "MycoCast/pkg/cache"
	pkgch "MycoCast/pkg/clickhouse"
	"MycoCast/pkg/config"
	xhttp "MycoCast/pkg/http"
	pkgkafka "MycoCast/pkg/kafka"
	applogger "MycoCast/pkg/logger"
	"MycoCast/pkg/metrics"
	"MycoCast/pkg/queue"
	"MycoCast/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the process-wide structured logger.
func ProvideLogger() (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS mycocast",
		`CREATE TABLE IF NOT EXISTS mycocast.historical_features (
            as_of DateTime,
            sku String,
            region String,
            mandi_price_per_kg Float64,
            wedding_density_30d Float64,
            panchang_fasting_flag UInt8,
            festival_flag UInt8,
            temp_max_c Float64,
            lag_1_sales Float64,
            lag_7_sales_mean Float64
        ) ENGINE=ReplacingMergeTree ORDER BY (sku, region, as_of)`,
		`CREATE TABLE IF NOT EXISTS mycocast.intraday_telemetry (
            ts DateTime,
            region String,
            mandi_price_per_kg Float64,
            pos_transactions_last_hour Int32,
            vehicle_delay_minutes Int32,
            weather_now_temp Float64,
            weather_now_humidity Float64,
            logistics_disruption_flag UInt8,
            intraday_baseline_pred Float64,
            intraday_actual_sales_partial Float64,
            intraday_event String
        ) ENGINE=MergeTree ORDER BY (region, ts)`,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTelemetryStorage creates ClickHouse storage repository.
func ProvideTelemetryStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+".intraday_telemetry")
}

// ProvideTelemetryPublisher creates Kafka publisher repository.
func ProvideTelemetryPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
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

// ProvideKafkaTelemetryHandler registers handler for the telemetry topic.
func ProvideKafkaTelemetryHandler(store repository.Storage, cache *decision.Cache, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaTelemetryHandler {
	return usecase.NewKafkaTelemetryHandler(cfg.Kafka.Topic, store, cache, metrics)
}

// ProvidePosFeedStream creates the POS feed WebSocket stream.
func ProvidePosFeedStream(cfg *config.Config) repository.TelemetryStream {
	return posfeed.New(
		cfg.PosFeed.APIKey,
		cfg.PosFeed.WebSocketURL,
		cfg.PosFeed.Regions,
		cfg.PosFeed.ReconnectDelay,
		cfg.PosFeed.PingInterval,
	)
}

// ProvideTelemetryProcessor creates the telemetry processor use case.
func ProvideTelemetryProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TelemetryProcessor {
	return usecase.NewTelemetryProcessor(
		pub,
		store,
		metrics,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideTelemetryCollector creates the telemetry collector use case.
func ProvideTelemetryCollector(
	stream repository.TelemetryStream,
	processor *usecase.TelemetryProcessor,
	metrics repository.Metrics,
) *usecase.TelemetryCollector {
	// Build middleware pipeline between WebSocket and backend
	pipe := mid.NewRealtimePipeline(processor, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTelemetryCollector(stream, processor, metrics, pipe)
}

// ProvideFeatureStore creates the ClickHouse-backed feature store behind a
// short-TTL read cache: memory-only by default, layered memory+Redis when
// Redis is configured.
func ProvideFeatureStore(chClient *pkgch.Client, l *applogger.Logger, cfg *config.Config) repository.FeatureStore {
	store := internalrepo.NewCHFeatureStore(chClient)
	store.SetLogger(l)

	var svc pkgcache.Service = pkgcache.NewMemoryCache()
	if cfg.Models.Redis.Enabled {
		host, port := splitHostPort(cfg.Models.Redis.Addr)
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(host),
			pkgcache.WithRedisPort(port),
			pkgcache.WithRedisPassword(cfg.Models.Redis.Password),
			pkgcache.WithRedisDB(cfg.Models.Redis.DB),
			pkgcache.WithRedisPrefix("mycocast:features"),
		)
		if err != nil {
			l.Warn("feature cache falling back to memory", applogger.Error(err))
		} else {
			svc = pkgcache.NewLayeredCache(rc)
		}
	}
	return internalrepo.NewCachedFeatureStore(store, svc)
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideAuditTrail creates the decision audit queue. Without Redis the
// trail is nil and auditing is disabled.
func ProvideAuditTrail(cfg *config.Config, l *applogger.Logger) *audit.Trail {
	if !cfg.Models.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Models.Redis.Addr,
		Password: cfg.Models.Redis.Password,
		DB:       cfg.Models.Redis.DB,
	})

	consumer := queue.NewRedisConsumer(l,
		&queue.QueueConfig{Workers: 1, RetryLimit: 3, RetryDelay: time.Second},
		client,
		[]queue.Job{audit.NewLogJob(l)},
		queue.WithKeyPrefix("mycocast:audit"),
	)
	if err := consumer.Start(); err != nil {
		l.Warn("audit consumer start failed", applogger.Error(err))
	}

	publisher := queue.NewRedisPublisher(l, client, queue.WithKeyPrefix("mycocast:audit"))
	return audit.NewTrail(publisher, l)
}

// ProvideResolver creates the feature resolver.
func ProvideResolver(store repository.FeatureStore, cfg *config.Config) *features.Resolver {
	return features.NewResolver(store, cfg.Pricing)
}

// ProvideRecorder creates the explainability recorder.
func ProvideRecorder(metrics repository.Metrics) *recorder.Recorder {
	return recorder.New(metrics)
}

// ProvideModelAdapters creates the four model-service clients.
func ProvideModelAdapters(cfg *config.Config, rec *recorder.Recorder) []domsvc.ModelAdapter {
	return []domsvc.ModelAdapter{
		modeladapter.NewHTTPB2BForecaster(cfg, rec),
		modeladapter.NewHTTPB2CForecaster(cfg, rec),
		modeladapter.NewHTTPElasticityModel(cfg, rec),
		modeladapter.NewHTTPIntradayModel(cfg, rec),
	}
}

// ProvideDecisionStore selects the bytes cache backing fused decisions.
func ProvideDecisionStore(cfg *config.Config) icache.BytesCache {
	if cfg.Models.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Models.Redis.Addr,
			Password: cfg.Models.Redis.Password,
			DB:       cfg.Models.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideDecisionCache creates the decision cache.
func ProvideDecisionCache(store icache.BytesCache, cfg *config.Config, metrics repository.Metrics) *decision.Cache {
	return decision.New(store, cfg.Models.DecisionTTL, metrics)
}

// ProvideFusionEngine creates the fusion engine.
func ProvideFusionEngine(
	resolver *features.Resolver,
	adapters []domsvc.ModelAdapter,
	cache *decision.Cache,
	rec *recorder.Recorder,
	metrics repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
	trail *audit.Trail,
) *usecase.FusionEngine {
	engine := usecase.NewFusionEngine(resolver, adapters, cache, rec, metrics, usecase.FusionConfig{
		FreshnessWindow: cfg.Models.FreshnessWindow,
	})
	engine.SetLogger(l)
	engine.SetAuditTrail(trail)
	return engine
}

// ProvideTelemetryQuery creates the telemetry read use case.
func ProvideTelemetryQuery(store repository.Storage) *usecase.TelemetryQueryUseCase {
	return usecase.NewTelemetryQueryUseCase(store)
}

// ProvideHTTPHandler creates the Echo decision handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	engine *usecase.FusionEngine,
	teleQ *usecase.TelemetryQueryUseCase,
	store repository.Storage,
) xhttp.Handler {
	h := api.NewDecideEchoHandler(l, engine, teleQ)
	h.SetStorage(store)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.TelemetryCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTelemetryHandler,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
) *server.App {
	// Attach hook to consumer: example NoopHook for now; can be replaced via config
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, collector, consumer, kh, chClient)
	app.SetHTTPHandler(httpHandler)
	// attach telemetry processor to app for closing resources via collector
	if collector != nil {
		app.TeleProc = collector.Processor()
	}
	return app
}
