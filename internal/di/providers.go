package di

import (
	"context"
	"fmt"
	"time"

	"RatePulse/internal/domain/repository"
	"RatePulse/internal/engine"
	"RatePulse/internal/handler/api"
	"RatePulse/internal/hub"
	"RatePulse/internal/monitor"
	"RatePulse/internal/ratestore"
	"RatePulse/internal/registry"
	internalrepo "RatePulse/internal/repository"
	"RatePulse/internal/source"
	pkgch "RatePulse/pkg/clickhouse"
	"RatePulse/pkg/config"
	pkgkafka "RatePulse/pkg/kafka"
	applogger "RatePulse/pkg/logger"
	"RatePulse/pkg/metrics"
	"RatePulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level, format, output := cfg.Log.Level, cfg.Log.Format, cfg.Log.Output
	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRateStore creates the versioned in-memory rate store.
func ProvideRateStore() *ratestore.Store {
	return ratestore.New()
}

// ProvideMonitor creates the alert monitor. Staleness defaults to five
// refresh intervals when not set explicitly.
func ProvideMonitor(cfg *config.Config) *monitor.Monitor {
	maxAge := cfg.Engine.StaleAfter
	if maxAge <= 0 {
		if iv := cfg.Engine.RefreshInterval; iv > 0 {
			maxAge = 5 * iv
		} else {
			maxAge = 150 * time.Second
		}
	}
	return monitor.New(maxAge)
}

// ProvideRegistry creates the subscription registry.
func ProvideRegistry() *registry.Registry {
	return registry.New()
}

// ProvideSources builds one adapter per configured provider category.
func ProvideSources(cfg *config.Config) []repository.RateSource {
	var out []repository.RateSource
	p := cfg.Providers
	if p.Forex.BaseURL != "" {
		out = append(out, source.NewForexSource("forex-primary", p.Forex.BaseURL, p.Forex.Timeout))
	}
	if p.Crypto.BaseURL != "" {
		out = append(out, source.NewCryptoSource("crypto-primary", p.Crypto.BaseURL, p.Crypto.APIKey, nil, p.Crypto.Timeout))
	}
	if p.Commodities.BaseURL != "" {
		out = append(out, source.NewCommoditySource("commodities-primary", p.Commodities.BaseURL, p.Commodities.AccessKey, p.Commodities.Timeout))
	}
	if p.Yields.BaseURL != "" {
		out = append(out, source.NewYieldSource("yields-primary", p.Yields.BaseURL, p.Yields.APIKey, nil, p.Yields.Timeout))
	}
	return out
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// history sink is disabled.
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

	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS ratepulse"}, internalrepo.HistorySchema...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when the audit
// stream is disabled.
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

// ProvideConfigStore creates the Redis-backed config store, or nil.
func ProvideConfigStore(cfg *config.Config, log *applogger.Logger) repository.ConfigStore {
	if !cfg.Redis.Enabled {
		return nil
	}
	store := internalrepo.NewRedisConfigStore(internalrepo.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store.SetLogger(log)
	return store
}

// ProvideHistorySink creates the ClickHouse history sink, or nil.
func ProvideHistorySink(chClient *pkgch.Client, log *applogger.Logger) repository.HistorySink {
	if chClient == nil {
		return nil
	}
	sink := internalrepo.NewCHHistory(chClient)
	sink.SetLogger(log)
	return sink
}

// ProvideAuditPublisher creates the Kafka audit publisher, or nil.
func ProvideAuditPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaAuditPublisher(producer, cfg.Kafka.Topic)
}

// ProvideEngine assembles the rate engine from configuration.
func ProvideEngine(
	cfg *config.Config,
	store *ratestore.Store,
	mon *monitor.Monitor,
	sources []repository.RateSource,
	m repository.Metrics,
	log *applogger.Logger,
	cfgStore repository.ConfigStore,
	history repository.HistorySink,
	audit repository.EventPublisher,
) *engine.Engine {
	ec := engine.Config{
		RefreshInterval:   cfg.Engine.RefreshInterval,
		SweepInterval:     cfg.Engine.SweepInterval,
		RequestTimeout:    cfg.Engine.RequestTimeout,
		DefaultSpread:     cfg.Engine.DefaultSpread,
		MinSpread:         cfg.Engine.MinSpread,
		MaxSpread:         cfg.Engine.MaxSpread,
		SpreadTolerance:   cfg.Engine.SpreadTolerance,
		FailureAlertAfter: cfg.Engine.FailureAlertAfter,
		Priority:          cfg.Engine.Priority,
	}
	for _, p := range cfg.Engine.Pairs {
		ec.Pairs = append(ec.Pairs, engine.PairConfig{Symbol: p.Symbol, Category: p.Category})
	}

	var opts []engine.Option
	if cfgStore != nil {
		opts = append(opts, engine.WithConfigStore(cfgStore))
	}
	if history != nil {
		opts = append(opts, engine.WithHistory(history))
	}
	if audit != nil {
		opts = append(opts, engine.WithAuditPublisher(audit))
	}
	return engine.New(ec, store, mon, sources, m, log, opts...)
}

// ProvideHub assembles the broadcast hub around the engine's event feed.
func ProvideHub(
	cfg *config.Config,
	reg *registry.Registry,
	eng *engine.Engine,
	m repository.Metrics,
	log *applogger.Logger,
) *hub.Hub {
	return hub.New(hub.Config{
		HeartbeatInterval: cfg.Hub.HeartbeatInterval,
		BatchWindow:       cfg.Hub.BatchWindow,
		QueueSize:         cfg.Hub.QueueSize,
		MaxOverflow:       cfg.Hub.MaxOverflow,
		InboundRate:       cfg.Hub.InboundRate,
		InboundBurst:      cfg.Hub.InboundBurst,
	}, reg, eng, m, log)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	eng *engine.Engine,
	h *hub.Hub,
	cfgStore repository.ConfigStore,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	app := server.New(cfg, log, eng, h, cfgStore, chClient, producer)

	// Aggregated logs land in an in-memory ring served by the debug endpoint.
	buf := api.NewLogBuffer(500)
	log.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          "ratepulse.logs",
		Publisher:      buf,
	})
	app.SetLogBuffer(buf)
	return app
}
