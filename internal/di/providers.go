package di

import (
	"context"
	"fmt"
	"time"

	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/handler/api"
	internalrepo "MoodTreasury/internal/repository"
	"MoodTreasury/internal/service/chain"
	"MoodTreasury/internal/service/market"
	"MoodTreasury/internal/service/sentiment"
	"MoodTreasury/internal/services/risk"
	"MoodTreasury/internal/usecase"
	pkgch "MoodTreasury/pkg/clickhouse"
	"MoodTreasury/pkg/config"
	xhttp "MoodTreasury/pkg/http"
	pkgkafka "MoodTreasury/pkg/kafka"
	applogger "MoodTreasury/pkg/logger"
	"MoodTreasury/pkg/metrics"
	"MoodTreasury/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideStore creates the Redis durable store.
func ProvideStore(cfg *config.Config) (drepo.DurableStore, error) {
	store, err := internalrepo.NewRedisStore(
		internalrepo.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		internalrepo.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		internalrepo.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		internalrepo.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis store: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
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

// ProvideArtifactPublisher fans artifacts out to Kafka, or drops them when
// Kafka is disabled.
func ProvideArtifactPublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.ArtifactPublisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideClickHouseClient creates a ClickHouse client with the audit schema
// applied, or nil when ClickHouse is disabled.
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
	if err := client.InitSchema(ctx, internalrepo.AuditSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideAuditArchive archives to ClickHouse, or drops archive writes when
// ClickHouse is disabled.
func ProvideAuditArchive(client *pkgch.Client, cfg *config.Config, log *applogger.Logger) drepo.AuditArchive {
	if client == nil {
		return internalrepo.NoopAudit{}
	}
	audit := internalrepo.NewCHAudit(client, cfg.ClickHouse.Database)
	audit.SetLogger(log)
	return audit
}

// ProvideGate creates the risk gate.
func ProvideGate(store drepo.DurableStore, log *applogger.Logger, m drepo.Metrics, cfg *config.Config) *risk.Gate {
	return risk.NewGate(store, log, m, risk.Limits{
		MinTreasuryThreshold: cfg.Risk.MinTreasuryThreshold,
		MaxDailySpendPercent: cfg.Risk.MaxDailySpendPercent,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
	})
}

// ProvideMoodAggregator creates the mood aggregator.
func ProvideMoodAggregator(store drepo.DurableStore, log *applogger.Logger, m drepo.Metrics, cfg *config.Config) *usecase.MoodAggregator {
	return usecase.NewMoodAggregator(store, log, m, usecase.AggregatorConfig{
		HistoryCap:   cfg.Engine.ScoreHistoryCap,
		ShortWindow:  cfg.Engine.EMAShortWindow,
		MediumWindow: cfg.Engine.EMAMediumWindow,
		LongWindow:   cfg.Engine.EMALongWindow,
	})
}

// ProvideDecisionEngine creates the decision engine.
func ProvideDecisionEngine(gate *risk.Gate, store drepo.DurableStore, log *applogger.Logger, m drepo.Metrics, cfg *config.Config) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(gate, store, log, m, usecase.EngineConfig{
		HypeThreshold:    cfg.Engine.HypeThreshold,
		FudThreshold:     cfg.Engine.FudThreshold,
		MomentumPositive: cfg.Engine.MomentumPositive,
		MomentumNegative: cfg.Engine.MomentumNegative,
		BuybackK1:        cfg.Engine.BuybackK1,
		DCAFactor:        cfg.Engine.DCAFactor,
		MaxSlippage:      cfg.Engine.MaxSlippage,
		LiquidityFloor:   cfg.Engine.LiquidityFloor,
		PairHistoryCap:   cfg.Engine.PairHistoryCap,
	})
}

// ProvideChainClient creates the execution collaborator client.
func ProvideChainClient(cfg *config.Config) *chain.Client {
	return chain.New(cfg.Chain.BaseURL, cfg.Chain.Timeout)
}

// ProvideSentimentSource creates the sentiment batch source.
func ProvideSentimentSource(cfg *config.Config) drepo.SentimentSource {
	return sentiment.New(cfg.Sentiment.BaseURL, cfg.Sentiment.Timeout, cfg.Sentiment.BatchLimit)
}

// ProvideMarketClient creates the market stream client.
func ProvideMarketClient(cfg *config.Config, log *applogger.Logger) *market.Client {
	return market.New(cfg.Market.WebSocketURL, cfg.Market.ReconnectDelay, cfg.Market.PingInterval, log)
}

// ProvideExecutionTracker creates the execution tracker.
func ProvideExecutionTracker(
	chainClient *chain.Client,
	gate *risk.Gate,
	store drepo.DurableStore,
	pub drepo.ArtifactPublisher,
	audit drepo.AuditArchive,
	log *applogger.Logger,
	m drepo.Metrics,
) *usecase.ExecutionTracker {
	return usecase.NewExecutionTracker(chainClient, gate, store, pub, audit, log, m)
}

// ProvideRunner creates the periodic task runner.
func ProvideRunner(
	cfg *config.Config,
	sentimentSource drepo.SentimentSource,
	marketClient *market.Client,
	chainClient *chain.Client,
	agg *usecase.MoodAggregator,
	engine *usecase.DecisionEngine,
	tracker *usecase.ExecutionTracker,
	gate *risk.Gate,
	store drepo.DurableStore,
	pub drepo.ArtifactPublisher,
	audit drepo.AuditArchive,
	log *applogger.Logger,
	m drepo.Metrics,
) *usecase.Runner {
	return usecase.NewRunner(
		usecase.LoopConfig{
			DecisionInterval: cfg.Loops.DecisionInterval,
			DecisionBackoff:  cfg.Loops.DecisionBackoff,
			TreasuryInterval: cfg.Loops.TreasuryInterval,
			PollInterval:     cfg.Loops.PollInterval,
		},
		sentimentSource, marketClient, chainClient,
		agg, engine, tracker, gate,
		store, pub, audit, log, m,
	)
}

// ProvideOpsHandler creates the operational HTTP handler.
func ProvideOpsHandler(
	log *applogger.Logger,
	store drepo.DurableStore,
	gate *risk.Gate,
	tracker *usecase.ExecutionTracker,
	cfg *config.Config,
) xhttp.Handler {
	return api.NewOpsHandler(log, store, gate, tracker, cfg.Chain.GuardianToken)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	store drepo.DurableStore,
	producer *pkgkafka.Producer,
	pub drepo.ArtifactPublisher,
	audit drepo.AuditArchive,
	chClient *pkgch.Client,
	marketClient *market.Client,
	runner *usecase.Runner,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, store, producer, pub, audit, chClient, marketClient, runner, handler)
}
