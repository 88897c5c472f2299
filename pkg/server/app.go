package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/service/market"
	"MoodTreasury/internal/usecase"
	pkgch "MoodTreasury/pkg/clickhouse"
	"MoodTreasury/pkg/config"
	xhttp "MoodTreasury/pkg/http"
	pkgkafka "MoodTreasury/pkg/kafka"
	applogger "MoodTreasury/pkg/logger"
)

// App owns the process lifecycle: the market stream, the periodic runner,
// and the operational HTTP server, plus orderly teardown of every
// infrastructure client.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	store    drepo.DurableStore
	producer *pkgkafka.Producer
	pub      drepo.ArtifactPublisher
	audit    drepo.AuditArchive
	chClient *pkgch.Client
	market   *market.Client
	runner   *usecase.Runner
	handler  xhttp.Handler

	httpServer *xhttp.Server
}

// New creates an App with all collaborators injected. producer and chClient
// may be nil when the corresponding backend is disabled.
func New(
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
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		producer: producer,
		pub:      pub,
		audit:    audit,
		chClient: chClient,
		market:   marketClient,
		runner:   runner,
		handler:  handler,
	}
}

// kafkaLogPublisher adapts the Kafka producer to the log collector's
// publisher contract.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (p kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

// Run starts everything and blocks until a shutdown signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.producer != nil && a.cfg.Kafka.LogTopic != "" {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.LogTopic,
			Publisher:      kafkaLogPublisher{producer: a.producer},
		})
	}

	go a.market.Run(ctx)

	if err := a.runner.Start(ctx); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("app started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown stops ingress first, then the loops, then the clients. A failed
// step is logged and the rest of the teardown continues.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Warn("http shutdown error", applogger.Error(err))
		}
	}

	a.runner.Stop()

	if err := a.audit.Close(); err != nil {
		a.log.Warn("audit close error", applogger.Error(err))
	}
	if err := a.pub.Close(); err != nil {
		a.log.Warn("publisher close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close error", applogger.Error(err))
	}

	a.log.RemoveCollector()
	a.log.Info("shutdown complete")
	return nil
}
