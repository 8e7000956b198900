package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/buildharbor/signing-adapter/internal/api"
	"github.com/buildharbor/signing-adapter/internal/credstore"
	"github.com/buildharbor/signing-adapter/internal/lifecycle"
	"github.com/buildharbor/signing-adapter/internal/portal"
	"github.com/buildharbor/signing-adapter/internal/publishapi"
	"github.com/buildharbor/signing-adapter/internal/publisher"
	"github.com/buildharbor/signing-adapter/internal/rabbitmq"
	"github.com/buildharbor/signing-adapter/internal/rate"
	"github.com/buildharbor/signing-adapter/internal/run"
	"github.com/buildharbor/signing-adapter/internal/scheduler"
	internalsecrets "github.com/buildharbor/signing-adapter/internal/secrets"
	"github.com/buildharbor/signing-adapter/internal/store"
	"github.com/buildharbor/signing-adapter/pkg/config"
	"github.com/buildharbor/signing-adapter/pkg/logger"
	"github.com/buildharbor/signing-adapter/pkg/secrets"
	"github.com/buildharbor/signing-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()
	cfg.ServiceName = "signing-adapter"

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [signing-adapter]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- AWS Secrets Manager provider ---
	awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
	if err != nil {
		logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
	}

	// --- Per-client portal account resolver (secrets cached in-memory) ---
	accountCache := secrets.NewCache[portal.Account](cfg.CacheTTL)
	stopCleaner := make(chan struct{})
	go accountCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

	resolver := internalsecrets.NewAWSResolver(
		logg.Desugar(),
		cfg.Env,
		"portal",
		awsProvider,
		accountCache,
	)

	// --- Discover configured clients ---
	clients, err := resolver.DiscoverClients(ctx)
	if err != nil {
		logg.Warnw("failed to discover clients from AWS Secrets Manager", "error", err)
	} else {
		logg.Infow("discovered signing clients", "count", len(clients), "clients", clients)
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.OutboundSubject, "SIGNING_EVENTS")
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 10,
		Burst:             20,
		Cooldown:          1 * time.Second,
	})

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Remote service clients ---
	portalClient := portal.NewClient(logg.Desugar(), rateMgr, cfg.PortalAPIURL)
	credClient := credstore.NewClient(logg.Desugar(), rateMgr, cfg.CredentialAPIURL)
	publishClient := publishapi.NewClient(logg.Desugar(), rateMgr, cfg.PublishAPIURL)
	schedClient := scheduler.NewClient(logg.Desugar(), rateMgr, cfg.SchedulerAPIURL)

	// --- Credential lifecycle ---
	orchestrator := lifecycle.New(logg.Desugar(), credClient, portalClient)
	guard := scheduler.NewGuard(logg.Desugar(), schedClient)

	resolveAccount := func(ctx context.Context, clientID string) (portal.Account, error) {
		return resolver.Resolve(ctx, clientID, internalsecrets.ParsePortalAccount)
	}

	// --- Run sequencer ---
	sequencer := run.NewSequencer(
		logg.Desugar(),
		publishClient,
		guard,
		resolveAccount,
		portalClient,
		orchestrator,
		schedClient,
		st,
		pub,
		cfg.SnapshotTTL,
	)

	// --- RabbitMQ build request consumer ---
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, cfg.Provider, sequencer, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init RabbitMQ consumer", "error", err)
	}
	if err := consumer.Start(ctx); err != nil {
		logg.Fatalw("failed to start RabbitMQ consumer", "error", err)
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	buildHandler := api.NewBuildHandler(logg.Desugar(), sequencer, st)
	api.RegisterRoutes(app, nc, st, buildHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[signing-adapter] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"provider", cfg.Provider,
		"discovered_clients", len(clients))

	<-ctx.Done()
	logg.Info("shutting down [signing-adapter]...")

	close(stopCleaner)
	if err := consumer.Close(); err != nil {
		logg.Warnw("rabbitmq.close_failed", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
