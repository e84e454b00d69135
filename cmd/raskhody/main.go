package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"raskhody/internal/amqp"
	"raskhody/internal/backend"
	"raskhody/internal/bot"
	"raskhody/internal/cli"
	"raskhody/internal/config"
	apphttp "raskhody/internal/http"
	"raskhody/internal/log"
	"raskhody/internal/metrics"
	"raskhody/internal/telegram"
	"raskhody/internal/worker"
)

func main() {
	// Load .env file for local development (ignored when absent)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	cli.LogConfigWarnings(cfg, logger)

	logger.Info("Starting raskhody",
		log.FieldTransport, cfg.Transport,
		log.FieldBackend, cfg.DataBackend,
		"port", cfg.Port)

	if err := run(cfg, logger); err != nil {
		logger.Error("raskhody stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("raskhody stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	store, err := backend.Open(ctx, backendCfg, logger, m)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	handler := bot.NewHandler(store, logger, m)
	pool := worker.New(cfg.Workers, cfg.WorkerQueueSize, logger, m)

	serverOpts := apphttp.Options{
		Addr:           ":" + cfg.Port,
		Store:          store,
		Gatherer:       prometheus.DefaultGatherer,
		Metrics:        m,
		WebhookSecret:  cfg.WebhookSecret,
		RateLimit:      cfg.RateLimit,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
	}
	// Per-user data is only served behind the shared secret.
	if cfg.WebhookSecret != "" {
		serverOpts.Reader = store
	}

	// Consumes chat messages. The http transport needs none: the server
	// takes them on its webhook.
	var transport interface{ Run(context.Context) error }

	switch cfg.Transport {
	case "telegram":
		api, err := telegram.NewAPI(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("connect to telegram: %w", err)
		}
		dispatcher := bot.NewDispatcher(handler, telegram.NewSender(api), logger, m)
		transport = telegram.NewTransport(api, pool, dispatcher, cfg.TelegramPollTimeout, logger)

	case "amqp":
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPInboundQueue, cfg.AMQPReplyQueue)
		if err != nil {
			return fmt.Errorf("connect to amqp: %w", err)
		}
		defer client.Close()
		dispatcher := bot.NewDispatcher(handler, client, logger, m)
		transport = amqp.NewConsumer(client, pool, dispatcher, logger)

	case "http":
		serverOpts.Handler = handler
		serverOpts.Pool = pool
	}

	srv, err := apphttp.NewServer(serverOpts)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, cfg.ShutdownTimeout) })
	if transport != nil {
		g.Go(func() error { return transport.Run(gctx) })
	}

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

