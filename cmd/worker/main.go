package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	appdelivery "github.com/ahrav/mailcourier/internal/app/delivery"
	"github.com/ahrav/mailcourier/internal/config"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/internal/infra/dispatcher"
	"github.com/ahrav/mailcourier/internal/infra/eventbus/kafka"
	memguard "github.com/ahrav/mailcourier/internal/infra/idempotency/memory"
	redisguard "github.com/ahrav/mailcourier/internal/infra/idempotency/redis"
	deliverystore "github.com/ahrav/mailcourier/internal/infra/storage/delivery/postgres"
	"github.com/ahrav/mailcourier/internal/infra/templates"
	"github.com/ahrav/mailcourier/internal/infra/transport/devlog"
	"github.com/ahrav/mailcourier/internal/infra/transport/postmark"
	"github.com/ahrav/mailcourier/internal/infra/transport/smtp"
	"github.com/ahrav/mailcourier/pkg/common"
	"github.com/ahrav/mailcourier/pkg/common/logger"
	"github.com/ahrav/mailcourier/pkg/common/otel"
)

const serviceType = "worker"

func main() {
	_, _ = maxprocs.Set()

	configPath := flag.String("config", os.Getenv("MAILCOURIER_CONFIG"), "path to config file")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("MAILCOURIER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"pod":      os.Getenv("POD_NAME"),
		"app":      serviceType,
	}

	log = logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	prob := 1.0
	if v := os.Getenv("OTEL_SAMPLING_RATIO"); v != "" {
		prob, err = strconv.ParseFloat(v, 64)
		if err != nil {
			log.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
	}
	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      os.Getenv("OTEL_SERVICE_NAME"),
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Probability:      prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(os.Getenv("OTEL_SERVICE_NAME"))

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		log.Error(ctx, "failed to parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConns = 10
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		log.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "Migrations applied successfully. Starting worker...")

	mp := otel.GetMeterProvider()
	metricCollector, err := appdelivery.NewDeliveryMetrics(mp)
	if err != nil {
		log.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	recordStore := deliverystore.NewRecordStore(pool, tracer)
	deadLetters := deliverystore.NewDeadLetterSink(pool, tracer)

	guard, err := newIdempotencyGuard(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to create idempotency guard", "error", err)
		os.Exit(1)
	}

	transport, err := newTransport(cfg, log)
	if err != nil {
		log.Error(ctx, "failed to create transport", "error", err)
		os.Exit(1)
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		log.Error(ctx, "failed to parse templates", "error", err)
		os.Exit(1)
	}

	disp := dispatcher.New(tracer, log)
	handlers := appdelivery.NewHandlers(appdelivery.HandlerConfig{
		ServerBaseURL: cfg.Server.BaseURL,
		SupportEmail:  cfg.Server.SupportEmail,
	}, renderer, transport)
	for _, h := range handlers {
		disp.Register(ctx, h)
	}

	kafkaClient, err := kafka.NewClient(&kafka.Config{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		ClientID:    fmt.Sprintf("%s-%s", cfg.Kafka.ClientID, hostname),
		ServiceType: serviceType,
	})
	if err != nil {
		log.Error(ctx, "failed to create kafka client", "error", err)
		os.Exit(1)
	}
	defer kafkaClient.Close()

	eventBus, err := kafka.ConnectEventBus(&kafka.Config{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		ClientID:    fmt.Sprintf("%s-%s", cfg.Kafka.ClientID, hostname),
		ServiceType: serviceType,
	}, kafkaClient, deadLetters, log, metricCollector, tracer)
	if err != nil {
		log.Error(ctx, "failed to connect event bus", "error", err)
		os.Exit(1)
	}

	fallback := appdelivery.NewFallbackDeliverer(disp, guard, recordStore, log, tracer, metricCollector)
	workerPool := appdelivery.NewWorkerPool(
		eventBus,
		disp,
		guard,
		recordStore,
		deadLetters,
		fallback,
		cfg.Worker.MaxConcurrency,
		log,
		tracer,
		metricCollector,
		appdelivery.WithRetryPolicy(appdelivery.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Base:        time.Duration(cfg.Retry.BaseSeconds * float64(time.Second)),
			Multiplier:  cfg.Retry.Multiplier,
			MaxDelay:    time.Duration(cfg.Retry.MaxDelaySecs * float64(time.Second)),
		}),
	)

	log.Info(ctx, "Worker initialized")
	ready.Store(true)

	errCh := make(chan error, 1)
	go func() {
		if err := workerPool.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info(ctx, "Received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := eventBus.Close(); err != nil {
			log.Error(shutdownCtx, "Failed to close event bus", "error", err)
		}

	case err := <-errCh:
		log.Error(ctx, "Worker error", "error", err)
		os.Exit(1)
	}
}

// newIdempotencyGuard prefers the Redis guard so claims are shared across
// worker replicas; without Redis it falls back to the in-process guard,
// which only upholds the at-most-once send guarantee for a single instance.
func newIdempotencyGuard(ctx context.Context, cfg *config.Config, log *logger.Logger) (notification.IdempotencyGuard, error) {
	if cfg.Redis.URL == "" {
		log.Warn(ctx, "No Redis configured; idempotency claims are process-local")
		return memguard.NewGuard(), nil
	}
	client, err := redisguard.Connect(ctx, cfg.Redis.URL, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return redisguard.NewGuard(client, "", 0), nil
}

func newTransport(cfg *config.Config, log *logger.Logger) (notification.Transport, error) {
	switch cfg.Transport.Kind {
	case "postmark":
		return postmark.NewTransport(postmark.Config{
			ServerToken:  cfg.Transport.Postmark.ServerToken,
			AccountToken: cfg.Transport.Postmark.AccountToken,
			SenderEmail:  cfg.Transport.Postmark.SenderEmail,
			ReplyTo:      cfg.Transport.Postmark.ReplyTo,
		})
	case "smtp":
		return smtp.NewTransport(smtp.Config{
			Host:     cfg.Transport.SMTP.Host,
			Port:     cfg.Transport.SMTP.Port,
			Username: cfg.Transport.SMTP.Username,
			Password: cfg.Transport.SMTP.Password,
			From:     cfg.Transport.SMTP.From,
		})
	case "devlog":
		return devlog.NewTransport(log), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

// runMigrations uses golang-migrate to apply all up migrations from
// "db/migrations". It borrows a single connection from the pool and returns
// it once migrations complete.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("could not acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	const migrationsPath = "file://db/migrations"
	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}
