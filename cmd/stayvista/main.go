package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/handlers/bookings"
	"stayvista/internal/app/handlers/reconcile"
	"stayvista/internal/app/handlers/reservations"
	roomhandlers "stayvista/internal/app/handlers/rooms"
	"stayvista/internal/app/middleware"
	appoutbox "stayvista/internal/app/outbox"
	"stayvista/internal/app/policies"
	"stayvista/internal/app/queries"
	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/rooms"
	"stayvista/internal/infra/broker/kafka"
	redisinfra "stayvista/internal/infra/cache/redis"
	"stayvista/internal/infra/config"
	"stayvista/internal/infra/db/gormdb"
	mongoinfra "stayvista/internal/infra/db/mongo"
	ginserver "stayvista/internal/infra/http/gin"
	"stayvista/internal/infra/inbox"
	"stayvista/internal/infra/obs"
	"stayvista/internal/infra/outbox"
	"stayvista/internal/infra/payments"
	"stayvista/internal/infra/security"
	"stayvista/internal/infra/storage/memory"
	s3infra "stayvista/internal/infra/storage/s3"
	"stayvista/internal/infra/tracing"
)

const (
	serviceName       = "stayvista"
	reconcileConsumer = "reconcile"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(os.Getenv("APP_ENV"))
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger = obs.NewLogger(cfg.Env)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stayvista stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stayvista stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.close(closeCtx); err != nil {
			logger.Warn("storage close failed", "error", err)
		}
	}()

	if err := loadRoomFixtures(ctx, store.rooms, cfg.RoomFixtures, cfg.PaymentCurrency, logger); err != nil {
		logger.Warn("room fixtures load failed", "error", err, "path", cfg.RoomFixtures)
	}

	guard, err := newKeyGuard(ctx, cfg, store.checks)
	if err != nil {
		return err
	}
	provider, err := newPaymentProvider(cfg)
	if err != nil {
		return err
	}
	metrics := obs.NewMetrics()

	coord := &reservation.Coordinator{
		Rooms:  store.rooms,
		Ledger: store.ledger,
		Payments: payments.NewGateway(provider, payments.Options{
			Timeout:       cfg.PaymentTimeout,
			StatusBackoff: cfg.PaymentStatusBackoff,
			Logger:        logger,
		}),
		Guard:         guard,
		Outbox:        store.outbox,
		Encoder:       appoutbox.JSONEventEncoder{IDGenerator: uuid.NewString},
		Logger:        logger,
		Metrics:       metrics,
		LedgerBackoff: cfg.LedgerRetryBackoff,
	}

	cmdBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	reservations.Register(cmdBus, coord, cfg.PaymentCurrency)
	roomhandlers.Register(cmdBus, queryBus, &roomhandlers.Handlers{Store: store.rooms, Logger: logger, DefaultCurrency: cfg.PaymentCurrency})
	bookings.Register(queryBus, &bookings.Handlers{Ledger: store.ledger, Logger: logger})

	guards := []middleware.Guard{middleware.Authorize(time.Now), middleware.Validate()}
	cmds := middleware.ChainCommands(cmdBus, middleware.LogCommands(logger), middleware.GuardCommands(guards...))
	qs := middleware.ChainQueries(queryBus, middleware.LogQueries(logger), middleware.GuardQueries(guards...))

	verifier := security.JWTVerifier{Secret: []byte(cfg.AuthSecret), Issuer: cfg.AuthIssuer, ClockSkew: cfg.AuthClockSkew}
	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: store.checks}, ginserver.Handlers{
		Reservation:    ginserver.ReservationHandler{Commands: cmds, Logger: logger},
		Room:           ginserver.RoomHandler{Commands: cmds, Queries: qs, Logger: logger},
		Booking:        ginserver.BookingHandler{Queries: qs, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
		RateLimit:      ginserver.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst).Middleware(),
		Metrics:        metrics,
	})

	sink, closeSink, err := newOutboxSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	worker := &outbox.Worker{
		Store:       store.outbox,
		Producer:    sink,
		Logger:      logger,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Source:      serviceName,
		Backoff:     cfg.RetryBackoff,
		Observe:     metrics.ObserveDelivery,
	}
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox worker stopped", "error", err)
		}
	}()

	if cfg.ReconcileEnabled {
		consumer, err := newReconcileConsumer(cfg, coord, store.inbox, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		topic := outbox.TopicFor(cfg.KafkaTopicPrefix, booking.CompensationFailed{}.EventName())
		go func() {
			if err := consumer.Run(ctx, []string{topic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reconcile consumer stopped", "error", err)
			}
		}()
		logger.Info("reconcile consumer started", "topic", topic, "group", cfg.KafkaGroupID)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting",
		"addr", cfg.HTTPAddr,
		"storage", cfg.StorageDriver,
		"payments", cfg.PaymentProvider,
		"outbox_sink", cfg.OutboxSink,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// outboxStore is written by the coordinator and drained by the worker.
type outboxStore interface {
	appoutbox.Outbox
	outbox.Queue
}

type storage struct {
	rooms  rooms.Store
	ledger booking.Ledger
	outbox outboxStore
	inbox  reconcile.Deduper
	checks map[string]func(context.Context) error
	close  func(context.Context) error
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		client, err := mongoinfra.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		roomStore, err := mongoinfra.NewRoomStore(ctx, client.DB)
		if err != nil {
			return nil, err
		}
		ledger, err := mongoinfra.NewBookingLedger(ctx, client.DB)
		if err != nil {
			return nil, err
		}
		box, err := outbox.NewStore(ctx, client.DB)
		if err != nil {
			return nil, err
		}
		dedupe, err := inbox.NewStore(ctx, client.DB, reconcileConsumer)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", cfg.StorageDriver, "database", cfg.MongoDB)
		return &storage{
			rooms:  roomStore,
			ledger: ledger,
			outbox: box,
			inbox:  dedupe,
			checks: map[string]func(context.Context) error{"mongo": client.Ping},
			close:  client.Close,
		}, nil
	case config.StoragePostgres, config.StorageSQLite:
		db, err := gormdb.Open(ctx, cfg.StorageDriver, cfg.SQLDSN)
		if err != nil {
			return nil, fmt.Errorf("sql: %w", err)
		}
		logger.Info("storage ready", "driver", cfg.StorageDriver)
		return &storage{
			rooms:  gormdb.NewRoomStore(db),
			ledger: gormdb.NewBookingLedger(db),
			outbox: gormdb.NewOutboxStore(db),
			inbox:  gormdb.NewInboxStore(db, reconcileConsumer),
			checks: map[string]func(context.Context) error{
				"sql": func(ctx context.Context) error { return gormdb.Ping(ctx, db) },
			},
			close: func(context.Context) error { return gormdb.Close(db) },
		}, nil
	default:
		logger.Warn("using in-memory storage; state is lost on restart")
		return &storage{
			rooms:  memory.NewRoomStore(),
			ledger: memory.NewBookingLedger(),
			outbox: memory.NewOutbox(),
			inbox:  memory.NewInbox(),
			checks: map[string]func(context.Context) error{},
			close:  func(context.Context) error { return nil },
		}, nil
	}
}

func newKeyGuard(ctx context.Context, cfg config.Config, checks map[string]func(context.Context) error) (policies.KeyGuard, error) {
	if cfg.RedisAddr == "" {
		return memory.NewKeyGuard(cfg.InflightTTL), nil
	}
	client, err := redisinfra.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return redisinfra.NewKeyGuard(client, cfg.InflightTTL), nil
}

func newPaymentProvider(cfg config.Config) (payments.Provider, error) {
	if cfg.PaymentProvider == config.ProviderStripe {
		return payments.NewStripeProvider(cfg.StripeSecretKey, payments.StripeOptions{BaseURL: cfg.StripeBaseURL})
	}
	return payments.NewFakeProvider(true), nil
}

func newOutboxSink(cfg config.Config, logger *slog.Logger) (outbox.Producer, func(), error) {
	switch cfg.OutboxSink {
	case config.SinkKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, serviceName, sarama.NewConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		return producer, func() {
			if err := producer.Close(); err != nil {
				logger.Warn("kafka producer close failed", "error", err)
			}
		}, nil
	case config.SinkS3:
		archive, err := s3infra.NewArchive(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("s3 archive: %w", err)
		}
		return archive, func() {}, nil
	default:
		return outbox.LogSink{Logger: logger}, func() {}, nil
	}
}

func newReconcileConsumer(cfg config.Config, retrier reconcile.Retrier, dedupe reconcile.Deduper, logger *slog.Logger) (*kafka.Consumer, error) {
	handler := &reconcile.CompensationHandler{Retrier: retrier, Inbox: dedupe, Logger: logger}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, sarama.NewConfig(), kafka.HandlerFunc(func(ctx context.Context, msg kafka.Message) error {
		return handler.HandleEvent(ctx, msg.Value)
	}))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.Logger = logger
	consumer.Backoff = cfg.RetryBackoff
	return consumer, nil
}
