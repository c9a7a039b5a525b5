package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	config "github.com/davicafu/shoplab/internal/config"
	mongoOutbox "github.com/davicafu/shoplab/internal/infra/db/mongodb"
	pgOutbox "github.com/davicafu/shoplab/internal/infra/db/postgres"
	infraEvents "github.com/davicafu/shoplab/internal/infra/events"
	infraHttp "github.com/davicafu/shoplab/internal/infra/http"
	orderApp "github.com/davicafu/shoplab/internal/order/application"
	orderDomain "github.com/davicafu/shoplab/internal/order/domain"
	orderEvents "github.com/davicafu/shoplab/internal/order/infra/inbound/events"
	orderHttp "github.com/davicafu/shoplab/internal/order/infra/inbound/http"
	orderAnalytics "github.com/davicafu/shoplab/internal/order/infra/outbound/analytics/clickhouse"
	orderCache "github.com/davicafu/shoplab/internal/order/infra/outbound/cache"
	orderRepoPg "github.com/davicafu/shoplab/internal/order/infra/outbound/db/postgre"
	orderRepoSqlite "github.com/davicafu/shoplab/internal/order/infra/outbound/db/sqlite"
	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	sharedEvents "github.com/davicafu/shoplab/internal/shared/domain/events"
	kafkaEvents "github.com/davicafu/shoplab/internal/shared/infra/events"
	platformDB "github.com/davicafu/shoplab/internal/shared/infra/platform/db"
	sqliteOutbox "github.com/davicafu/shoplab/internal/shared/infra/platform/db/sqlite"
	"github.com/davicafu/shoplab/internal/shared/infra/relayer"
	"github.com/davicafu/shoplab/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ---------------- Main ----------------
func main() {
	logger.Init()
	log := logger.Logger()
	defer log.Sync()

	// Cancelación ligada al apagado del proceso: el publisher termina su
	// lote en curso antes de salir.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	// ---------------- Stores ----------------
	// Con mongo el binario corre en modo relay: el outbox lo escriben otros
	// servicios y aquí solo viven el publisher y la consulta de dead-letter.
	var (
		db         *sql.DB
		outboxRepo sharedDomain.OutboxRepository
		uowWriter  platformDB.TxOutboxWriter
		orderRepo  orderDomain.OrderRepository
		relayOnly  bool
		err        error
	)

	switch cfg.StoreDriver {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())
		if err := client.Ping(ctx, nil); err != nil {
			log.Fatal("failed to ping MongoDB", zap.Error(err))
		}
		outboxRepo = mongoOutbox.NewOutboxRepoMongoDB(client, cfg.MongoDB, cfg.OutboxStaleTimeout)
		relayOnly = true
	case "postgres":
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open Postgres", zap.Error(err))
		}
		if err := pgOutbox.InitSchema(db); err != nil {
			log.Fatal("failed to initialize Postgres outbox schema", zap.Error(err))
		}
		if err := orderRepoPg.InitSchema(db); err != nil {
			log.Fatal("failed to initialize Postgres orders schema", zap.Error(err))
		}
		repo := pgOutbox.NewOutboxRepoPostgres(db, cfg.OutboxStaleTimeout)
		outboxRepo, uowWriter = repo, repo
		orderRepo = orderRepoPg.NewOrderRepoPostgres(db)
	default:
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open SQLite", zap.Error(err))
		}
		if err := sqliteOutbox.InitSchema(db); err != nil {
			log.Fatal("failed to initialize SQLite outbox schema", zap.Error(err))
		}
		if err := orderRepoSqlite.InitSchema(db); err != nil {
			log.Fatal("failed to initialize SQLite orders schema", zap.Error(err))
		}
		repo := sqliteOutbox.NewOutboxRepoSQLite(db, cfg.OutboxStaleTimeout)
		outboxRepo, uowWriter = repo, repo
		orderRepo = orderRepoSqlite.NewOrderRepoSQLite(db)
	}

	if db != nil {
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal("failed to ping database", zap.Error(err))
		}
	}

	eventBus := infraEvents.NewInMemoryEventBus()
	router := gin.Default()

	// ---------------- Contexto de pedidos ----------------
	if !relayOnly {
		uowFactory := platformDB.Factory(func() *platformDB.UnitOfWork {
			return platformDB.NewUnitOfWork(db, uowWriter, log)
		})

		var cacheInstance orderDomain.OrderCache
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
			cacheInstance = orderCache.NewInMemoryOrderCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		} else {
			cacheInstance = orderCache.NewRedisOrderCache(rdb, cfg.CacheTTL)
			log.Info("✅ Redis conectado, cache habilitado")
		}

		orderService := orderApp.NewOrderService(uowFactory, orderRepo, cacheInstance, log)

		invalidator := orderCache.NewInvalidator(cacheInstance)
		eventBus.Register(orderDomain.EventOrderPaid, "cache-invalidation", invalidator.Handle)
		eventBus.Register(orderDomain.EventOrderCancelled, "cache-invalidation", invalidator.Handle)

		if cfg.UseKafka {
			// Entrada: confirmaciones de pago de la pasarela.
			paymentReader := kafka.NewReader(kafka.ReaderConfig{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaTopicPayments,
				GroupID: cfg.KafkaGroupID,
			})
			defer paymentReader.Close()

			paymentConsumer := orderEvents.NewPaymentConsumer(orderService, log)
			infraEvents.NewConsumerAdapter(paymentReader, paymentConsumer, log).Start(ctx)
		}

		orderHandler := orderHttp.NewOrderHandler(orderService)
		orderHttp.RegisterOrderRoutes(router, orderHandler)
	}

	// ---------------- Handlers de salida ----------------
	if cfg.UseKafka {
		log.Info("🚀 Reenvío de eventos a Kafka habilitado")
		writer := kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopicOrder,
		})
		defer writer.Close()

		forwarder := kafkaEvents.NewKafkaForwarder(writer, log)
		eventBus.Register(orderDomain.EventOrderCreated, "kafka-forwarder", forwarder.Handle)
		eventBus.Register(orderDomain.EventOrderPaid, "kafka-forwarder", forwarder.Handle)
		eventBus.Register(orderDomain.EventOrderCancelled, "kafka-forwarder", forwarder.Handle)
	}

	if cfg.UseClickHouse {
		analytics, err := orderAnalytics.NewOrderAnalyticsRepo(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		if err := analytics.InitSchema(); err != nil {
			log.Fatal("failed to init ClickHouse schema", zap.Error(err))
		}
		log.Info("📊 Analítica de pedidos en ClickHouse habilitada")
		eventBus.Register(orderDomain.EventOrderCreated, "order-analytics", analytics.Handle)
		eventBus.Register(orderDomain.EventOrderPaid, "order-analytics", analytics.Handle)
		eventBus.Register(orderDomain.EventOrderCancelled, "order-analytics", analytics.Handle)

		analyticsHandler := infraHttp.NewAnalyticsHandler(analytics)
		infraHttp.RegisterAnalyticsRoutes(router, analyticsHandler)
	}

	// ------------ Outbox Publisher ------------
	registry := sharedEvents.MergeRegistries(orderDomain.NewEventRegistry())

	worker := relayer.NewOutboxWorker(outboxRepo, eventBus, registry, relayer.Config{
		Interval:        cfg.OutboxPollInterval,
		BatchSize:       cfg.OutboxBatchSize,
		MaxAttempts:     cfg.OutboxMaxAttempts,
		DispatchTimeout: cfg.OutboxDispatchTimeout,
		RetryBase:       cfg.OutboxRetryBase,
		RetryMax:        cfg.OutboxRetryMax,
	}, log)
	go worker.Start(ctx)

	// ---------------- HTTP ----------------
	adminHandler := infraHttp.NewOutboxAdminHandler(outboxRepo)
	infraHttp.RegisterOutboxAdminRoutes(router, adminHandler)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}

	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Apagando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown error", zap.Error(err))
	}
}
