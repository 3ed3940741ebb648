package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/lumora/storefront-api/configs"
	"github.com/lumora/storefront-api/internal/adapter/cache"
	"github.com/lumora/storefront-api/internal/adapter/commerce"
	httpadapter "github.com/lumora/storefront-api/internal/adapter/http"
	"github.com/lumora/storefront-api/internal/adapter/http/middleware"
	"github.com/lumora/storefront-api/internal/adapter/kafka"
	"github.com/lumora/storefront-api/internal/adapter/observ"
	"github.com/lumora/storefront-api/internal/adapter/queue"
	"github.com/lumora/storefront-api/internal/adapter/repo"
	"github.com/lumora/storefront-api/internal/cart"
	"github.com/lumora/storefront-api/internal/entity"
	"github.com/lumora/storefront-api/internal/logging"
	"github.com/lumora/storefront-api/internal/registry"
)

type App struct {
	Router *gin.Engine
}

func InitWithConfig(cfg configs.Config) (*App, func(), error) {
	logger := logging.Init(cfg.App.Name, cfg.App.LogFile)
	logger.Info("storefront-api: starting up")

	// init database
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(ctx)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	// init redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, nil, err
	}

	// init kafka producer for lifecycle events
	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers)
	if err != nil {
		return nil, nil, err
	}
	publisher := kafka.NewEventPublisher(producer, cfg.Kafka.TopicEvents, logging.New("kafka"))

	// per-session cart stack
	journal := repo.NewMySQLJournal(db, logging.New("journal"))
	contextStore := cache.NewRedisContextStore(rdb)
	sinks := []cart.ResultSink{journal, observ.NewMetrics(), publisher}
	opts := cart.Options{
		AutoRecover:  cfg.Cart.AutoRecover,
		PollInterval: cfg.Cart.PollInterval,
		InitialDelay: cfg.Cart.InitialDelay,
		WaitTimeout:  cfg.Cart.WaitTimeout,
	}
	newGateway := func(sessionID string, buyer entity.Buyer) cart.Gateway {
		return commerce.NewClient(commerce.Config{
			Endpoint:    cfg.Commerce.Endpoint,
			AccessToken: cfg.Commerce.AccessToken,
			Timeout:     cfg.Commerce.Timeout,
			Buyer:       buyer,
		}, logging.New("commerce").With("session_id", sessionID))
	}
	reg := registry.New(newGateway, contextStore, sinks, opts, logging.New("cart"))

	// init rabbitmq + register webhook consumer
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, nil, err
	}
	amqpCh, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := setupWebhookConsumer(cfg, amqpCh, reg); err != nil {
		return nil, nil, err
	}

	// init handlers + routers + middleware
	idem := middleware.NewIdempotency(cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL))
	sessions := middleware.NewSessions(cfg)
	ch := httpadapter.NewCartHandler(reg, journal)
	sh := httpadapter.NewSessionHandler(cfg)
	router := httpadapter.NewRouter(ch, sh, sessions, idem)

	cleanup := func() {
		_ = db.Close()
		_ = rdb.Close()
		_ = amqpCh.Close()
		_ = conn.Close()
		_ = producer.Close()
	}

	return &App{Router: router}, cleanup, nil
}

func setupWebhookConsumer(cfg configs.Config, ch *amqp.Channel, reg *registry.Registry) error {
	if err := queue.Declare(ch, cfg.Rabbit.Exchange, cfg.Rabbit.Queue, cfg.Rabbit.RoutingKey); err != nil {
		return err
	}

	h := queue.NewCartWebhookHandler(reg, logging.New("webhooks"))
	router := queue.NewRouter(ch, logging.New("rmq-router"), queue.WithPrefetch(50))
	router.Register(cfg.Rabbit.Queue, queue.JSONHandler[queue.CartWebhookMsg]{HandleFunc: h.HandleCartUpdated})
	return router.Start()
}
