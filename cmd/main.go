/**
 * @description
 * This is the main entry point for the settlement-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the payment gateway client, the Redis-backed pending
 * store, the event producer, the core settlement service, the periodic
 * re-verification sweep, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the pending-operation store.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/paystackclient: Client for the Paystack payment gateway.
 * - pkg/rabbitmq: Event producer for settlement events.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kudipay/settlement-service/internal/api"
	"github.com/kudipay/settlement-service/internal/app"
	"github.com/kudipay/settlement-service/internal/cache"
	"github.com/kudipay/settlement-service/internal/config"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/kudipay/settlement-service/pkg/paystackclient"
	rmrabbit "github.com/kudipay/settlement-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.PaystackSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway secret key must be configured\" env=PAYSTACK_SECRET_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// The pending-operation store is load-bearing: without it no in-flight
	// deposit or withdrawal can be reconciled, so a missing Redis is fatal.
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis url parse failed\" err=%v", err)
	}
	redisClient := redis.NewClient(redisOptions)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("level=fatal component=bootstrap msg=\"redis ping failed\" err=%v", err)
	}
	cancelPing()
	log.Println("level=info component=bootstrap msg=\"redis connected\"")

	pendingStore := cache.NewPendingStore(redisClient, "")

	// Initialize the RabbitMQ producer to publish settlement events. The
	// broker is optional; without it settlements proceed unannounced.
	var events rmrabbit.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; settlement events disabled\" env=RABBITMQ_URL")
	} else if producer, prodErr := rmrabbit.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		events = &rmrabbit.EventProducerFallback{}
	} else {
		defer producer.Close()
		events = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the Paystack payment gateway.
	gatewayClient := paystackclient.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	durations := app.Durations{
		DepositPendingTTL:    time.Duration(cfg.DepositPendingTTLMinutes) * time.Minute,
		DepositValidity:      time.Duration(cfg.DepositValidityMinutes) * time.Minute,
		WithdrawalPendingTTL: time.Duration(cfg.WithdrawalPendingTTLHours) * time.Hour,
		AuditTTL:             time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour,
		DepositVerifyDelay:   time.Duration(cfg.DepositVerifyDelaySeconds) * time.Second,
		BankListTTL:          time.Duration(cfg.BankCacheTTLHours) * time.Hour,
		AccountNameTTL:       time.Duration(cfg.AccountNameCacheTTLDays) * 24 * time.Hour,
	}

	// Initialize the core application service with its dependencies.
	settlementService := app.NewService(
		repository,
		gatewayClient,
		pendingStore,
		app.NewTimerScheduler(),
		events,
		durations,
	)

	// Periodic sweep over pending deposits whose webhook or deferred
	// verification never landed.
	reverifier := app.NewReverifier(settlementService, durations.DepositVerifyDelay)
	if err := reverifier.Start(cfg.ReverifyCron); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"reverify sweep start failed\" schedule=%q err=%v", cfg.ReverifyCron, err)
	}
	defer reverifier.Stop()

	// Initialize the API handlers.
	settlementHandlers := api.NewSettlementHandlers(settlementService)
	webhookHandler := api.NewWebhookHandler(settlementService, cfg.PaystackSecretKey)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.SettlementRoutes(settlementHandlers, webhookHandler, cfg.JWTSecret))

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
