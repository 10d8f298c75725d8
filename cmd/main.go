package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/backend"
	"github.com/fjod/storefront-checkout/internal/cache"
	"github.com/fjod/storefront-checkout/internal/cart"
	"github.com/fjod/storefront-checkout/internal/checkout"
	"github.com/fjod/storefront-checkout/internal/config"
	"github.com/fjod/storefront-checkout/internal/consumer"
	"github.com/fjod/storefront-checkout/internal/coupon"
	h "github.com/fjod/storefront-checkout/internal/http"
	"github.com/fjod/storefront-checkout/internal/logger"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/fjod/storefront-checkout/internal/publisher"
	"github.com/fjod/storefront-checkout/internal/repository"
	"github.com/fjod/storefront-checkout/internal/shipping"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx := context.Background()
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Cart store
	persister, closePersister, err := openPersister(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open cart store", zap.String("kind", string(cfg.CartStore)), zap.Error(err))
	}
	closers = append(closers, closePersister)

	carts := cart.NewRegistry(persister, log)

	// Storefront backend
	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, log)
	providers := payment.NewProviders(
		payment.NewPayPal(client, log),
		payment.NewAfterpay(client),
		payment.NewZipPay(client),
	)

	// Checkout ledger
	var wg sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)

	var recorder checkout.Recorder = checkout.NewLogRecorder(log)
	var outcomes *h.OutcomeHandler
	// Without the outcome stream the session clears the cart itself.
	clearOnSuccess := true
	if cfg.LedgerEnabled() {
		creds := &repository.Credentials{
			Host:              cfg.DBHost,
			Port:              cfg.DBPort,
			User:              cfg.DBUser,
			Password:          cfg.DBPassword,
			DBName:            cfg.DBName,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		repo, err := repository.NewRepository(creds)
		if err != nil {
			log.Fatal("failed to connect to ledger database", zap.Error(err))
		}
		closers = append(closers, func() { repo.Close() })

		if err := repo.RunMigrations(creds); err != nil {
			log.Fatal("failed to run ledger migrations", zap.Error(err))
		}
		log.Info("ledger migrations completed")
		recorder = checkout.NewLedgerRecorder(repo)
		outcomes = h.NewOutcomeHandler(repo, log)

		if len(cfg.KafkaBrokers) > 0 {
			poller := publisher.NewOutboxPoller(repo, log, cfg.KafkaTopic, cfg.KafkaBrokers...)
			closers = append(closers, func() { poller.Close() })
			wg.Add(1)
			go func() {
				defer wg.Done()
				poller.Run(workerCtx)
			}()

			cleaner := consumer.NewCartCleaner(carts, log, cfg.KafkaTopic, cfg.KafkaBrokers...)
			closers = append(closers, func() { cleaner.Close() })
			wg.Add(1)
			go func() {
				defer wg.Done()
				cleaner.Run(workerCtx)
			}()
			clearOnSuccess = false
		} else {
			log.Warn("KAFKA_BROKERS not set, outcome events stay in the outbox")
		}
	}

	sessions := checkout.NewSessions(checkout.Deps{
		Shipping:      shipping.NewResolver(client),
		Coupons:       coupon.NewResolver(client, coupon.WithPath(cfg.CouponPath), coupon.WithLogger(log)),
		Providers:     providers,
		Recorder:      recorder,
		Logger:        log,
		Platform:      cfg.DevicePlatform,
		ReturnBaseURL: cfg.PublicBaseURL,
		OnSuccess: func(ctx context.Context, o *domain.Outcome) {
			if clearOnSuccess {
				carts.Get(ctx, cart.OwnerKey(o.UserID)).Clear()
			}
		},
	}, cfg.SessionTTL)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.Run(workerCtx, cfg.SessionSweepInterval)
	}()

	// HTTP API
	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(carts),
		Checkout:       h.NewCheckoutHandler(sessions, carts, cfg.RequestTimeout, log),
		Outcomes:       outcomes,
		JWT:            h.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer),
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "checkout-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("HTTP API listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// gRPC health
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)

	go func() {
		log.Info("gRPC health listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("failed to serve gRPC", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down checkout service...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	stopWorkers()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("background workers stopped")
	case <-shutdownCtx.Done():
		log.Warn("timed out waiting for background workers")
	}

	// Flushes pending cart writes before the stores close.
	carts.Close()
	log.Info("checkout service stopped")
}

// openPersister builds the cart store selected by CART_STORE. The memory
// store keeps carts for the life of the process only.
func openPersister(ctx context.Context, cfg *config.Config, log *zap.Logger) (cart.Persister, func(), error) {
	var (
		durable cart.Persister
		closer  = func() {}
	)

	switch cfg.CartStore {
	case config.CartStoreMemory:
		return nil, closer, nil

	case config.CartStoreSQLite:
		repo, err := repository.NewSQLiteCartRepository(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.RunMigrations(cfg.SQLiteMigrationsPath); err != nil {
			repo.Close()
			return nil, nil, err
		}
		log.Info("cart store ready", zap.String("kind", "sqlite"), zap.String("path", cfg.SQLitePath))
		durable, closer = repo, func() { repo.Close() }

	case config.CartStoreMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoCartRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			log.Warn("failed to create cart indexes", zap.Error(err))
		}
		log.Info("cart store ready", zap.String("kind", "mongo"), zap.String("uri", cfg.MongoURI))
		durable, closer = repo, func() { db.Client().Disconnect(context.Background()) }

	case config.CartStoreRedis:
		rdb, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("cart store ready", zap.String("kind", "redis"), zap.String("addr", cfg.RedisAddr))
		return cache.NewRedisCache(rdb, cfg.CartCacheTTL), func() { rdb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown cart store %q", cfg.CartStore)
	}

	if !cfg.CartCache {
		return durable, closer, nil
	}
	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		closer()
		return nil, nil, err
	}
	log.Info("cart cache enabled", zap.String("addr", cfg.RedisAddr))
	persister := cart.NewCachedPersister(cache.NewRedisCache(rdb, cfg.CartCacheTTL), durable, log)
	return persister, func() {
		rdb.Close()
		closer()
	}, nil
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
