package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"

	"github.com/rl1809/shop-api/internal/adapter/handler"
	"github.com/rl1809/shop-api/internal/adapter/storage"
	"github.com/rl1809/shop-api/internal/config"
	"github.com/rl1809/shop-api/internal/core/service"
	"github.com/rl1809/shop-api/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:          "shop-api",
		Short:        "Users, products and orders API with a stock ledger",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	flags := serveCmd.Flags()
	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	flags.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC listen address")
	flags.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: mongo or memory")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for idempotency keys (empty disables)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flags.IntVar(&cfg.CompensationWorkers, "compensation-workers", cfg.CompensationWorkers, "stock compensation workers")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cfg.LogLevel)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, err := connectMongo(ctx, cfg.MongoURI)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())

			if err := storage.NewMongoAdapter(client.Database(cfg.MongoDatabase)).EnsureIndexes(ctx); err != nil {
				return err
			}
			logger.Info("indexes created", "database", cfg.MongoDatabase)
			return nil
		},
	}
	for _, cmd := range []*cobra.Command{serveCmd, migrateCmd} {
		cmd.Flags().StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "MongoDB connection URI")
		cmd.Flags().StringVar(&cfg.MongoDatabase, "mongo-database", cfg.MongoDatabase, "MongoDB database name")
	}

	root.AddCommand(serveCmd, migrateCmd)
	return root
}

type repositories struct {
	users    port.UserRepository
	products port.ProductRepository
	orders   port.OrderRepository
}

func serve(parent context.Context, cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Initialize store
	var repos repositories
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := storage.NewMemoryAdapter()
		repos = repositories{users: mem, products: mem, orders: mem}
		logger.Warn("using in-memory store, data is lost on exit")
	default:
		client, err := connectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		logger.Info("connected to mongodb", "database", cfg.MongoDatabase)

		mongoAdapter := storage.NewMongoAdapter(client.Database(cfg.MongoDatabase))
		if err := mongoAdapter.EnsureIndexes(ctx); err != nil {
			return err
		}
		repos = repositories{users: mongoAdapter, products: mongoAdapter, orders: mongoAdapter}
	}

	// Initialize Redis
	var cache port.CacheRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	// Initialize services
	userService := service.NewUserService(repos.users, repos.orders)
	productService := service.NewProductService(repos.products, repos.orders)
	orderService := service.NewOrderService(repos.orders, repos.users, repos.products, cache,
		cfg.CompensationQueueSize,
		service.WithLogger(logger),
		service.WithRecentWindow(cfg.RecentOrderWindow),
		service.WithCompensationRetry(cfg.CompensationAttempts, cfg.CompensationBackoff),
	)

	// Start compensation workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.CompensationWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			orderService.RunCompensator(ctx, id)
		}(i)
	}
	logger.Info("started compensation workers", "count", cfg.CompensationWorkers)

	// Start gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(handler.UnaryLogger(logger)))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// Start HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpHandler := handler.NewHTTPHandler(userService, productService, orderService, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(httpHandler, handler.RouterOptions{
			RequestTimeout: cfg.RequestTimeout,
			AllowedOrigins: cfg.CORSOrigins,
		}),
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// No order mutation can enqueue work any more.
	orderService.Close()
	wg.Wait()
	logger.Info("compensation workers stopped")

	return nil
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
