// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"wimbli/internal/adapter/blobstore"
	localAdapter "wimbli/internal/adapter/localstore"
	"wimbli/internal/adapter/memstore"
	"wimbli/internal/adapter/storage"
	"wimbli/internal/config"
	"wimbli/internal/domain/auth"
	"wimbli/internal/domain/blob"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/localstore"
	"wimbli/internal/server"
	chatService "wimbli/internal/service/chat"
	"wimbli/internal/service/expiry"
	feedService "wimbli/internal/service/feed"
	geoService "wimbli/internal/service/geo"
	"wimbli/internal/service/identity"
	"wimbli/internal/service/livesync"
	profileService "wimbli/internal/service/profile"
	"wimbli/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.NoColor)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize storage adapters
	store, closeStore, err := initDocumentStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize document store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	local, closeLocal, err := initLocalStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize local store", "driver", cfg.Store.LocalDriver, "error", err)
		os.Exit(1)
	}
	defer closeLocal()

	blobs, err := initBlobStore(ctx, cfg.Blob)
	if err != nil {
		logger.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	// Initialize services
	geo := geoService.NewGeoSpatialService()
	resolver := livesync.NewDisplayResolver(store, cfg.Sync.ResolverFanOut, logger)
	feeds := feedService.NewService(store, resolver, logger)
	posts := feedService.NewPostService(store, geo, resolver, logger)
	chats := chatService.NewService(store, resolver, logger, chatService.WithMaxMessageLength(cfg.Messaging.MaxMessageLength))
	groups := chatService.NewGroupService(store, logger)
	profiles := profileService.NewService(store, blobs, logger)

	tokens := identity.NewJWTManager(cfg.Identity.TokenSecret, nil)
	identities := identity.NewService(store, tokens, profiles, identity.Config{
		TokenTTL:          cfg.Identity.TokenExpiry,
		ReauthWindow:      cfg.Identity.ReauthWindow,
		MinPasswordLength: cfg.Identity.MinPasswordLength,
	}, logger)
	identities.OnStateChange(func(change auth.StateChange) {
		logger.Debug("auth state changed", "user", change.User.ID, "event", change.Event)
	})

	// Start the expiry sweeper
	if cfg.Expiry.Enabled {
		sweeper := expiry.NewSweeper(store, expiry.Config{
			Interval:     cfg.Expiry.Interval,
			Retention:    cfg.Expiry.Retention,
			BatchSize:    cfg.Expiry.BatchSize,
			SweepTimeout: cfg.Expiry.SweepTimeout,
		}, logger)
		go sweeper.Run(ctx)
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg, server.Dependencies{
		Store:    store,
		Local:    local,
		Auth:     identities,
		Profiles: profiles,
		Posts:    posts,
		Feeds:    feeds,
		Groups:   groups,
		Chats:    chats,
	}, logger)

	// Start HTTP server
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Server.Addr(), "store", cfg.Store.Driver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("shutdown signal received")
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// initDocumentStore opens the configured document store and returns its cleanup
func initDocumentStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (docstore.Store, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn("using in-memory document store, data will not survive a restart")
		return memstore.New(), func() {}, nil
	}

	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	store := storage.NewDocumentStore(db, natsConn, logger)
	if err := store.Migrate(ctx); err != nil {
		natsConn.Close()
		db.Close()
		return nil, nil, fmt.Errorf("unable to migrate documents table: %w", err)
	}

	return store, func() {
		natsConn.Close()
		db.Close()
	}, nil
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}

// initLocalStore opens the device-local store backend
func initLocalStore(ctx context.Context, cfg config.Config) (localstore.Factory, func(), error) {
	if cfg.Store.LocalDriver != "redis" {
		return localAdapter.NewMemoryFactory(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	return localAdapter.NewRedisFactory(client), func() { client.Close() }, nil
}

// initBlobStore opens object storage, or keeps uploads in memory when no
// endpoint is configured
func initBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	if cfg.Endpoint == "" {
		return blobstore.NewMemoryStore(cfg.PublicBaseURL), nil
	}

	s3, err := blobstore.NewS3Store(blobstore.S3Config{
		Endpoint:      cfg.Endpoint,
		Region:        cfg.Region,
		Bucket:        cfg.Bucket,
		AccessKey:     cfg.AccessKey,
		SecretKey:     cfg.SecretKey,
		UseSSL:        cfg.UseSSL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}

	if err := s3.EnsureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return s3, nil
}
