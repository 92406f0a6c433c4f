package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/config"
	"github.com/booksnap/booksnap-api/logger"
	"github.com/booksnap/booksnap-api/middleware"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/realtime"
	"github.com/booksnap/booksnap-api/services"
	"github.com/booksnap/booksnap-api/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.GoEnv)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog.Info("starting BookSnap API", zap.String("env", cfg.GoEnv))

	if err := config.ConnectDatabase(); err != nil {
		return err
	}
	db := config.GetDB()
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	zlog.Info("database migration completed")

	broker, closeBroker, err := newBroker(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeBroker()

	images, err := newImageService(ctx, cfg, zlog)
	if err != nil {
		return err
	}

	tokenValidator, err := middleware.NewTokenValidator(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up token validation: %w", err)
	}

	m := services.NewMarketplace(services.Deps{
		DB:                    db,
		Cache:                 cache.New(cfg.CacheTTL),
		Broker:                broker,
		Images:                images,
		UserInfo:              services.NewAuth0Service(cfg),
		Logger:                zlog,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
	})
	services.SetMarketplace(m)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(cfg, zlog, m, middleware.EnsureValidToken(tokenValidator.ValidateToken, zlog))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	// Open event streams only end when their watches do.
	m.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newBroker picks the realtime backend. Redis carries events between API
// instances; the in-memory broker only reaches subscribers of this process.
// The returned func releases the broker and its connection.
func newBroker(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (realtime.Broker, func(), error) {
	if cfg.RealtimeBackend != config.RealtimeRedis {
		zlog.Info("realtime backend", zap.String("backend", config.RealtimeMemory))
		broker := realtime.NewMemoryBroker()
		return broker, func() { _ = broker.Close() }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	zlog.Info("realtime backend", zap.String("backend", config.RealtimeRedis), zap.String("addr", cfg.RedisAddr))
	broker := realtime.NewRedisBroker(client, zlog.Named("redis"))
	return broker, func() {
		_ = broker.Close()
		_ = client.Close()
	}, nil
}

// newImageService stores covers in S3 when a bucket is configured and on
// local disk otherwise.
func newImageService(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (services.ImageService, error) {
	if cfg.AWSS3Bucket == "" {
		zlog.Warn("AWS_S3_BUCKET not set, storing covers on local disk", zap.String("dir", utils.UploadDir))
		return services.NewLocalImageService(utils.UploadDir), nil
	}

	s3Service, err := services.NewS3Service(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up S3: %w", err)
	}
	zlog.Info("cover storage", zap.String("bucket", cfg.AWSS3Bucket), zap.String("region", cfg.AWSRegion))
	return services.NewS3ImageService(s3Service), nil
}
