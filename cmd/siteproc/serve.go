package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/12313131dBossza/siteproc-sub003/internal/config"
	"github.com/12313131dBossza/siteproc-sub003/internal/middleware"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/handler"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/repository"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/service"
	"github.com/12313131dBossza/siteproc-sub003/internal/procurement/sse"
	"github.com/12313131dBossza/siteproc-sub003/internal/shared/storage"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const ssePath = "/api/v1/sse/events"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API together with the realtime relay and the
periodic reconciliation sweep.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, zapLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}

	zapLogger.Info("Starting siteproc service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database, gormLogLevel(cfg))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	// 实时推送：启用 Redis 时跨实例转发，否则本机投递
	hub := sse.NewHub(zapLogger)
	var bus service.Broadcaster = hub
	rdb := initRedisIfEnabled(ctx, cfg, zapLogger)
	if rdb != nil {
		defer rdb.Close()
		relay := sse.NewRelay(hub, rdb, zapLogger)
		bus = relay
		g.Go(func() error {
			return relay.Run(ctx)
		})
	}

	opts := service.Options{
		ExpenseStatuses:   cfg.Reconcile.ExpenseStatuses,
		DashboardCacheTTL: cfg.Dashboard.CacheTTL,
	}
	if store := initProofStore(ctx, cfg.MinIO, zapLogger); store != nil {
		opts.ProofStore = store
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, bus, zapLogger, opts)
	handlers := handler.NewHandlers(services, repos, hub)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	// SSE 长连接不能被压缩缓冲
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{ssePath})))

	registerRoutes(router, handlers, cfg, db, rdb)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable for SSE long-lived connections
	}

	g.Go(func() error {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if cfg.Reconcile.SweepInterval > 0 {
		g.Go(func() error {
			return runSweepScheduler(ctx, cfg.Reconcile.SweepInterval, services.Reconciler, zapLogger)
		})
	}

	// 优雅关闭
	g.Go(func() error {
		<-ctx.Done()
		zapLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zapLogger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	zapLogger.Info("Server exited")
	return nil
}

// runSweepScheduler 周期性全量对账，修正被并发或失败写入遗留的偏差
func runSweepScheduler(ctx context.Context, interval time.Duration, reconciler *service.Reconciler, logger *zap.Logger) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			result, err := reconciler.SweepAll(ctx)
			if err != nil {
				logger.Error("Reconciliation sweep failed", zap.Error(err))
				return
			}
			logger.Info("Reconciliation sweep finished",
				zap.Int("companies", result.Companies),
				zap.Int("updated", result.Updated),
				zap.Int("failed", result.Failed))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	logger.Info("Reconciliation sweep scheduled", zap.Duration("interval", interval))
	scheduler.Start()

	<-ctx.Done()
	return scheduler.Shutdown()
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// initRedisIfEnabled returns nil when Redis is disabled or unreachable.
func initRedisIfEnabled(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	rdb := initRedis(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, continuing without cache and relay", zap.Error(err))
		rdb.Close()
		return nil
	}
	return rdb
}

// initProofStore returns nil when MinIO is not configured.
func initProofStore(ctx context.Context, cfg config.MinIOConfig, logger *zap.Logger) *storage.MinIOStore {
	if cfg.Endpoint == "" {
		return nil
	}
	store, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		logger.Warn("MinIO unavailable, proof uploads disabled", zap.Error(err))
		return nil
	}
	return store
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config, db *gorm.DB, rdb *redis.Client) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err == nil && rdb != nil {
			err = rdb.Ping(c.Request.Context()).Err()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	api := r.Group("/api/v1", middleware.JWTAuth(cfg.JWT.Secret))
	handler.RegisterRoutes(api, h)
}
