// Package main 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noisysource/house-dashboard/internal/aggregate"
	"github.com/noisysource/house-dashboard/internal/cache"
	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/handler"
	"github.com/noisysource/house-dashboard/internal/hub"
	"github.com/noisysource/house-dashboard/internal/ingest"
	"github.com/noisysource/house-dashboard/internal/state"
	"github.com/noisysource/house-dashboard/internal/store"
)

func main() {
	// 初始化日志
	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting power-telemetry service...")

	// 加载配置
	cfg := config.Load()
	logger.Info("Configuration loaded",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.Strings("topics", cfg.Kafka.Topics),
		zap.String("influx_url", cfg.Influx.URL),
	)

	// 创建快照缓存（可选，失败时降级运行）
	var snapshotCache *cache.SnapshotCache
	if cfg.Redis.Enabled {
		c, err := cache.New(cfg.Redis)
		if err != nil {
			logger.Warn("Cache unavailable, running without snapshot mirror", zap.Error(err))
		} else {
			snapshotCache = c
			logger.Info("Snapshot cache connected", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// 创建时序存储
	readingStore, err := store.NewInfluxStore(cfg.Influx)
	if err != nil {
		logger.Fatal("Failed to connect to InfluxDB", zap.Error(err))
	}

	// 创建异步写入器
	writer := store.NewAsyncWriter(readingStore, cfg.Store, logger)

	// 创建实时状态与广播中心
	liveState := state.NewStore()
	broadcastHub := hub.NewHub(liveState.Snapshot, cfg.Hub, logger)

	// 创建聚合器
	aggregator := aggregate.New(readingStore, logger)

	// 创建消费者
	consumer := ingest.NewConsumer(
		cfg.Kafka,
		cfg.Power,
		liveState,
		writer,
		broadcastHub,
		cacheSink(snapshotCache),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Fatal("Consumer failed", zap.Error(err))
		}
	}()

	// 创建处理器
	h := handler.NewHandler(liveState, aggregator, readingStore, broadcastHub, snapshotCache, cfg.Hub, logger)

	// 创建 Gin 引擎
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handler.CORSMiddleware())

	// 注册路由
	h.RegisterRoutes(r)

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 启动服务器
	go func() {
		logger.Info("HTTP server starting",
			zap.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭：先停消费，再冲刷写入缓冲，最后断开客户端
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	writer.Stop()
	broadcastHub.Shutdown()
	readingStore.Close()
	if snapshotCache != nil {
		snapshotCache.Close()
	}

	logger.Info("Server exited")
}

// cacheSink 把可能为 nil 的具体缓存转成接口，避免非 nil 接口包裹 nil 指针
func cacheSink(c *cache.SnapshotCache) ingest.SnapshotCache {
	if c == nil {
		return nil
	}
	return c
}

// initLogger 初始化日志
func initLogger() *zap.Logger {
	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
