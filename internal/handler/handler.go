// Package handler 提供 HTTP 查询接口
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noisysource/house-dashboard/internal/aggregate"
	"github.com/noisysource/house-dashboard/internal/cache"
	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/hub"
	"github.com/noisysource/house-dashboard/internal/metrics"
	"github.com/noisysource/house-dashboard/internal/model"
	"github.com/noisysource/house-dashboard/internal/state"
	"github.com/noisysource/house-dashboard/internal/store"
)

// Handler HTTP 处理器
type Handler struct {
	state      *state.Store
	aggregator *aggregate.Aggregator
	store      store.ReadingStore
	hub        *hub.Hub
	cache      *cache.SnapshotCache
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	st *state.Store,
	aggregator *aggregate.Aggregator,
	readingStore store.ReadingStore,
	h *hub.Hub,
	snapshotCache *cache.SnapshotCache,
	cfg config.HubConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		state:      st,
		aggregator: aggregator,
		store:      readingStore,
		hub:        h,
		cache:      snapshotCache,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// 面板与服务不同源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// 健康检查
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/live", h.Live)

	// 指标
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 实时推送
	r.GET("/ws", h.WebSocket)

	api := r.Group("/api/power")
	{
		api.GET("/readings", h.Readings)
		api.GET("/device/:deviceId", h.DeviceReadings)
		api.GET("/history", h.History)
		api.GET("/stats", h.Stats)
		api.GET("/power/stats", h.PeriodStats)
	}
}

// Readings 当前实时读数
func (h *Handler) Readings(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Snapshot())
}

// DeviceReadings 指定设备的实时读数
func (h *Handler) DeviceReadings(c *gin.Context) {
	deviceID := c.Param("deviceId")
	readings := h.state.DeviceReadings(deviceID)
	if len(readings) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device " + deviceID + " not found"})
		return
	}
	c.JSON(http.StatusOK, readings)
}

// History 区间内的原始读数
func (h *Handler) History(c *gin.Context) {
	period := c.DefaultQuery("period", aggregate.Period24h)
	channelID := c.Query("channelId")

	start, err := aggregate.WindowStart(period, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period. Use 24h, week, or month"})
		return
	}

	readings, err := h.store.QueryRange(c.Request.Context(), start, channelID)
	if err != nil {
		h.logger.Error("Failed to fetch historical data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch historical data"})
		return
	}
	if readings == nil {
		readings = []model.Reading{}
	}

	c.JSON(http.StatusOK, readings)
}

// Stats 时间分桶统计
func (h *Handler) Stats(c *gin.Context) {
	period := c.DefaultQuery("period", aggregate.Period24h)

	start, err := aggregate.WindowStart(period, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period. Use 24h, week, or month"})
		return
	}

	stats, err := h.aggregator.Aggregate(c.Request.Context(), start, aggregate.BucketUnit(period))
	if err != nil {
		h.logger.Error("Failed to fetch stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// PeriodStats 周期统计汇总
//
// 对外契约是永远返回完整结构：内部失败降级为零值，不返回错误状态。
func (h *Handler) PeriodStats(c *gin.Context) {
	period := c.DefaultQuery("period", aggregate.Period24h)
	c.JSON(http.StatusOK, h.aggregator.PeriodSummary(c.Request.Context(), period))
}

// WebSocket 升级连接并注册到广播中心
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.Register(conn)

	// 读循环只用于感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Unregister(client)
			return
		}
	}
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	status := "ok"
	cacheStatus := "not configured"
	if h.cache != nil {
		if err := h.cache.HealthCheck(c.Request.Context()); err != nil {
			cacheStatus = "unhealthy"
			status = "degraded"
		} else {
			cacheStatus = "healthy"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"service":   "power-telemetry",
		"status":    status,
		"cache":     cacheStatus,
		"channels":  h.state.Len(),
		"clients":   h.hub.ClientCount(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// Ready 就绪检查
func (h *Handler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// Live 存活检查
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true, "timestamp": time.Now().UnixMilli()})
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
