// Package ingest 订阅消息代理并摄入功率读数
package ingest

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/metrics"
	"github.com/noisysource/house-dashboard/internal/model"
	"github.com/noisysource/house-dashboard/internal/state"
)

// Sink 持久化投递接口
type Sink interface {
	Enqueue(readings []model.Reading)
}

// Broadcaster 实时推送接口
type Broadcaster interface {
	Broadcast(snapshot model.Snapshot)
}

// SnapshotCache 快照镜像接口（可选）
type SnapshotCache interface {
	Store(ctx context.Context, snapshot model.Snapshot) error
}

// Consumer 消息摄入器
//
// 每条消息的副作用严格有序：先更新实时状态，再投递持久化，
// 最后广播。持久化与广播都不会同步阻塞摄入循环。
type Consumer struct {
	cfg            config.KafkaConfig
	nominalVoltage float64
	state          *state.Store
	sink           Sink
	hub            Broadcaster
	cache          SnapshotCache
	logger         *zap.Logger
}

// NewConsumer 创建摄入器
func NewConsumer(
	cfg config.KafkaConfig,
	power config.PowerConfig,
	st *state.Store,
	sink Sink,
	hub Broadcaster,
	cache SnapshotCache,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		cfg:            cfg,
		nominalVoltage: power.NominalVoltage,
		state:          st,
		sink:           sink,
		hub:            hub,
		cache:          cache,
		logger:         logger,
	}
}

// Run 启动所有主题的消费循环，阻塞直到 ctx 取消
func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, topic := range c.cfg.Topics {
		topic := topic
		g.Go(func() error {
			return c.consumeTopic(ctx, topic)
		})
	}

	return g.Wait()
}

// consumeTopic 单主题消费循环
//
// Reader 内部带无限重连与退避；读取错误只记录后继续，
// 循环只因 ctx 取消而退出。
func (c *Consumer) consumeTopic(ctx context.Context, topic string) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: c.cfg.MinBytes,
		MaxBytes: c.cfg.MaxBytes,
		MaxWait:  c.cfg.MaxWait,
	})
	defer reader.Close()

	c.logger.Info("Subscribed to topic", zap.String("topic", topic))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to read message",
				zap.String("topic", topic),
				zap.Error(err),
			)
			time.Sleep(time.Second)
			continue
		}

		metrics.MessagesConsumed.WithLabelValues(topic).Inc()
		c.Handle(topic, msg.Value)
	}
}

// Handle 处理一条入站消息
//
// 解析失败的消息丢弃并记录，绝不终止消费循环。
func (c *Consumer) Handle(topic string, payload []byte) {
	readings, err := c.parse(topic, payload, time.Now())
	if err != nil {
		metrics.ParseFailures.WithLabelValues(topic).Inc()
		c.logger.Warn("Dropping malformed payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}
	if len(readings) == 0 {
		return
	}

	for _, reading := range readings {
		c.state.Update(reading)
	}
	metrics.ReadingsIngested.Add(float64(len(readings)))

	c.sink.Enqueue(readings)

	snapshot := c.state.Snapshot()
	c.hub.Broadcast(snapshot)

	if c.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := c.cache.Store(ctx, snapshot); err != nil {
			c.logger.Debug("Failed to mirror snapshot", zap.Error(err))
		}
		cancel()
	}
}
