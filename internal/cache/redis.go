// Package cache 提供实时快照的 Redis 镜像
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/model"
)

const snapshotKey = "power:snapshot:latest"

// SnapshotCache 最新快照缓存
//
// 仅作镜像用途：读路径始终以内存状态为准，
// 缓存不可用不影响任何功能。
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New 创建缓存客户端并校验连通性
func New(cfg config.RedisConfig) (*SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &SnapshotCache{
		client: client,
		ttl:    cfg.SnapshotTTL,
	}, nil
}

// Store 写入最新快照
func (c *SnapshotCache) Store(ctx context.Context, snapshot model.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, snapshotKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Latest 读取最新快照；不存在时返回 nil
func (c *SnapshotCache) Latest(ctx context.Context) (*model.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// HealthCheck 检查缓存连通性
func (c *SnapshotCache) HealthCheck(ctx context.Context) error {
	_, err := c.client.Ping(ctx).Result()
	return err
}

// Close 关闭连接
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
