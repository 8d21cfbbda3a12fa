// Package store 提供读数的持久化与区间查询
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/model"
)

const measurement = "power_reading"

// ReadingStore 读数存储接口
type ReadingStore interface {
	// AppendBatch 追加一批读数
	AppendBatch(ctx context.Context, readings []model.Reading) error
	// QueryRange 查询起始时间之后的读数，按时间升序返回；
	// channelID 为空时返回全部通道
	QueryRange(ctx context.Context, start time.Time, channelID string) ([]model.Reading, error)
}

// InfluxStore InfluxDB v2 实现
type InfluxStore struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
}

// NewInfluxStore 创建 InfluxDB 客户端并校验连通性
func NewInfluxStore(cfg config.InfluxConfig) (*InfluxStore, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	if _, err := client.Health(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	return &InfluxStore{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
	}, nil
}

// AppendBatch 追加一批读数
func (s *InfluxStore) AppendBatch(ctx context.Context, readings []model.Reading) error {
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		points = append(points, write.NewPoint(
			measurement,
			map[string]string{
				"channel_id": r.ChannelID,
				"device_id":  r.DeviceID,
				"relay":      strconv.Itoa(r.RelayIndex),
			},
			map[string]interface{}{
				"power":   r.Power,
				"current": r.Current,
				"voltage": r.Voltage,
			},
			r.Timestamp,
		))
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write readings: %w", err)
	}
	return nil
}

// QueryRange 查询起始时间之后的读数
func (s *InfluxStore) QueryRange(ctx context.Context, start time.Time, channelID string) ([]model.Reading, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q)`,
		s.bucket, start.UTC().Format(time.RFC3339), measurement)
	if channelID != "" {
		flux += fmt.Sprintf("\n  |> filter(fn: (r) => r.channel_id == %q)", channelID)
	}
	flux += `
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])`

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	var readings []model.Reading
	for result.Next() {
		record := result.Record()
		relay, _ := strconv.Atoi(asString(record.ValueByKey("relay")))
		readings = append(readings, model.Reading{
			ChannelID:  asString(record.ValueByKey("channel_id")),
			DeviceID:   asString(record.ValueByKey("device_id")),
			RelayIndex: relay,
			Timestamp:  record.Time(),
			Power:      asFloat(record.ValueByKey("power")),
			Current:    asFloat(record.ValueByKey("current")),
			Voltage:    asFloat(record.ValueByKey("voltage")),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query result: %w", err)
	}

	return readings, nil
}

// Close 关闭客户端
func (s *InfluxStore) Close() {
	s.client.Close()
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asFloat(v interface{}) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	}
	return 0
}
