// Package aggregate 提供读数的时间分桶统计
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noisysource/house-dashboard/internal/model"
	"github.com/noisysource/house-dashboard/internal/store"
)

// Unit 分桶粒度
type Unit string

const (
	UnitHour  Unit = "hour"
	UnitDay   Unit = "day"
	UnitMonth Unit = "month"
)

// 查询周期
const (
	Period24h   = "24h"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// ErrInvalidPeriod 周期参数无效
var ErrInvalidPeriod = fmt.Errorf("invalid period, use 24h, week, or month")

// Aggregator 按需聚合器
//
// 每次查询从原始读数重新计算，不做增量维护，
// 单户设备规模下成本可以接受。
type Aggregator struct {
	store  store.ReadingStore
	logger *zap.Logger
	now    func() time.Time
}

// New 创建聚合器
func New(s store.ReadingStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// WindowStart 根据周期计算查询起始时间
func WindowStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case Period24h:
		return now.Add(-24 * time.Hour), nil
	case PeriodWeek:
		return now.Add(-7 * 24 * time.Hour), nil
	case PeriodMonth:
		return now.Add(-30 * 24 * time.Hour), nil
	}
	return time.Time{}, ErrInvalidPeriod
}

// BucketUnit 周期对应的分桶粒度（24h 按小时，week/month 按天）
func BucketUnit(period string) Unit {
	if period == Period24h {
		return UnitHour
	}
	return UnitDay
}

// Aggregate 按分桶粒度统计起始时间之后的读数
//
// 返回结果按分桶起点升序；空窗口返回空切片而非错误。
func (a *Aggregator) Aggregate(ctx context.Context, start time.Time, unit Unit) ([]model.TimeBucketStat, error) {
	readings, err := a.store.QueryRange(ctx, start, "")
	if err != nil {
		return nil, err
	}

	type bucket struct {
		sum   float64
		min   float64
		max   float64
		count int
	}

	buckets := make(map[string]*bucket)
	for _, r := range readings {
		label := bucketLabel(r.Timestamp, unit)
		b, ok := buckets[label]
		if !ok {
			b = &bucket{min: r.Power, max: r.Power}
			buckets[label] = b
		}
		b.sum += r.Power
		b.count++
		if r.Power < b.min {
			b.min = r.Power
		}
		if r.Power > b.max {
			b.max = r.Power
		}
	}

	stats := make([]model.TimeBucketStat, 0, len(buckets))
	for label, b := range buckets {
		stats = append(stats, model.TimeBucketStat{
			Timestamp: label,
			Power:     round2(b.sum / float64(b.count)),
			MaxPower:  b.max,
			MinPower:  b.min,
			Count:     b.count,
		})
	}

	// 分桶标签按字典序即按时间升序
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Timestamp < stats[j].Timestamp
	})

	return stats, nil
}

// Series 统计曲线图数据点（仅平均功率）
func (a *Aggregator) Series(ctx context.Context, start time.Time, unit Unit) ([]model.TimeSeriesPoint, error) {
	readings, err := a.store.QueryRange(ctx, start, "")
	if err != nil {
		return nil, err
	}

	type acc struct {
		sum   float64
		count int
	}

	buckets := make(map[string]*acc)
	for _, r := range readings {
		label := seriesLabel(r.Timestamp, unit)
		b, ok := buckets[label]
		if !ok {
			b = &acc{}
			buckets[label] = b
		}
		b.sum += r.Power
		b.count++
	}

	points := make([]model.TimeSeriesPoint, 0, len(buckets))
	for label, b := range buckets {
		points = append(points, model.TimeSeriesPoint{
			Timestamp: label,
			Value:     round2(b.sum / float64(b.count)),
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})

	return points, nil
}

// PeriodSummary 计算周期统计汇总
//
// 今日耗电量按自本地零点起的平均功率积分；周/月按今日线性外推
// （week = today×7，month = today×30），与面板既有口径保持一致，
// 并非真实的 7/30 天窗口求和。
// 任何存储错误都降级为零值结构，不向调用方抛出。
func (a *Aggregator) PeriodSummary(ctx context.Context, period string) *model.PeriodSummary {
	now := a.now()

	start, err := WindowStart(period, now)
	if err != nil {
		// 未知周期回落到 24h
		start = now.Add(-24 * time.Hour)
	}

	readings, err := a.store.QueryRange(ctx, start, "")
	if err != nil {
		a.logger.Error("Failed to fetch readings for period summary",
			zap.String("period", period),
			zap.Error(err),
		)
		return model.EmptyPeriodSummary()
	}
	if len(readings) == 0 {
		return model.EmptyPeriodSummary()
	}

	var sum float64
	for _, r := range readings {
		sum += r.Power
	}
	avgPower := sum / float64(len(readings))

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var todaySum float64
	var todayCount int
	for _, r := range readings {
		if !r.Timestamp.Before(todayStart) {
			todaySum += r.Power
			todayCount++
		}
	}
	var todayAvg float64
	if todayCount > 0 {
		todayAvg = todaySum / float64(todayCount)
	}

	todayHours := now.Sub(todayStart).Hours()
	todayKwh := todayAvg * todayHours / 1000

	return &model.PeriodSummary{
		Current: model.CurrentStats{
			Power: round2(avgPower),
			Today: round2(todayKwh),
			Week:  round2(todayKwh * 7),
			Month: round2(todayKwh * 30),
		},
		History: model.PeriodHistory{
			Hourly:  a.seriesOrEmpty(ctx, start, UnitHour),
			Daily:   a.seriesOrEmpty(ctx, start, UnitDay),
			Monthly: a.seriesOrEmpty(ctx, start.Add(-365*24*time.Hour), UnitMonth),
		},
	}
}

// seriesOrEmpty 查询失败时降级为空曲线
func (a *Aggregator) seriesOrEmpty(ctx context.Context, start time.Time, unit Unit) []model.TimeSeriesPoint {
	points, err := a.Series(ctx, start, unit)
	if err != nil {
		a.logger.Error("Failed to aggregate series",
			zap.String("unit", string(unit)),
			zap.Error(err),
		)
		return []model.TimeSeriesPoint{}
	}
	return points
}

// bucketLabel 分桶起点标签（/stats 响应格式）
func bucketLabel(t time.Time, unit Unit) string {
	switch unit {
	case UnitDay:
		return t.UTC().Format("2006-01-02")
	case UnitMonth:
		return t.UTC().Format("2006-01")
	default:
		return t.UTC().Format("2006-01-02T15:00:00Z")
	}
}

// seriesLabel 曲线图分桶标签
func seriesLabel(t time.Time, unit Unit) string {
	switch unit {
	case UnitDay:
		return t.UTC().Format("2006-01-02")
	case UnitMonth:
		return t.UTC().Format("2006-01")
	default:
		return t.UTC().Truncate(time.Hour).Format("2006-01-02T15:04:05.000Z")
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
