// Package metrics 提供 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesConsumed 消费的消息总数
	MessagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "power_messages_consumed_total",
			Help: "Total number of broker messages consumed",
		},
		[]string{"topic"},
	)

	// ParseFailures 负载解析失败总数
	ParseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "power_parse_failures_total",
			Help: "Total number of malformed payloads dropped",
		},
		[]string{"topic"},
	)

	// ReadingsIngested 摄入的读数总数
	ReadingsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "power_readings_ingested_total",
			Help: "Total number of readings applied to live state",
		},
	)

	// ReadingsPersisted 持久化成功的读数总数
	ReadingsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "power_readings_persisted_total",
			Help: "Total number of readings written to storage",
		},
	)

	// PersistFailures 持久化失败总数
	PersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "power_persist_failures_total",
			Help: "Total number of failed storage writes",
		},
	)

	// PersistDrops 写缓冲满而丢弃的批次总数
	PersistDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "power_persist_drops_total",
			Help: "Total number of batches dropped due to a full write buffer",
		},
	)

	// BroadcastsSent 广播总数
	BroadcastsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "power_broadcasts_total",
			Help: "Total number of snapshots broadcast to subscribers",
		},
	)

	// SubscribersPruned 被剔除的订阅者总数
	SubscribersPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "power_subscribers_pruned_total",
			Help: "Total number of subscribers removed after delivery failure",
		},
	)

	// ActiveSubscribers 当前订阅者数
	ActiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "power_active_subscribers",
			Help: "Number of connected dashboard clients",
		},
	)

	// TotalPower 当前总功率
	TotalPower = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "power_total_watts",
			Help: "Current total power across all channels",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesConsumed,
		ParseFailures,
		ReadingsIngested,
		ReadingsPersisted,
		PersistFailures,
		PersistDrops,
		BroadcastsSent,
		SubscribersPruned,
		ActiveSubscribers,
		TotalPower,
	)
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
