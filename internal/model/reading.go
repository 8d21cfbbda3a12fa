// Package model 定义数据模型
package model

import (
	"encoding/json"
	"time"
)

// Reading 单条功率读数
type Reading struct {
	// 通道 ID（设备 + 继电器索引）
	ChannelID string `json:"channelId"`
	// 设备 ID
	DeviceID string `json:"deviceId"`
	// 继电器索引
	RelayIndex int `json:"relayIndex"`
	// 测量时间
	Timestamp time.Time `json:"timestamp"`
	// 功率（瓦）
	Power float64 `json:"power"`
	// 电流（安）
	Current float64 `json:"current"`
	// 电压（伏）
	Voltage float64 `json:"voltage"`
}

// DevicePayload 多通道设备上报（Shelly 脚本格式）
type DevicePayload struct {
	DeviceID  string           `json:"deviceId"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Channels  []ChannelPayload `json:"channels"`
}

// ChannelPayload 单个继电器通道的上报数据
type ChannelPayload struct {
	Relay   int     `json:"relay"`
	Power   float64 `json:"power"`
	Current float64 `json:"current"`
	Voltage float64 `json:"voltage"`
}

// FlatPayload 单通道主题的扁平上报格式
type FlatPayload struct {
	Timestamp int64   `json:"timestamp,omitempty"`
	Power     float64 `json:"power"`
	Current   float64 `json:"current"`
	Voltage   float64 `json:"voltage"`
}

// Snapshot 实时状态快照
type Snapshot struct {
	// 各通道最新读数
	Devices map[string]Reading `json:"devices"`
	// 总功率（瓦）
	TotalPower float64 `json:"totalPower"`
	// 总电流（安）
	TotalCurrent float64 `json:"totalCurrent"`
	// 快照时间（毫秒）
	Timestamp int64 `json:"timestamp"`
}

// TimeBucketStat 时间分桶统计
type TimeBucketStat struct {
	// 分桶起点（格式随分桶粒度变化）
	Timestamp string  `json:"timestamp"`
	Power     float64 `json:"power"`
	MaxPower  float64 `json:"maxPower"`
	MinPower  float64 `json:"minPower"`
	Count     int     `json:"count"`
}

// TimeSeriesPoint 曲线图数据点（仅平均值）
type TimeSeriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// CurrentStats 当前周期统计
type CurrentStats struct {
	// 窗口内平均功率（瓦）
	Power float64 `json:"power"`
	// 今日耗电量（千瓦时）
	Today float64 `json:"today"`
	// 按今日线性外推的周耗电量
	Week float64 `json:"week"`
	// 按今日线性外推的月耗电量
	Month float64 `json:"month"`
}

// PeriodHistory 周期统计的历史曲线
type PeriodHistory struct {
	Hourly  []TimeSeriesPoint `json:"hourly"`
	Daily   []TimeSeriesPoint `json:"daily"`
	Monthly []TimeSeriesPoint `json:"monthly"`
}

// PeriodSummary 周期统计汇总
type PeriodSummary struct {
	Current CurrentStats  `json:"current"`
	History PeriodHistory `json:"history"`
}

// EmptyPeriodSummary 返回结构完整的零值统计
func EmptyPeriodSummary() *PeriodSummary {
	return &PeriodSummary{
		History: PeriodHistory{
			Hourly:  []TimeSeriesPoint{},
			Daily:   []TimeSeriesPoint{},
			Monthly: []TimeSeriesPoint{},
		},
	}
}

// WebSocket 消息类型
const (
	MessageTypeInitialData = "initial_data"
	MessageTypePowerUpdate = "power_update"
)

// WebSocketMessage 推送给面板客户端的消息
type WebSocketMessage struct {
	Type string   `json:"type"`
	Data Snapshot `json:"data"`
}

// ToJSON 转换为 JSON
func (m *WebSocketMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
