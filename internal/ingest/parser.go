package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noisysource/house-dashboard/internal/model"
)

// parse 把原始负载解析为零或多条读数
//
// 结构化主题携带嵌套的多通道负载；其余主题按扁平单通道负载处理，
// 通道 ID 由主题路径末两段推导。
func (c *Consumer) parse(topic string, payload []byte, now time.Time) ([]model.Reading, error) {
	if topic == c.cfg.StructuredTopic {
		return c.parseStructured(payload, now)
	}
	return c.parseFlat(topic, payload, now)
}

// parseStructured 解析多通道设备负载
func (c *Consumer) parseStructured(payload []byte, now time.Time) ([]model.Reading, error) {
	var device model.DevicePayload
	if err := json.Unmarshal(payload, &device); err != nil {
		return nil, fmt.Errorf("invalid device payload: %w", err)
	}
	if len(device.Channels) == 0 {
		// 没有通道数组的消息不处理
		return nil, nil
	}

	deviceID := device.DeviceID
	if deviceID == "" {
		deviceID = "unknown-device"
	}
	timestamp := payloadTime(device.Timestamp, now)

	readings := make([]model.Reading, 0, len(device.Channels))
	for _, channel := range device.Channels {
		readings = append(readings, model.Reading{
			ChannelID:  fmt.Sprintf("%s-relay%d", deviceID, channel.Relay),
			DeviceID:   deviceID,
			RelayIndex: channel.Relay,
			Timestamp:  timestamp,
			Power:      channel.Power,
			Current:    channel.Current,
			Voltage:    c.voltageOrNominal(channel.Voltage),
		})
	}
	return readings, nil
}

// parseFlat 解析扁平单通道负载
func (c *Consumer) parseFlat(topic string, payload []byte, now time.Time) ([]model.Reading, error) {
	var flat model.FlatPayload
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, fmt.Errorf("invalid flat payload: %w", err)
	}

	deviceID, channelID := channelFromTopic(topic)

	return []model.Reading{{
		ChannelID: channelID,
		DeviceID:  deviceID,
		Timestamp: payloadTime(flat.Timestamp, now),
		Power:     flat.Power,
		Current:   flat.Current,
		Voltage:   c.voltageOrNominal(flat.Voltage),
	}}, nil
}

// channelFromTopic 由主题路径末两段推导通道标识
func channelFromTopic(topic string) (deviceID, channelID string) {
	normalized := strings.ReplaceAll(topic, "/", ".")
	segments := strings.Split(normalized, ".")
	if len(segments) >= 2 {
		deviceID = segments[len(segments)-2]
		channelID = deviceID + "-" + segments[len(segments)-1]
		return deviceID, channelID
	}
	return topic, topic
}

// voltageOrNominal 电压缺省为市电标称值
func (c *Consumer) voltageOrNominal(voltage float64) float64 {
	if voltage == 0 {
		return c.nominalVoltage
	}
	return voltage
}

// payloadTime 负载自带时间戳（毫秒）优先，否则用接收时间
func payloadTime(millis int64, now time.Time) time.Time {
	if millis > 0 {
		return time.UnixMilli(millis)
	}
	return now
}
