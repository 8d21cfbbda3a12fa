// Package state 维护各通道的实时读数状态
package state

import (
	"sync"
	"time"

	"github.com/noisysource/house-dashboard/internal/model"
)

// Store 通道实时状态存储
//
// 写入方只有消息摄入循环（单写多读），读取方为广播与查询接口。
type Store struct {
	mu       sync.RWMutex
	readings map[string]model.Reading
}

// NewStore 创建状态存储
func NewStore() *Store {
	return &Store{
		readings: make(map[string]model.Reading),
	}
}

// Update 覆盖写入通道的最新读数
func (s *Store) Update(reading model.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[reading.ChannelID] = reading
}

// Snapshot 返回一致的时点快照（含派生总量）
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make(map[string]model.Reading, len(s.readings))
	var totalPower, totalCurrent float64
	for id, reading := range s.readings {
		devices[id] = reading
		totalPower += reading.Power
		totalCurrent += reading.Current
	}

	return model.Snapshot{
		Devices:      devices,
		TotalPower:   totalPower,
		TotalCurrent: totalCurrent,
		Timestamp:    time.Now().UnixMilli(),
	}
}

// DeviceReadings 返回指定设备的全部通道读数
func (s *Store) DeviceReadings(deviceID string) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var readings []model.Reading
	for _, reading := range s.readings {
		if reading.DeviceID == deviceID {
			readings = append(readings, reading)
		}
	}
	return readings
}

// Len 当前通道数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
