package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/model"
	"github.com/noisysource/house-dashboard/internal/state"
)

const structuredTopic = "house-dashboard.power.shelly2pm"

type fakeSink struct {
	batches [][]model.Reading
}

func (f *fakeSink) Enqueue(readings []model.Reading) {
	f.batches = append(f.batches, readings)
}

type fakeHub struct {
	snapshots []model.Snapshot
}

func (f *fakeHub) Broadcast(snapshot model.Snapshot) {
	f.snapshots = append(f.snapshots, snapshot)
}

type fakeCache struct {
	stored []model.Snapshot
}

func (f *fakeCache) Store(ctx context.Context, snapshot model.Snapshot) error {
	f.stored = append(f.stored, snapshot)
	return nil
}

func newTestConsumer(st *state.Store, sink *fakeSink, hub *fakeHub, cache SnapshotCache) *Consumer {
	return NewConsumer(
		config.KafkaConfig{StructuredTopic: structuredTopic},
		config.PowerConfig{NominalVoltage: 230},
		st,
		sink,
		hub,
		cache,
		zap.NewNop(),
	)
}

func TestConsumer_HandleStructuredPayload(t *testing.T) {
	st := state.NewStore()
	sink := &fakeSink{}
	hub := &fakeHub{}
	consumer := newTestConsumer(st, sink, hub, nil)

	payload := `{"deviceId":"d1","channels":[
		{"relay":0,"power":100,"current":0.43,"voltage":231.5},
		{"relay":1,"power":50,"current":0.22,"voltage":229.8}
	]}`
	consumer.Handle(structuredTopic, []byte(payload))

	snapshot := st.Snapshot()
	require.Len(t, snapshot.Devices, 2)
	assert.Equal(t, 100.0, snapshot.Devices["d1-relay0"].Power)
	assert.Equal(t, 50.0, snapshot.Devices["d1-relay1"].Power)
	assert.InDelta(t, 150.0, snapshot.TotalPower, 1e-9)

	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 2)

	require.Len(t, hub.snapshots, 1)
	assert.InDelta(t, 150.0, hub.snapshots[0].TotalPower, 1e-9)
}

func TestConsumer_HandleMalformedPayload(t *testing.T) {
	st := state.NewStore()
	sink := &fakeSink{}
	hub := &fakeHub{}
	consumer := newTestConsumer(st, sink, hub, nil)

	consumer.Handle(structuredTopic, []byte("not json"))

	// 畸形消息被丢弃，不产生任何副作用
	assert.Equal(t, 0, st.Len())
	assert.Empty(t, sink.batches)
	assert.Empty(t, hub.snapshots)
}

func TestConsumer_HandleEmptyChannels(t *testing.T) {
	st := state.NewStore()
	sink := &fakeSink{}
	hub := &fakeHub{}
	consumer := newTestConsumer(st, sink, hub, nil)

	consumer.Handle(structuredTopic, []byte(`{"deviceId":"d1","channels":[]}`))

	assert.Equal(t, 0, st.Len())
	assert.Empty(t, hub.snapshots)
}

func TestConsumer_HandleMissingDeviceID(t *testing.T) {
	st := state.NewStore()
	consumer := newTestConsumer(st, &fakeSink{}, &fakeHub{}, nil)

	consumer.Handle(structuredTopic, []byte(`{"channels":[{"relay":0,"power":10}]}`))

	snapshot := st.Snapshot()
	require.Len(t, snapshot.Devices, 1)
	_, ok := snapshot.Devices["unknown-device-relay0"]
	assert.True(t, ok)
}

func TestConsumer_VoltageDefault(t *testing.T) {
	st := state.NewStore()
	consumer := newTestConsumer(st, &fakeSink{}, &fakeHub{}, nil)

	payload := `{"deviceId":"d1","channels":[
		{"relay":0,"power":100,"voltage":0},
		{"relay":1,"power":50,"voltage":233.2}
	]}`
	consumer.Handle(structuredTopic, []byte(payload))

	snapshot := st.Snapshot()
	assert.Equal(t, 230.0, snapshot.Devices["d1-relay0"].Voltage)
	assert.Equal(t, 233.2, snapshot.Devices["d1-relay1"].Voltage)
}

func TestConsumer_HandleFlatPayload(t *testing.T) {
	st := state.NewStore()
	sink := &fakeSink{}
	consumer := newTestConsumer(st, sink, &fakeHub{}, nil)

	consumer.Handle("house/power/garage/heater", []byte(`{"power":1200,"current":5.2}`))

	snapshot := st.Snapshot()
	require.Len(t, snapshot.Devices, 1)
	reading := snapshot.Devices["garage-heater"]
	assert.Equal(t, "garage", reading.DeviceID)
	assert.Equal(t, 1200.0, reading.Power)
	assert.Equal(t, 230.0, reading.Voltage)
}

func TestConsumer_PayloadTimestamp(t *testing.T) {
	st := state.NewStore()
	consumer := newTestConsumer(st, &fakeSink{}, &fakeHub{}, nil)

	consumer.Handle(structuredTopic, []byte(
		`{"deviceId":"d1","timestamp":1773136800000,"channels":[{"relay":0,"power":10}]}`,
	))

	snapshot := st.Snapshot()
	reading := snapshot.Devices["d1-relay0"]
	assert.Equal(t, time.UnixMilli(1773136800000), reading.Timestamp)
}

func TestConsumer_SnapshotMirror(t *testing.T) {
	st := state.NewStore()
	cache := &fakeCache{}
	consumer := newTestConsumer(st, &fakeSink{}, &fakeHub{}, cache)

	consumer.Handle(structuredTopic, []byte(`{"deviceId":"d1","channels":[{"relay":0,"power":10}]}`))

	require.Len(t, cache.stored, 1)
	assert.InDelta(t, 10.0, cache.stored[0].TotalPower, 1e-9)
}

func TestChannelFromTopic(t *testing.T) {
	tests := []struct {
		topic     string
		deviceID  string
		channelID string
	}{
		{"house/power/garage/heater", "garage", "garage-heater"},
		{"house.power.garage.heater", "garage", "garage-heater"},
		{"garage/heater", "garage", "garage-heater"},
		{"single", "single", "single"},
	}
	for _, tt := range tests {
		deviceID, channelID := channelFromTopic(tt.topic)
		assert.Equal(t, tt.deviceID, deviceID, tt.topic)
		assert.Equal(t, tt.channelID, channelID, tt.topic)
	}
}
