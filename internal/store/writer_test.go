package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/model"
)

type recordingStore struct {
	mu      sync.Mutex
	batches [][]model.Reading
	err     error
}

func (s *recordingStore) AppendBatch(ctx context.Context, readings []model.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, readings)
	return s.err
}

func (s *recordingStore) QueryRange(ctx context.Context, start time.Time, channelID string) ([]model.Reading, error) {
	return nil, nil
}

func (s *recordingStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func writerConfig(bufferSize, workers int) config.StoreConfig {
	return config.StoreConfig{
		BufferSize:   bufferSize,
		Workers:      workers,
		WriteTimeout: time.Second,
	}
}

func batch(channelID string, powers ...float64) []model.Reading {
	readings := make([]model.Reading, 0, len(powers))
	for _, p := range powers {
		readings = append(readings, model.Reading{
			ChannelID: channelID,
			Timestamp: time.Now(),
			Power:     p,
			Voltage:   230,
		})
	}
	return readings
}

func TestAsyncWriter_FlushesBatches(t *testing.T) {
	store := &recordingStore{}
	writer := NewAsyncWriter(store, writerConfig(16, 2), zap.NewNop())

	writer.Enqueue(batch("d1-relay0", 100, 200))
	writer.Enqueue(batch("d1-relay1", 50))
	writer.Stop()

	require.Equal(t, 2, store.batchCount())
}

func TestAsyncWriter_DropWhenFull(t *testing.T) {
	store := &recordingStore{}
	// 没有工作协程消费，第二批必然被丢弃
	writer := NewAsyncWriter(store, writerConfig(1, 0), zap.NewNop())

	writer.Enqueue(batch("d1-relay0", 100))
	writer.Enqueue(batch("d1-relay0", 200))
	writer.Stop()

	assert.Equal(t, 0, store.batchCount())
}

func TestAsyncWriter_ContinuesAfterError(t *testing.T) {
	store := &recordingStore{err: errors.New("write refused")}
	writer := NewAsyncWriter(store, writerConfig(16, 1), zap.NewNop())

	writer.Enqueue(batch("d1-relay0", 100))
	writer.Enqueue(batch("d1-relay0", 200))
	writer.Stop()

	// 写入失败不重试也不中断工作协程
	assert.Equal(t, 2, store.batchCount())
}

func TestAsyncWriter_EnqueueEmptyIsNoop(t *testing.T) {
	store := &recordingStore{}
	writer := NewAsyncWriter(store, writerConfig(16, 1), zap.NewNop())

	writer.Enqueue(nil)
	writer.Enqueue([]model.Reading{})
	writer.Stop()

	assert.Equal(t, 0, store.batchCount())
}

func TestAsyncWriter_StopIsIdempotent(t *testing.T) {
	writer := NewAsyncWriter(&recordingStore{}, writerConfig(16, 1), zap.NewNop())
	writer.Stop()
	writer.Stop()
}
