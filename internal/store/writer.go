package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/metrics"
	"github.com/noisysource/house-dashboard/internal/model"
)

// AsyncWriter 异步持久化写入器
//
// 摄入路径通过有界缓冲区投递写入请求，写满即丢弃并记录，
// 保证慢存储永远不会阻塞实时路径。
type AsyncWriter struct {
	store  ReadingStore
	logger *zap.Logger
	buffer chan []model.Reading

	writeTimeout time.Duration
	workers      int

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAsyncWriter 创建写入器并启动工作协程
func NewAsyncWriter(store ReadingStore, cfg config.StoreConfig, logger *zap.Logger) *AsyncWriter {
	w := &AsyncWriter{
		store:        store,
		logger:       logger,
		buffer:       make(chan []model.Reading, cfg.BufferSize),
		writeTimeout: cfg.WriteTimeout,
		workers:      cfg.Workers,
	}

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	return w
}

// Enqueue 投递一批读数，永不阻塞
//
// 缓冲区满时丢弃本批（有意的至多一次持久化语义）。
func (w *AsyncWriter) Enqueue(readings []model.Reading) {
	if len(readings) == 0 {
		return
	}

	select {
	case w.buffer <- readings:
	default:
		metrics.PersistDrops.Inc()
		w.logger.Warn("Write buffer full, dropping readings",
			zap.Int("count", len(readings)),
		)
	}
}

// Stop 停止写入器并刷完缓冲区中剩余的批次
func (w *AsyncWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.buffer)
	})
	w.wg.Wait()
}

// worker 工作协程
func (w *AsyncWriter) worker(id int) {
	defer w.wg.Done()

	for batch := range w.buffer {
		w.flush(batch)
	}
}

// flush 写入一批读数，失败只记录不重试
func (w *AsyncWriter) flush(batch []model.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if err := w.store.AppendBatch(ctx, batch); err != nil {
		metrics.PersistFailures.Inc()
		w.logger.Error("Failed to persist readings",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
		return
	}

	metrics.ReadingsPersisted.Add(float64(len(batch)))
}
