package hub

import (
	"encoding/json"
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

type fakeConn struct {
	mu         sync.Mutex
	messages   [][]byte
	failWrites bool
	closed     bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("broken pipe")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.messages = append(c.messages, buf)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *fakeConn) message(i int) model.WebSocketMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var msg model.WebSocketMessage
	_ = json.Unmarshal(c.messages[i], &msg)
	return msg
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestHub(snapshot model.Snapshot) *Hub {
	return NewHub(
		func() model.Snapshot { return snapshot },
		config.HubConfig{MessageBufferSize: 16},
		zap.NewNop(),
	)
}

func TestHub_InitialSnapshotFirst(t *testing.T) {
	h := newTestHub(model.Snapshot{TotalPower: 42.5, Devices: map[string]model.Reading{}})
	defer h.Shutdown()

	conn := &fakeConn{}
	h.Register(conn)

	require.Eventually(t, func() bool { return conn.count() >= 1 }, time.Second, 5*time.Millisecond)

	// 注册后的第一条消息一定是初始快照
	first := conn.message(0)
	assert.Equal(t, model.MessageTypeInitialData, first.Type)
	assert.Equal(t, 42.5, first.Data.TotalPower)
}

func TestHub_BroadcastToAll(t *testing.T) {
	h := newTestHub(model.Snapshot{Devices: map[string]model.Reading{}})
	defer h.Shutdown()

	conn1 := &fakeConn{}
	conn2 := &fakeConn{}
	h.Register(conn1)
	h.Register(conn2)

	h.Broadcast(model.Snapshot{TotalPower: 100, Devices: map[string]model.Reading{}})

	require.Eventually(t, func() bool {
		return conn1.count() >= 2 && conn2.count() >= 2
	}, time.Second, 5*time.Millisecond)

	for _, conn := range []*fakeConn{conn1, conn2} {
		update := conn.message(1)
		assert.Equal(t, model.MessageTypePowerUpdate, update.Type)
		assert.Equal(t, 100.0, update.Data.TotalPower)
	}
}

func TestHub_PruneFailingClient(t *testing.T) {
	h := newTestHub(model.Snapshot{Devices: map[string]model.Reading{}})
	defer h.Shutdown()

	conn1 := &fakeConn{}
	conn2 := &fakeConn{failWrites: true}
	conn3 := &fakeConn{}
	h.Register(conn1)
	h.Register(conn2)
	h.Register(conn3)

	h.Broadcast(model.Snapshot{TotalPower: 100, Devices: map[string]model.Reading{}})

	// 写失败的客户端被剔除，其余客户端不受影响
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return conn1.count() >= 2 && conn3.count() >= 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, conn2.isClosed())
}

func TestHub_Unregister(t *testing.T) {
	h := newTestHub(model.Snapshot{Devices: map[string]model.Reading{}})
	defer h.Shutdown()

	conn := &fakeConn{}
	client := h.Register(conn)
	require.Equal(t, 1, h.ClientCount())

	h.Unregister(client)
	assert.Equal(t, 0, h.ClientCount())
	assert.True(t, conn.isClosed())

	// 重复注销无副作用
	h.Unregister(client)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_Shutdown(t *testing.T) {
	h := newTestHub(model.Snapshot{Devices: map[string]model.Reading{}})

	conn1 := &fakeConn{}
	conn2 := &fakeConn{}
	h.Register(conn1)
	h.Register(conn2)

	h.Shutdown()

	assert.Equal(t, 0, h.ClientCount())
	assert.True(t, conn1.isClosed())
	assert.True(t, conn2.isClosed())
}
