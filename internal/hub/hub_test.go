package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, conn *Connection) string {
	t.Helper()
	select {
	case data := <-conn.Send:
		return string(data)
	case <-time.After(time.Second):
		t.Fatal("expected frame")
		return ""
	}
}

func TestHubPublishReachesViewConnections(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	a := h.NewConnection(nil, "v1")
	b := h.NewConnection(nil, "v2")
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.GetConnectionCount())

	require.NoError(t, h.Publish("v1", 1, map[string]string{"type": "transcript"}))
	assert.JSONEq(t, `{"type":"transcript"}`, receive(t, a))

	select {
	case data := <-b.Send:
		t.Fatalf("unexpected frame for v2: %s", data)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubRegisterIsVisibleOnReturn(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	conn := h.NewConnection(nil, "v1")
	h.Register(conn)
	assert.True(t, h.HasActiveConnections("v1"))
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	conn := h.NewConnection(nil, "v1")
	h.Register(conn)

	h.Unregister(conn)
	waitFor(t, func() bool { return !h.HasActiveConnections("v1") })

	_, ok := <-conn.Send
	assert.False(t, ok)
	assert.NoError(t, h.Deliver(conn, 9, "late"))
}

func TestHubPublishWithoutListenersIsNoop(t *testing.T) {
	h := NewHub()
	assert.NoError(t, h.Publish("nobody", 1, map[string]int{"n": 1}))
	assert.Equal(t, 0, h.GetConnectionCount())
}

func TestHubDropsOlderRevisions(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	conn := h.NewConnection(nil, "v1")
	h.Register(conn)

	require.NoError(t, h.Publish("v1", 5, "new"))
	waitFor(t, func() bool { return conn.LastRevision() == 5 })

	// An initial frame rendered before the publish arrives late.
	require.NoError(t, h.Deliver(conn, 4, "old"))
	require.NoError(t, h.Deliver(conn, 5, "same"))
	require.NoError(t, h.Deliver(conn, 6, "newer"))

	assert.Equal(t, `"new"`, receive(t, conn))
	assert.Equal(t, `"newer"`, receive(t, conn))
	assert.Equal(t, uint64(6), conn.LastRevision())
}

func TestDeliverBufferFull(t *testing.T) {
	h := NewHub()
	conn := h.NewConnection(nil, "v1")
	conn.Send = make(chan []byte, 1)

	require.NoError(t, h.Deliver(conn, 1, "first"))
	assert.ErrorIs(t, h.Deliver(conn, 2, "second"), ErrBufferFull)
	assert.Equal(t, uint64(1), conn.LastRevision())
}
