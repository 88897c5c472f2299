package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MoodTreasury/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func TestSnapshotBeforeAnyFrame(t *testing.T) {
	c := New("ws://unused", time.Second, time.Second, newTestLogger(t))
	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestSnapshotFromStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// one junk frame, one snapshot
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"snapshot","data":{"price":1.25,"momentum":-0.02,"liquidity":50000}}`)))
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(url, 10*time.Millisecond, time.Minute, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		_, err := c.Snapshot(ctx)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	sig, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, sig.Price, 1e-9)
	assert.InDelta(t, -0.02, sig.Momentum, 1e-9)
	assert.InDelta(t, 50000.0, sig.Liquidity, 1e-9)
}

func TestSnapshotGoesStale(t *testing.T) {
	c := New("ws://unused", time.Second, time.Second, newTestLogger(t))
	base := time.Now()
	c.now = func() time.Time { return base }
	c.latest.Price = 2
	c.receivedAt = base

	_, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	c.now = func() time.Time { return base.Add(snapshotMaxAge + time.Second) }
	_, err = c.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")
}
