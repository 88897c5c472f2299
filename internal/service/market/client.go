package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	xlogger "MoodTreasury/pkg/logger"
)

// snapshotMaxAge bounds how old a cached snapshot may be before Snapshot
// refuses to serve it. A stale snapshot must fail the decision cycle rather
// than silently sizing actions from dead data.
const snapshotMaxAge = 2 * time.Minute

// Client keeps a live market snapshot fed by the market data collaborator's
// WebSocket stream. Run maintains the connection, reconnecting after a
// delay; Snapshot serves the cached latest frame.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *xlogger.Logger

	mu         sync.RWMutex
	latest     models.MarketSignal
	receivedAt time.Time
	now        func() time.Time
}

// New creates a market data source over a WebSocket stream.
func New(url string, reconnectDelay, pingInterval time.Duration, log *xlogger.Logger) *Client {
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
		now:            time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (c *Client) SetNowFunc(now func() time.Time) { c.now = now }

type frame struct {
	Type string              `json:"type"`
	Data models.MarketSignal `json:"data"`
}

// Snapshot returns the latest received market signal. It fails when no
// frame has arrived yet or the cached one has gone stale.
func (c *Client) Snapshot(context.Context) (models.MarketSignal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.receivedAt.IsZero() {
		return models.MarketSignal{}, fmt.Errorf("market snapshot: no data received yet")
	}
	if age := c.now().Sub(c.receivedAt); age > snapshotMaxAge {
		return models.MarketSignal{}, fmt.Errorf("market snapshot: stale by %s", age)
	}
	return c.latest, nil
}

// Run connects and consumes the stream until ctx cancels, reconnecting
// after reconnectDelay on every failure.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.consume(ctx); err != nil {
			c.log.Warn("market stream interrupted", xlogger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// consume dials, pings, and reads frames until the connection drops or ctx
// cancels.
func (c *Client) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("market connect: %w", err)
	}
	defer conn.Close()
	c.log.Info("market stream connected", xlogger.String("url", c.url))

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	// unblock ReadMessage when ctx cancels
	go func() {
		<-pingCtx.Done()
		_ = conn.Close()
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("market read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			// ignore non-snapshot frames
			continue
		}
		if f.Type != "snapshot" {
			continue
		}
		c.mu.Lock()
		c.latest = f.Data
		c.receivedAt = c.now()
		c.mu.Unlock()
	}
}

var _ drepo.MarketDataSource = (*Client)(nil)
