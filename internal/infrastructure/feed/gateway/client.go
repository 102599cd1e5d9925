package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

const (
	readWait     = 60 * time.Second
	pingPeriod   = 25 * time.Second
	writeTimeout = 5 * time.Second
)

// request is an outbound frame. Every request carries a fresh id; the
// gateway echoes it on the matching response.
type request struct {
	ID       string `json:"id"`
	Op       string `json:"op"`
	Symbol   string `json:"symbol,omitempty"`
	End      int64  `json:"end,omitempty"`      // unix seconds
	Duration int64  `json:"duration,omitempty"` // seconds
}

// frame is any inbound message: a correlated response (id set) or an
// unsolicited position push (op "position").
type frame struct {
	ID        string                 `json:"id,omitempty"`
	Op        string                 `json:"op,omitempty"`
	OK        bool                   `json:"ok,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Bars      []model.Bar            `json:"bars,omitempty"`
	Positions []model.PositionUpdate `json:"positions,omitempty"`
	Position  *model.PositionUpdate  `json:"position,omitempty"`
}

// Client speaks the gateway's JSON protocol over a single websocket.
// One goroutine owns reads; writes are serialized by writeMu; responses
// are routed back to waiting callers through the pending map.
type Client struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan frame

	writeMu sync.Mutex

	connected atomic.Bool
	updates   chan model.PositionUpdate
}

func New(wsURL string) *Client {
	return &Client{
		url:     strings.TrimSpace(wsURL),
		pending: make(map[string]chan frame),
		updates: make(chan model.PositionUpdate, 256),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	if c.url == "" {
		return &port.ConnectionError{Err: errors.New("gateway url empty")}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return &port.ConnectionError{Err: err}
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	go c.readLoop(conn)
	return nil
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Updates delivers pushed position frames. The channel is owned by the
// client and stays open across reconnects; there is one consumer.
func (c *Client) Updates() <-chan model.PositionUpdate { return c.updates }

func (c *Client) FetchBars(ctx context.Context, symbol string, end time.Time, duration time.Duration) ([]model.Bar, error) {
	resp, err := c.roundTrip(ctx, request{
		Op:       "fetch_bars",
		Symbol:   symbol,
		End:      end.Unix(),
		Duration: int64(duration / time.Second),
	})
	if err != nil {
		return nil, &port.FetchError{Symbol: symbol, Err: err}
	}
	return resp.Bars, nil
}

func (c *Client) RequestPositions(ctx context.Context) ([]model.PositionUpdate, error) {
	resp, err := c.roundTrip(ctx, request{Op: "positions"})
	if err != nil {
		return nil, &port.FetchError{Err: err}
	}
	return resp.Positions, nil
}

func (c *Client) roundTrip(ctx context.Context, req request) (frame, error) {
	if !c.connected.Load() {
		return frame{}, port.ErrNotConnected
	}

	req.ID = uuid.NewString()
	ch := make(chan frame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return frame{}, port.ErrNotConnected
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := c.write(conn, req); err != nil {
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return frame{}, port.ErrNotConnected
		}
		if !resp.OK {
			return frame{}, fmt.Errorf("gateway: %s", resp.Error)
		}
		return resp, nil
	}
}

func (c *Client) write(conn *websocket.Conn, req request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		pingTicker := time.NewTicker(pingPeriod)
		defer pingTicker.Stop()
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				c.writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
				c.writeMu.Unlock()
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			c.dropConn(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		c.dispatch(b)
	}
}

func (c *Client) dispatch(b []byte) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		log.Error().Err(err).Msg("gateway frame unmarshal failed")
		return
	}

	if f.Op == "position" && f.Position != nil {
		select {
		case c.updates <- *f.Position:
		default:
			log.Warn().Str("symbol", f.Position.Symbol).Msg("position update dropped, consumer behind")
		}
		return
	}

	if f.ID == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if ok {
		ch <- f
	}
}

// dropConn marks the session down and fails every in-flight request so
// callers do not hang until their context expires.
func (c *Client) dropConn(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected.Store(false)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	_ = conn.Close()
	if !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("gateway session closed")
	}
}

var _ port.Feed = (*Client)(nil)
