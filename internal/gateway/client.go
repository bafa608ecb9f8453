package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/sessions"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256

	defaultMaxFrameBytes = 512 * 1024
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

// Client is one WebSocket connection. It implements sessions.Conn; its
// attachment survives actor rebuilds.
type Client struct {
	id      string
	conn    *websocket.Conn
	server  *Server
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	att    sessions.Session
	closed bool
	done   chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, s *Server, sess sessions.Session) *Client {
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, sendBuffer),
		att:    sess,
		done:   make(chan struct{}),
	}
	if perSec := s.cfg.Gateway.RateLimitPerSecond; perSec > 0 {
		burst := s.cfg.Gateway.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	return c
}

func (c *Client) ID() string { return c.id }

// Send queues a frame without blocking. A full buffer means the peer is not
// keeping up; the caller drops the connection.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSlowClient
	}
}

func (c *Client) Attachment() sessions.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.att
}

func (c *Client) SetAttachment(s sessions.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.att = s
}

// Run pumps frames until the peer goes away or ctx is done.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()

	maxBytes := c.server.cfg.Gateway.MaxFrameBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxFrameBytes
	}
	c.conn.SetReadLimit(maxBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("gateway.client.read_failed", "id", c.id, "error", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			typ, _ := protocol.PeekType(data)
			c.sendFrame(protocol.ErrorFrame{Code: "rate_limited", Message: "too many messages", RequestType: typ})
			continue
		}
		c.server.hub.Dispatch(ctx, c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("gateway.client.write_failed", "id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendFrame(ev protocol.Outbound) {
	frame, err := protocol.EncodeOutbound(ev)
	if err != nil {
		slog.Error("gateway.encode_failed", "type", ev.OutboundType(), "error", err)
		return
	}
	if err := c.Send(frame); err != nil {
		slog.Debug("gateway.client.send_failed", "id", c.id, "error", err)
	}
}

// reject reports an attach failure and closes the connection.
func (c *Client) reject(err error) {
	reason := apperr.MessageOf(err)
	if len(reason) > 120 {
		reason = reason[:120]
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode(err), reason))
	c.conn.Close()
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
