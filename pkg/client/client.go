// Package client is a small Go SDK for the roomclaw WebSocket protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

const readLimit = 4 << 20

// Options identify the session. Token may be empty when the gateway runs
// without auth.
type Options struct {
	URL            string // ws:// or wss:// base, e.g. ws://localhost:8790
	Token          string
	UserID         string
	OrganizationID string
	HTTPClient     *http.Client
}

// Conn is one session. Send is safe for concurrent use; Read is not.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// CloseError reports why the gateway closed the connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}

// Dial opens a session on the gateway's /ws endpoint.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.UserID == "" || opts.OrganizationID == "" {
		return nil, errors.New("client: user and organization are required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	}
	q := u.Query()
	q.Set("userId", opts.UserID)
	q.Set("organizationId", opts.OrganizationID)
	u.RawQuery = q.Encode()

	dopts := &websocket.DialOptions{HTTPClient: opts.HTTPClient}
	if opts.Token != "" {
		dopts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + opts.Token}}
	}
	ws, _, err := websocket.Dial(ctx, u.String(), dopts)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	ws.SetReadLimit(readLimit)
	return &Conn{ws: ws}, nil
}

// Send encodes and writes one inbound event.
func (c *Conn) Send(ctx context.Context, in protocol.Inbound) error {
	frame, err := protocol.EncodeInbound(in)
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", in.InboundType(), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, frame)
}

// Read blocks for the next outbound event. A close from the gateway is
// returned as *CloseError.
func (c *Conn) Read(ctx context.Context) (protocol.Outbound, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, err
	}
	return protocol.DecodeOutbound(data)
}

// Close ends the session normally.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
