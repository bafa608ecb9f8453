// Package mcp bridges an agent's selected MCP servers into turn-local tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
)

const (
	defaultConnectTimeout = 15 * time.Second
	defaultCallTimeout    = 60 * time.Second
)

// Bridge opens per-turn MCP sessions.
type Bridge struct {
	connectTimeout time.Duration
	callTimeout    time.Duration
	clientName     string
	clientVersion  string
}

type Option func(*Bridge)

func WithConnectTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.connectTimeout = d }
}

func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.callTimeout = d }
}

func WithClientInfo(name, version string) Option {
	return func(b *Bridge) { b.clientName, b.clientVersion = name, version }
}

func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		connectTimeout: defaultConnectTimeout,
		callTimeout:    defaultCallTimeout,
		clientName:     "roomclaw",
		clientVersion:  "dev",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Session holds the clients connected for one agent turn.
type Session struct {
	mu      sync.Mutex
	clients map[string]*mcpclient.Client
	tools   []tools.Tool
}

// Tools returns the bridged tools, ordered by server then tool name.
func (s *Session) Tools() []tools.Tool {
	if s == nil {
		return nil
	}
	return s.tools
}

// Close closes every client of the session.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		if err := c.Close(); err != nil {
			slog.Debug("mcp.server.close_error", "server", id, "error", err)
		}
	}
	s.clients = nil
}

// Open connects concurrently to every server the selection enables and
// registers the selected tools. A server that fails to connect is logged and
// skipped; Open itself only fails if ctx is done.
func (b *Bridge) Open(ctx context.Context, servers []store.MCPServerData, selection map[string]store.ToolSelection) (*Session, error) {
	sess := &Session{clients: make(map[string]*mcpclient.Client)}

	var targets []store.MCPServerData
	for _, srv := range servers {
		if sel, ok := selection[srv.ID]; ok && sel.Enabled() {
			targets = append(targets, srv)
		}
	}
	if len(targets) == 0 {
		return sess, nil
	}

	perServer := make([][]tools.Tool, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range targets {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, b.connectTimeout)
			defer cancel()

			client, discovered, err := b.connect(cctx, srv)
			if err != nil {
				slog.Warn("mcp.server.connect_failed", "server", srv.Name, "url", srv.URL, "error", err)
				return nil
			}
			sess.mu.Lock()
			sess.clients[srv.ID] = client
			sess.mu.Unlock()

			sel := selection[srv.ID]
			for _, t := range discovered {
				if !sel.Allows(t.Name) {
					continue
				}
				perServer[i] = append(perServer[i], NewBridgeTool(srv, t, client, b.callTimeout))
			}
			slog.Info("mcp.server.connected", "server", srv.Name, "transport", srv.Transport, "tools", len(perServer[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sess.Close()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("open mcp session: %w", err)
	}

	seen := make(map[string]bool)
	for _, ts := range perServer {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Name() < ts[j].Name() })
		for _, t := range ts {
			if seen[t.Name()] {
				slog.Warn("mcp.tool.name_collision", "tool", t.Name(), "action", "skipped")
				continue
			}
			seen[t.Name()] = true
			sess.tools = append(sess.tools, t)
		}
	}
	return sess, nil
}
