package room

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/roomclaw/internal/agent"
	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/mcp"
	"github.com/nextlevelbuilder/roomclaw/internal/sessions"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

var orgIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidOrgID reports whether id can name an organization database.
func ValidOrgID(id string) bool { return orgIDPattern.MatchString(id) }

// HubConfig wires a Hub.
type HubConfig struct {
	DataDir   string
	Directory store.DirectoryStore // optional
	Runner    *agent.Runner
	Selector  *agent.Selector
	MCP       *mcp.Bridge
	Clock     Clock
	Settings  Settings
	// IdleTimeout is read on every sweep; zero disables eviction.
	IdleTimeout func() time.Duration
	// OpenStore overrides the per-organization SQLite database.
	OpenStore func(ctx context.Context, orgID string) (store.ActorStore, error)
}

// Hub owns one actor per organization and the live connections attached to
// each of them.
type Hub struct {
	cfg HubConfig

	mu     sync.Mutex
	actors map[string]*Actor
	conns  map[string]map[string]sessions.Conn
	closed bool
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.OpenStore == nil {
		dir := cfg.DataDir
		cfg.OpenStore = func(ctx context.Context, orgID string) (store.ActorStore, error) {
			return sqlite.Open(ctx, orgDBPath(dir, orgID))
		}
	}
	return &Hub{
		cfg:    cfg,
		actors: make(map[string]*Actor),
		conns:  make(map[string]map[string]sessions.Conn),
	}
}

func orgDBPath(dataDir, orgID string) string {
	return filepath.Join(dataDir, "orgs", orgID+".db")
}

// Start wakes every organization that has a database so persisted alarms
// fire without waiting for a connection, then runs the idle sweeper until
// ctx is done.
func (h *Hub) Start(ctx context.Context) error {
	if h.cfg.DataDir != "" {
		paths, err := filepath.Glob(filepath.Join(h.cfg.DataDir, "orgs", "*.db"))
		if err != nil {
			return fmt.Errorf("list org databases: %w", err)
		}
		for _, p := range paths {
			orgID := strings.TrimSuffix(filepath.Base(p), ".db")
			if !ValidOrgID(orgID) {
				continue
			}
			if _, err := h.Actor(ctx, orgID); err != nil {
				slog.Error("hub.actor.restore_failed", "org", orgID, "error", err)
			}
		}
	}
	go h.sweep(ctx)
	return nil
}

// Actor returns the organization's actor, creating it on first use.
func (h *Hub) Actor(ctx context.Context, orgID string) (*Actor, error) {
	if !ValidOrgID(orgID) {
		return nil, apperr.Invalid("invalid organization id %q", orgID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.actorLocked(ctx, orgID)
}

func (h *Hub) actorLocked(ctx context.Context, orgID string) (*Actor, error) {
	if h.closed {
		return nil, ErrActorStopped
	}
	if a, ok := h.actors[orgID]; ok {
		return a, nil
	}

	st, err := h.cfg.OpenStore(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("open store for %s: %w", orgID, err)
	}
	var conns []sessions.Conn
	for _, c := range h.conns[orgID] {
		conns = append(conns, c)
	}
	a, err := New(Deps{
		OrgID:     orgID,
		Store:     st,
		Directory: h.cfg.Directory,
		Runner:    h.cfg.Runner,
		Selector:  h.cfg.Selector,
		MCP:       h.cfg.MCP,
		Clock:     h.cfg.Clock,
		Settings:  h.cfg.Settings,
		Conns:     conns,
		OnFail:    h.rebuild,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	h.actors[orgID] = a
	return a, nil
}

// rebuild replaces a failed actor, re-deriving its sessions from the live
// connections of the organization.
func (h *Hub) rebuild(failed *Actor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.actors[failed.orgID] != failed {
		return
	}
	delete(h.actors, failed.orgID)
	if h.closed {
		return
	}
	if _, err := h.actorLocked(context.Background(), failed.orgID); err != nil {
		slog.Error("hub.actor.rebuild_failed", "org", failed.orgID, "error", err)
		return
	}
	slog.Warn("hub.actor.rebuilt", "org", failed.orgID, "sessions", len(h.conns[failed.orgID]))
}

// Attach authorizes conn's session against the directory and registers it
// with its organization's actor.
func (h *Hub) Attach(ctx context.Context, conn sessions.Conn) error {
	sess := conn.Attachment()
	if sess.UserID == "" {
		return apperr.Unauthorized("user id is required")
	}
	if !ValidOrgID(sess.OrganizationID) {
		return apperr.Invalid("invalid organization id %q", sess.OrganizationID)
	}
	if h.cfg.Directory != nil {
		ok, err := h.cfg.Directory.IsOrganizationMember(ctx, sess.OrganizationID, sess.UserID)
		if err != nil {
			return fmt.Errorf("check organization membership: %w", err)
		}
		if !ok {
			return apperr.Unauthorized("user %s is not a member of organization %s", sess.UserID, sess.OrganizationID)
		}
	}

	h.mu.Lock()
	a, err := h.actorLocked(ctx, sess.OrganizationID)
	if err == nil {
		if h.conns[sess.OrganizationID] == nil {
			h.conns[sess.OrganizationID] = make(map[string]sessions.Conn)
		}
		h.conns[sess.OrganizationID][conn.ID()] = conn
	}
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if !a.Attach(conn) {
		h.Detach(conn)
		return ErrActorStopped
	}
	return nil
}

// Dispatch decodes one inbound frame and hands it to conn's actor.
func (h *Hub) Dispatch(ctx context.Context, conn sessions.Conn, frame []byte) {
	ev, err := protocol.DecodeInbound(frame)
	if err != nil {
		typ, _ := protocol.PeekType(frame)
		reply(conn, protocol.ErrorFrame{
			Code:        string(apperr.KindInvalid),
			Message:     err.Error(),
			RequestType: typ,
		})
		return
	}
	a, err := h.Actor(ctx, conn.Attachment().OrganizationID)
	if err == nil && !a.Handle(conn, ev) {
		err = ErrActorStopped
	}
	if err != nil {
		reply(conn, errorFrame(ev.InboundType(), err))
	}
}

// Detach forgets conn. Turns already started keep running.
func (h *Hub) Detach(conn sessions.Conn) {
	orgID := conn.Attachment().OrganizationID
	h.mu.Lock()
	delete(h.conns[orgID], conn.ID())
	if len(h.conns[orgID]) == 0 {
		delete(h.conns, orgID)
	}
	a := h.actors[orgID]
	h.mu.Unlock()
	if a != nil {
		a.Detach(conn)
	}
}

func reply(conn sessions.Conn, ev protocol.Outbound) {
	frame, err := protocol.EncodeOutbound(ev)
	if err != nil {
		slog.Error("hub.encode_failed", "type", ev.OutboundType(), "error", err)
		return
	}
	if err := conn.Send(frame); err != nil {
		slog.Debug("hub.send_failed", "conn", conn.ID(), "error", err)
	}
}

func (h *Hub) sweep(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evictIdle(ctx)
		}
	}
}

// evictIdle stops actors with no connections, turns or obligations that
// have been idle longer than the configured timeout.
func (h *Hub) evictIdle(ctx context.Context) {
	if h.cfg.IdleTimeout == nil {
		return
	}
	limit := h.cfg.IdleTimeout()
	if limit <= 0 {
		return
	}

	h.mu.Lock()
	var evicted []*Actor
	for orgID, a := range h.actors {
		if len(h.conns[orgID]) > 0 {
			continue
		}
		idle, err := a.IdleFor(ctx)
		if err != nil || idle < limit {
			continue
		}
		delete(h.actors, orgID)
		evicted = append(evicted, a)
	}
	h.mu.Unlock()

	for _, a := range evicted {
		a.Stop()
		slog.Info("hub.actor.evicted", "org", a.orgID)
	}
}

// Len returns the number of running actors.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.actors)
}

// Close stops every actor.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	actors := h.actors
	h.actors = make(map[string]*Actor)
	h.mu.Unlock()

	var g errgroup.Group
	for _, a := range actors {
		g.Go(func() error {
			a.Stop()
			return nil
		})
	}
	return g.Wait()
}
