package room

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/mcp"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

// CreateChatRoom creates a public room with its initial roster.
func (a *Actor) CreateChatRoom(ctx context.Context, name string, members []store.Member) (*store.Room, error) {
	return call(ctx, a, func() (*store.Room, error) {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperr.Invalid("room name is required")
		}
		for i := range members {
			if err := a.validateMember(&members[i]); err != nil {
				return nil, err
			}
		}
		r := &store.Room{Name: name, Type: store.RoomTypePublic, OrganizationID: a.orgID}
		if err := a.store.CreateRoom(a.ctx, r, members); err != nil {
			return nil, err
		}
		slog.Info("room.created", "org", a.orgID, "room", r.ID, "members", len(members))

		var users []string
		for _, m := range members {
			if m.Type == store.MemberTypeUser {
				users = append(users, m.ID)
			}
		}
		a.syncDirectory("room.directory.upsert_failed", func(ctx context.Context) error {
			if err := a.dir.UpsertRoom(ctx, a.orgID, r.ID, r.Name); err != nil {
				return err
			}
			return a.dir.AddRoomMembers(ctx, r.ID, users)
		})
		for _, u := range users {
			a.publishRoomsFor(u)
		}
		return r, nil
	})
}

// AddChatRoomMember adds m to roomID.
func (a *Actor) AddChatRoomMember(ctx context.Context, roomID string, m store.Member) (*store.Member, error) {
	return call(ctx, a, func() (*store.Member, error) {
		if err := a.validateMember(&m); err != nil {
			return nil, err
		}
		m.RoomID = roomID
		if err := a.store.AddMember(a.ctx, &m); err != nil {
			return nil, err
		}
		slog.Info("room.member.added", "org", a.orgID, "room", roomID, "member", m.ID, "type", m.Type)
		if m.Type == store.MemberTypeUser {
			a.syncDirectory("room.directory.add_failed", func(ctx context.Context) error {
				return a.dir.AddRoomMembers(ctx, roomID, []string{m.ID})
			})
			a.publishRoomsFor(m.ID)
		}
		a.publishMembers(roomID)
		return &m, nil
	})
}

// DeleteChatRoomMember removes memberID from roomID.
func (a *Actor) DeleteChatRoomMember(ctx context.Context, roomID, memberID string) error {
	_, err := call(ctx, a, func() (struct{}, error) {
		m, err := a.store.GetMember(a.ctx, roomID, memberID)
		if err != nil {
			return struct{}{}, err
		}
		if err := a.store.RemoveMember(a.ctx, roomID, memberID); err != nil {
			return struct{}{}, err
		}
		slog.Info("room.member.removed", "org", a.orgID, "room", roomID, "member", memberID)
		if m.Type == store.MemberTypeUser {
			a.syncDirectory("room.directory.remove_failed", func(ctx context.Context) error {
				return a.dir.RemoveRoomMember(ctx, roomID, memberID)
			})
			a.publishRoomsFor(memberID)
		}
		a.publishMembers(roomID)
		return struct{}{}, nil
	})
	return err
}

// validateMember checks a roster entry; agent entries are filled from the
// agent profile.
func (a *Actor) validateMember(m *store.Member) error {
	if m.ID == "" {
		return apperr.Invalid("member id is required")
	}
	if m.Role != "" && !store.ValidMemberRole(m.Role) {
		return apperr.Invalid("invalid member role %q", m.Role)
	}
	switch m.Type {
	case store.MemberTypeUser:
	case store.MemberTypeAgent:
		ag, err := a.store.GetAgent(a.ctx, m.ID)
		if err != nil {
			return err
		}
		m.Name, m.Email, m.Image = ag.Name, ag.Email, ag.Image
	default:
		return apperr.Invalid("invalid member type %q", m.Type)
	}
	return nil
}

// syncDirectory applies an idempotent directory write. Failures are logged;
// the directory catches up on the next write.
func (a *Actor) syncDirectory(event string, fn func(ctx context.Context) error) {
	if a.dir == nil {
		return
	}
	if err := fn(a.ctx); err != nil {
		slog.Warn(event, "org", a.orgID, "error", err)
	}
}

func (a *Actor) publishMembers(roomID string) {
	members, err := a.store.ListMembers(a.ctx, roomID)
	if err != nil {
		slog.Warn("room.members.load_failed", "org", a.orgID, "room", roomID, "error", err)
		return
	}
	a.toRoom(roomID, protocol.ChatRoomMembersUpdate{RoomID: roomID, Members: orEmpty(members)})
}

func (a *Actor) publishRoomsFor(userID string) {
	rooms, err := a.store.ListRoomsForMember(a.ctx, userID)
	if err != nil {
		slog.Warn("room.rooms.load_failed", "org", a.orgID, "user", userID, "error", err)
		return
	}
	a.toUser(userID, protocol.ChatRoomsUpdate{ChatRooms: orEmpty(rooms)})
}

// --- Agents ---

func (a *Actor) CreateAgent(ctx context.Context, ag store.Agent) (*store.Agent, error) {
	return call(ctx, a, func() (*store.Agent, error) {
		if strings.TrimSpace(ag.Name) == "" {
			return nil, apperr.Invalid("agent name is required")
		}
		if err := a.store.CreateAgent(a.ctx, &ag); err != nil {
			return nil, err
		}
		slog.Info("agent.created", "org", a.orgID, "agent", ag.ID)
		return &ag, nil
	})
}

func (a *Actor) UpdateAgent(ctx context.Context, id string, u store.AgentUpdate) (*store.Agent, error) {
	return call(ctx, a, func() (*store.Agent, error) {
		if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
			return nil, apperr.Invalid("agent name cannot be empty")
		}
		return a.store.UpdateAgent(a.ctx, id, u)
	})
}

func (a *Actor) GetAgentByID(ctx context.Context, id string) (*store.Agent, error) {
	return call(ctx, a, func() (*store.Agent, error) {
		return a.store.GetAgent(a.ctx, id)
	})
}

func (a *Actor) GetAgentsByIDs(ctx context.Context, ids []string) ([]store.Agent, error) {
	return call(ctx, a, func() ([]store.Agent, error) {
		agents, err := a.store.GetAgentsByIDs(a.ctx, ids)
		return orEmpty(agents), err
	})
}

func (a *Actor) GetAgents(ctx context.Context) ([]store.Agent, error) {
	return call(ctx, a, func() ([]store.Agent, error) {
		agents, err := a.store.ListAgents(a.ctx)
		return orEmpty(agents), err
	})
}

// --- Workflows and documents ---

// DeleteWorkflow removes a workflow and its pending run.
func (a *Actor) DeleteWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	return call(ctx, a, func() (*store.Workflow, error) {
		wf, err := a.store.GetWorkflow(a.ctx, id)
		if err != nil {
			return nil, err
		}
		if err := a.store.DeleteWorkflow(a.ctx, id); err != nil {
			return nil, err
		}
		a.alarm.remove(workflowObligation(id))
		a.rearm()
		slog.Info("workflow.deleted", "org", a.orgID, "workflow", id)
		return wf, nil
	})
}

func (a *Actor) DeleteDocument(ctx context.Context, id string) (*store.Document, error) {
	return call(ctx, a, func() (*store.Document, error) {
		d, err := a.store.DeleteDocument(a.ctx, id)
		if err != nil {
			return nil, err
		}
		slog.Info("room.document.deleted", "org", a.orgID, "room", d.RoomID, "document", id)
		a.publishDocuments(d.RoomID)
		return d, nil
	})
}

// --- MCP servers ---

func (a *Actor) GetMcpServers(ctx context.Context) ([]store.MCPServerData, error) {
	return call(ctx, a, func() ([]store.MCPServerData, error) {
		servers, err := a.store.ListServers(a.ctx)
		return orEmpty(servers), err
	})
}

func (a *Actor) CreateMcpServer(ctx context.Context, srv store.MCPServerData) (*store.MCPServerData, error) {
	return call(ctx, a, func() (*store.MCPServerData, error) {
		if err := validateServer(srv.Name, srv.URL, srv.Transport); err != nil {
			return nil, err
		}
		if err := a.store.CreateServer(a.ctx, &srv); err != nil {
			return nil, err
		}
		slog.Info("mcp.server.created", "org", a.orgID, "server", srv.ID, "transport", srv.Transport)
		return &srv, nil
	})
}

func (a *Actor) UpdateMcpServer(ctx context.Context, id string, updates map[string]any) (*store.MCPServerData, error) {
	return call(ctx, a, func() (*store.MCPServerData, error) {
		cur, err := a.store.GetServer(a.ctx, id)
		if err != nil {
			return nil, err
		}
		name, u, transport := cur.Name, cur.URL, cur.Transport
		for key, dst := range map[string]*string{"name": &name, "url": &u, "transport": &transport} {
			if v, ok := updates[key]; ok {
				s, ok := v.(string)
				if !ok {
					return nil, apperr.Invalid("%s must be a string", key)
				}
				*dst = s
			}
		}
		if err := validateServer(name, u, transport); err != nil {
			return nil, err
		}
		return a.store.UpdateServer(a.ctx, id, updates)
	})
}

func (a *Actor) DeleteMcpServer(ctx context.Context, id string) error {
	_, err := call(ctx, a, func() (struct{}, error) {
		return struct{}{}, a.store.DeleteServer(a.ctx, id)
	})
	return err
}

func validateServer(name, rawURL, transport string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Invalid("mcp server name is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Invalid("mcp server url must be an absolute http(s) url")
	}
	if !mcp.ValidTransport(transport) {
		return apperr.Invalid("unsupported mcp transport %q", transport)
	}
	return nil
}
