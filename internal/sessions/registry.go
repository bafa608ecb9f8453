// Package sessions tracks the live connections attached to one actor.
package sessions

import "sort"

// Session is the per-connection state. It is also the connection's durable
// attachment: whatever is stored here survives an actor restart.
type Session struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	ActiveRoomID   string `json:"activeRoomId,omitempty"`
}

// Conn is a live client connection as seen by an actor.
type Conn interface {
	// ID is unique for the life of the process.
	ID() string
	// Send delivers one encoded frame. It must not block on a slow peer.
	Send(frame []byte) error
	// Attachment returns the last session persisted on the connection.
	Attachment() Session
	SetAttachment(Session)
}

type entry struct {
	conn    Conn
	session Session
}

// Registry maps live connections to their sessions. It performs no
// authorization and is not safe for concurrent use: the owning actor is its
// only caller.
type Registry struct {
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Rebuild derives a registry from each connection's durable attachment.
func Rebuild(conns []Conn) *Registry {
	r := NewRegistry()
	for _, c := range conns {
		r.entries[c.ID()] = &entry{conn: c, session: c.Attachment()}
	}
	return r
}

// Register adds conn, persisting s as its attachment.
func (r *Registry) Register(conn Conn, s Session) {
	conn.SetAttachment(s)
	r.entries[conn.ID()] = &entry{conn: conn, session: s}
}

func (r *Registry) Get(conn Conn) (Session, bool) {
	e, ok := r.entries[conn.ID()]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// SetActiveRoom records roomID (empty clears it) and persists the attachment.
// It reports false if conn is not registered.
func (r *Registry) SetActiveRoom(conn Conn, roomID string) bool {
	e, ok := r.entries[conn.ID()]
	if !ok {
		return false
	}
	if e.session.ActiveRoomID == roomID {
		return true
	}
	e.session.ActiveRoomID = roomID
	e.conn.SetAttachment(e.session)
	return true
}

func (r *Registry) Remove(conn Conn) {
	delete(r.entries, conn.ID())
}

func (r *Registry) Len() int { return len(r.entries) }

// Match returns the connections whose session satisfies keep, ordered by
// connection id so fan-out order is deterministic.
func (r *Registry) Match(keep func(Session) bool) []Conn {
	var out []Conn
	for _, e := range r.entries {
		if keep(e.session) {
			out = append(out, e.conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Conns returns every registered connection.
func (r *Registry) Conns() []Conn {
	return r.Match(func(Session) bool { return true })
}
