package room

import (
	"log/slog"

	"github.com/nextlevelbuilder/roomclaw/internal/sessions"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

// send delivers one event to conn. A failed send drops the connection from
// the registry; it never fails the operation that triggered it.
func (a *Actor) send(conn sessions.Conn, ev protocol.Outbound) {
	frame, err := protocol.EncodeOutbound(ev)
	if err != nil {
		slog.Error("room.broadcast.encode_failed", "type", ev.OutboundType(), "error", err)
		return
	}
	a.deliver(conn, frame, ev.OutboundType())
}

func (a *Actor) deliver(conn sessions.Conn, frame []byte, typ string) {
	if err := conn.Send(frame); err != nil {
		a.registry.Remove(conn)
		slog.Info("room.broadcast.dropped", "org", a.orgID, "conn", conn.ID(), "type", typ, "error", err)
	}
}

func (a *Actor) fanOut(conns []sessions.Conn, ev protocol.Outbound) {
	if len(conns) == 0 {
		return
	}
	frame, err := protocol.EncodeOutbound(ev)
	if err != nil {
		slog.Error("room.broadcast.encode_failed", "type", ev.OutboundType(), "error", err)
		return
	}
	for _, c := range conns {
		a.deliver(c, frame, ev.OutboundType())
	}
}

// toUser sends ev to every connection of userID.
func (a *Actor) toUser(userID string, ev protocol.Outbound) {
	a.fanOut(a.registry.Match(func(s sessions.Session) bool { return s.UserID == userID }), ev)
}

// toRoom sends ev to every connection whose active room is roomID.
func (a *Actor) toRoom(roomID string, ev protocol.Outbound) {
	a.fanOut(a.registry.Match(func(s sessions.Session) bool { return s.ActiveRoomID == roomID }), ev)
}

func (a *Actor) sendError(conn sessions.Conn, requestType string, err error) {
	a.send(conn, errorFrame(requestType, err))
}
