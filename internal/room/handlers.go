package room

import (
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/sessions"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

// Attach registers conn using the session stored in its attachment.
func (a *Actor) Attach(conn sessions.Conn) bool {
	return a.post(func() {
		a.registry.Register(conn, conn.Attachment())
		slog.Debug("room.session.attached", "org", a.orgID, "conn", conn.ID(), "user", conn.Attachment().UserID)
	})
}

// Detach removes conn. In-flight turns are unaffected.
func (a *Actor) Detach(conn sessions.Conn) bool {
	return a.post(func() {
		a.registry.Remove(conn)
		slog.Debug("room.session.detached", "org", a.orgID, "conn", conn.ID())
	})
}

// Handle processes one inbound event for conn. Failures are reported to conn
// as an error frame; the connection stays open.
func (a *Actor) Handle(conn sessions.Conn, ev protocol.Inbound) bool {
	return a.post(func() { a.handle(conn, ev) })
}

func (a *Actor) handle(conn sessions.Conn, ev protocol.Inbound) {
	sess, ok := a.registry.Get(conn)
	if !ok {
		a.sendError(conn, ev.InboundType(), apperr.Unauthorized("connection is not attached"))
		return
	}

	var err error
	switch e := ev.(type) {
	case protocol.OrganizationInitRequest:
		err = a.handleOrganizationInit(conn, sess)
	case protocol.ChatRoomInitRequest:
		err = a.handleChatRoomInit(conn, sess, e)
	case protocol.ChatRoomThreadInitRequest:
		err = a.handleThreadInit(conn, sess, e)
	case protocol.ChatRoomMessageSend:
		err = a.handleMessageSend(sess, e)
	default:
		err = apperr.Invalid("unsupported event %q", ev.InboundType())
	}
	if err != nil {
		slog.Info("room.request.rejected", "org", a.orgID, "type", ev.InboundType(), "user", sess.UserID, "error", err)
		a.sendError(conn, ev.InboundType(), err)
	}
}

func (a *Actor) handleOrganizationInit(conn sessions.Conn, sess sessions.Session) error {
	rooms, err := a.store.ListRoomsForMember(a.ctx, sess.UserID)
	if err != nil {
		return err
	}
	a.send(conn, protocol.OrganizationInitResponse{ChatRooms: orEmpty(rooms)})
	return nil
}

func (a *Actor) requireMember(roomID, userID string) error {
	if _, err := a.store.GetMember(a.ctx, roomID, userID); err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Unauthorized("not a member of room %s", roomID)
		}
		return err
	}
	return nil
}

func (a *Actor) handleChatRoomInit(conn sessions.Conn, sess sessions.Session, e protocol.ChatRoomInitRequest) error {
	if err := a.requireMember(e.RoomID, sess.UserID); err != nil {
		return err
	}
	a.registry.SetActiveRoom(conn, e.RoomID)

	resp := protocol.ChatRoomInitResponse{RoomID: e.RoomID}
	g, gctx := errgroup.WithContext(a.ctx)
	g.Go(func() (err error) {
		resp.Messages, err = a.store.Query(gctx, store.MessageQuery{RoomID: e.RoomID, Limit: a.settings.InitMessageLimit})
		return err
	})
	g.Go(func() (err error) {
		resp.Members, err = a.store.ListMembers(gctx, e.RoomID)
		return err
	})
	g.Go(func() (err error) {
		resp.Room, err = a.store.GetRoom(gctx, e.RoomID)
		return err
	})
	g.Go(func() (err error) {
		resp.Workflows, err = a.store.ListWorkflowsForRoom(gctx, e.RoomID)
		return err
	})
	g.Go(func() (err error) {
		resp.Documents, err = a.store.ListDocumentsForRoom(gctx, e.RoomID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	resp.Messages = orEmpty(resp.Messages)
	resp.Members = orEmpty(resp.Members)
	resp.Workflows = orEmpty(resp.Workflows)
	resp.Documents = orEmpty(resp.Documents)
	a.send(conn, resp)
	return nil
}

func (a *Actor) handleThreadInit(conn sessions.Conn, sess sessions.Session, e protocol.ChatRoomThreadInitRequest) error {
	if err := a.requireMember(e.RoomID, sess.UserID); err != nil {
		if apperr.IsUnauthorized(err) {
			a.registry.SetActiveRoom(conn, "")
		}
		return err
	}

	root, err := a.threadRoot(e.RoomID, e.ThreadID)
	if err != nil {
		return err
	}
	threadID := e.ThreadID
	children, err := a.store.Query(a.ctx, store.MessageQuery{RoomID: e.RoomID, ThreadID: &threadID})
	if err != nil {
		return err
	}
	a.registry.SetActiveRoom(conn, e.RoomID)
	a.send(conn, protocol.ChatRoomThreadInitResponse{
		RoomID:        e.RoomID,
		ThreadID:      e.ThreadID,
		ThreadMessage: root,
		Messages:      orEmpty(children),
	})
	return nil
}

// threadRoot loads a top-level message of roomID.
func (a *Actor) threadRoot(roomID string, id int64) (*store.Message, error) {
	root, err := a.store.GetMessage(a.ctx, id)
	if err != nil {
		return nil, err
	}
	if root.RoomID != roomID || root.ThreadID != nil {
		return nil, apperr.NotFound("thread %d not found in room %s", id, roomID)
	}
	return root, nil
}

func (a *Actor) handleMessageSend(sess sessions.Session, e protocol.ChatRoomMessageSend) error {
	if sess.ActiveRoomID == "" || sess.ActiveRoomID != e.RoomID {
		return apperr.Unauthorized("room %s is not the active room of this session", e.RoomID)
	}
	if err := a.requireMember(e.RoomID, sess.UserID); err != nil {
		return err
	}
	msg := e.Message
	if len(msg.Parts) == 0 {
		return apperr.Invalid("message has no parts")
	}

	if msg.ID != "" {
		existing, err := a.store.GetMessageByOptimisticID(a.ctx, e.RoomID, sess.UserID, msg.ID)
		switch {
		case err == nil:
			updated, err := a.store.Update(a.ctx, existing.ID, store.MessageUpdate{Parts: msg.Parts, Mentions: msg.Mentions})
			if err != nil {
				return err
			}
			slog.Debug("room.message.replayed", "org", a.orgID, "room", e.RoomID, "id", updated.ID, "optimistic", msg.ID)
			a.publishMessage(updated)
			return nil
		case !apperr.IsNotFound(err):
			return err
		}
	}

	nm := store.NewMessage{
		RoomID:   e.RoomID,
		MemberID: sess.UserID,
		Parts:    msg.Parts,
		Mentions: msg.Mentions,
		ThreadID: msg.ThreadID,
		Status:   store.StatusCompleted,
	}
	if msg.ID != "" {
		nm.Metadata.OptimisticData = &store.OptimisticData{ID: msg.ID, CreatedAt: msg.CreatedAt}
	}
	m, err := a.store.Append(a.ctx, nm)
	if err != nil {
		return err
	}
	slog.Debug("room.message.appended", "org", a.orgID, "room", m.RoomID, "id", m.ID, "thread", m.ThreadKey())
	a.publishMessage(m)
	a.noteHumanMessage(m)
	return nil
}

// publishMessage broadcasts m and, for a thread reply in a terminal state,
// the refreshed thread root.
func (a *Actor) publishMessage(m *store.Message) {
	a.toRoom(m.RoomID, protocol.ChatRoomMessageBroadcast{RoomID: m.RoomID, ThreadID: m.ThreadID, Message: m})
	if m.ThreadID == nil || !m.Status.Terminal() {
		return
	}
	a.publishRoot(m.RoomID, *m.ThreadID)
}

func (a *Actor) publishRoot(roomID string, rootID int64) {
	root, err := a.store.GetMessage(a.ctx, rootID)
	if err != nil {
		slog.Warn("room.thread_root.load_failed", "org", a.orgID, "root", rootID, "error", err)
		return
	}
	a.toRoom(roomID, protocol.ChatRoomMessageBroadcast{RoomID: roomID, ThreadID: nil, Message: root})
}

func errorFrame(requestType string, err error) protocol.ErrorFrame {
	return protocol.ErrorFrame{
		Code:        string(apperr.KindOf(err)),
		Message:     apperr.MessageOf(err),
		RequestType: requestType,
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
