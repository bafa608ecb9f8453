package room

import (
	"context"
	"log/slog"
	"slices"

	"github.com/nextlevelbuilder/roomclaw/internal/agent"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// resolveLocal applies the routing rules that need no model call: the first
// mention of a roster agent in document order, then, inside a thread, the
// newest agent author among the context and batch (thread root included).
func resolveLocal(batch, history []store.Message, roster []store.Member, inThread bool) (string, bool) {
	isAgent := func(id string) bool {
		return slices.ContainsFunc(roster, func(m store.Member) bool { return m.ID == id })
	}

	for _, msg := range batch {
		for _, mention := range msg.Mentions {
			if isAgent(mention.ID) {
				return mention.ID, true
			}
		}
	}

	if inThread {
		all := append(slices.Clone(history), batch...)
		for i := len(all) - 1; i >= 0; i-- {
			if isAgent(all[i].MemberID) {
				return all[i].MemberID, true
			}
		}
	}
	return "", false
}

// routeContext loads the context window before the first batch message,
// with the thread root prepended for thread batches.
func (a *Actor) routeContext(k markerKey, firstID int64) ([]store.Message, error) {
	history, err := a.store.Query(a.ctx, store.MessageQuery{
		RoomID:   k.roomID,
		ThreadID: k.threadPtr(),
		BeforeID: firstID,
		Limit:    a.settings.ContextMessages,
	})
	if err != nil {
		return nil, err
	}
	if k.threadID != 0 {
		root, err := a.store.GetMessage(a.ctx, k.threadID)
		if err != nil {
			return nil, err
		}
		history = append([]store.Message{*root}, history...)
	}
	return history, nil
}

func agentMembers(members []store.Member) []store.Member {
	var out []store.Member
	for _, m := range members {
		if m.Type == store.MemberTypeAgent {
			out = append(out, m)
		}
	}
	return out
}

// routeBatch decides which agent answers batch and starts its turn. done is
// called on the loop once the batch is fully handled, with the id of the
// turn's first message in the batch thread (0 if none).
func (a *Actor) routeBatch(k markerKey, batch []store.Message, done func(created int64, err error)) {
	members, err := a.store.ListMembers(a.ctx, k.roomID)
	if err != nil {
		done(0, err)
		return
	}
	roster := agentMembers(members)
	if len(roster) == 0 {
		done(0, nil)
		return
	}
	history, err := a.routeContext(k, batch[0].ID)
	if err != nil {
		done(0, err)
		return
	}

	if agentID, ok := resolveLocal(batch, history, roster, k.threadID != 0); ok {
		slog.Info("router.decided", "org", a.orgID, "marker", k, "agent", agentID, "by", "rule")
		a.startChatTurn(k, agentID, history, batch, done)
		return
	}

	if a.selector == nil {
		done(0, nil)
		return
	}
	ids := make([]string, len(roster))
	for i, m := range roster {
		ids[i] = m.ID
	}
	profiles, err := a.store.GetAgentsByIDs(a.ctx, ids)
	if err != nil {
		done(0, err)
		return
	}
	room, err := a.store.GetRoom(a.ctx, k.roomID)
	if err != nil {
		done(0, err)
		return
	}

	// The model call runs off the loop; the decision is applied back on it.
	a.turns++
	in := agent.RouteInput{Room: room, Roster: profiles, Context: history, NewBatch: batch}
	go func(ctx context.Context) {
		agentID, err := a.selector.Select(ctx, in)
		a.post(func() {
			a.turns--
			if err != nil {
				slog.Warn("router.llm.failed", "org", a.orgID, "marker", k, "error", err)
				done(0, nil)
				return
			}
			if agentID == "" {
				slog.Info("router.decided", "org", a.orgID, "marker", k, "agent", "none", "by", "llm")
				done(0, nil)
				return
			}
			slog.Info("router.decided", "org", a.orgID, "marker", k, "agent", agentID, "by", "llm")
			a.startChatTurn(k, agentID, history, batch, done)
		})
	}(a.ctx)
}
