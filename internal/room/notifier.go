package room

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

type markerKey struct {
	roomID   string
	threadID int64
}

func (k markerKey) String() string { return fmt.Sprintf("%s/%d", k.roomID, k.threadID) }

func parseMarkerKey(s string) (markerKey, bool) {
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return markerKey{}, false
	}
	tid, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return markerKey{}, false
	}
	return markerKey{roomID: s[:i], threadID: tid}, true
}

func (k markerKey) threadPtr() *int64 {
	if k.threadID == 0 {
		return nil
	}
	t := k.threadID
	return &t
}

// marker is the debounce state of one (room, thread): idle when NextWakeAt
// is zero and not processing, armed when NextWakeAt is set, processing while
// a batch is being answered.
type marker struct {
	store.ActivityMarker
	processing bool
}

func (m *marker) key() markerKey { return markerKey{roomID: m.RoomID, threadID: m.ThreadID} }

func (m *marker) obligation() obligationKey {
	return obligationKey{kind: kindAgentBatch, key: m.key().String()}
}

func workflowObligation(id string) obligationKey {
	return obligationKey{kind: kindWorkflowFire, key: id}
}

func (a *Actor) saveMarker(m *marker) {
	if err := a.store.SaveMarker(a.ctx, m.ActivityMarker); err != nil {
		slog.Warn("notifier.marker.save_failed", "org", a.orgID, "marker", m.key(), "error", err)
	}
}

// noteHumanMessage arms the (room, thread) marker unless one is already
// armed in the future, so a burst of messages collapses into one batch.
func (a *Actor) noteHumanMessage(msg *store.Message) {
	k := markerKey{roomID: msg.RoomID, threadID: msg.ThreadKey()}
	now := a.clock.Now()

	m, ok := a.markers[k]
	if !ok {
		m = &marker{ActivityMarker: store.ActivityMarker{RoomID: k.roomID, ThreadID: k.threadID, Watermark: msg.ID - 1}}
		a.markers[k] = m
	}
	if m.NextWakeAt > now.UnixMilli() {
		return
	}

	wake := now.Add(a.settings.debounce())
	m.NextWakeAt = wake.UnixMilli()
	a.saveMarker(m)
	if !m.processing {
		a.alarm.set(m.obligation(), wake)
		a.rearm()
	}
	slog.Debug("notifier.marker.armed", "org", a.orgID, "marker", k, "wake", wake)
}

// fireMarker starts a pass for an armed marker. A marker that is still
// processing stays armed and fires when its pass completes.
func (a *Actor) fireMarker(key string) {
	k, ok := parseMarkerKey(key)
	if !ok {
		return
	}
	m := a.markers[k]
	if m == nil || m.NextWakeAt == 0 || m.processing {
		return
	}

	m.processing = true
	m.NextWakeAt = 0
	a.saveMarker(m)

	batch, err := a.store.Query(a.ctx, store.MessageQuery{RoomID: k.roomID, ThreadID: k.threadPtr(), AfterID: m.Watermark})
	if err != nil {
		slog.Error("notifier.batch.failed", "org", a.orgID, "marker", k, "error", err)
		a.finishMarker(k, 0)
		return
	}
	if len(batch) == 0 {
		a.finishMarker(k, 0)
		return
	}
	seen := batch[len(batch)-1].ID
	slog.Info("notifier.batch.ready", "org", a.orgID, "marker", k, "messages", len(batch))

	a.routeBatch(k, batch, func(first int64, err error) {
		if err != nil {
			slog.Error("notifier.batch.failed", "org", a.orgID, "marker", k, "error", err)
		}
		a.finishMarker(k, a.advanceTo(k, seen, first))
	})
}

// unanswered reports whether a human message sits past the watermark of an
// idle marker, which happens when the actor stopped during its pass.
func (a *Actor) unanswered(ctx context.Context, m *marker) bool {
	k := m.key()
	msgs, err := a.store.Query(ctx, store.MessageQuery{RoomID: k.roomID, ThreadID: k.threadPtr(), AfterID: m.Watermark})
	if err != nil {
		slog.Warn("notifier.marker.check_failed", "org", a.orgID, "marker", k, "error", err)
		return false
	}
	for _, msg := range msgs {
		if msg.Member != nil && msg.Member.Type == store.MemberTypeUser {
			return true
		}
	}
	return false
}

// advanceTo returns the new watermark after a pass over messages up to seen
// whose reply started at first. The reply's own message is skipped unless a
// message landed between the batch and the reply while routing.
func (a *Actor) advanceTo(k markerKey, seen, first int64) int64 {
	if first <= seen+1 {
		return max(seen, first)
	}
	gap, err := a.store.Query(a.ctx, store.MessageQuery{
		RoomID:   k.roomID,
		ThreadID: k.threadPtr(),
		AfterID:  seen,
		BeforeID: first,
		Limit:    1,
	})
	if err != nil || len(gap) > 0 {
		return seen
	}
	return first
}

// finishMarker returns the marker to idle, advancing the watermark to seen,
// and re-arms it if messages arrived during the pass.
func (a *Actor) finishMarker(k markerKey, seen int64) {
	m := a.markers[k]
	if m == nil {
		return
	}
	m.processing = false
	if seen > m.Watermark {
		m.Watermark = seen
	}
	a.saveMarker(m)
	if m.NextWakeAt > 0 {
		at := time.UnixMilli(m.NextWakeAt)
		if now := a.clock.Now(); at.Before(now) {
			at = now
		}
		a.alarm.set(m.obligation(), at)
	}
	a.rearm()
}
