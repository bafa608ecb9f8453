// Package room implements the per-organization actor: a single goroutine that
// owns the organization's database, live sessions, agent batching, response
// streaming and workflow scheduling.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/agent"
	"github.com/nextlevelbuilder/roomclaw/internal/mcp"
	"github.com/nextlevelbuilder/roomclaw/internal/sessions"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// ErrActorStopped is returned for calls made to an actor that has shut down.
var ErrActorStopped = errors.New("room actor stopped")

// Settings are the tunables an actor reads while running.
type Settings struct {
	// DebounceWindow is read on every arm so config reloads apply live.
	DebounceWindow   func() time.Duration
	ContextMessages  int
	InitMessageLimit int
}

func (s Settings) debounce() time.Duration {
	if s.DebounceWindow == nil {
		return 3 * time.Second
	}
	return s.DebounceWindow()
}

// Deps wires an actor.
type Deps struct {
	OrgID     string
	Store     store.ActorStore
	Directory store.DirectoryStore // optional
	Runner    *agent.Runner
	Selector  *agent.Selector
	MCP       *mcp.Bridge // optional
	Clock     Clock
	Settings  Settings
	// Conns are live connections to re-derive the session registry from.
	Conns []sessions.Conn
	// OnFail is called once, off the loop, if the loop dies from a panic.
	OnFail func(*Actor)
}

// Actor serializes every operation of one organization on its loop goroutine.
// Fields below the mailbox are owned by that goroutine.
type Actor struct {
	orgID    string
	store    store.ActorStore
	dir      store.DirectoryStore
	runner   *agent.Runner
	selector *agent.Selector
	mcp      *mcp.Bridge
	clock    Clock
	settings Settings
	onFail   func(*Actor)

	ctx    context.Context
	cancel context.CancelFunc
	mb     *mailbox
	done   chan struct{}

	registry   *sessions.Registry
	alarm      *alarm
	timer      Timer
	timerGen   uint64
	armedAt    time.Time
	markers    map[markerKey]*marker
	turns      int
	lastActive time.Time
	// quiet marks the running closure as an idle check, not activity.
	quiet bool
}

// New restores the actor's durable obligations and starts its loop.
func New(deps Deps) (*Actor, error) {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Settings.ContextMessages <= 0 {
		deps.Settings.ContextMessages = 10
	}
	if deps.Settings.InitMessageLimit <= 0 {
		deps.Settings.InitMessageLimit = 50
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		orgID:      deps.OrgID,
		store:      deps.Store,
		dir:        deps.Directory,
		runner:     deps.Runner,
		selector:   deps.Selector,
		mcp:        deps.MCP,
		clock:      deps.Clock,
		settings:   deps.Settings,
		onFail:     deps.OnFail,
		ctx:        ctx,
		cancel:     cancel,
		mb:         newMailbox(),
		done:       make(chan struct{}),
		registry:   sessions.Rebuild(deps.Conns),
		alarm:      newAlarm(),
		markers:    make(map[markerKey]*marker),
		lastActive: deps.Clock.Now(),
	}

	if err := a.restore(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("restore actor %s: %w", deps.OrgID, err)
	}
	a.rearm()

	go a.loop()
	slog.Info("actor.started", "org", a.orgID, "sessions", a.registry.Len(), "obligations", a.alarm.len())
	return a, nil
}

// restore rebuilds the alarm from persisted markers and active workflows.
// Turns do not survive their actor: messages they left pending are failed,
// and markers whose batch was dropped mid-pass are armed again.
func (a *Actor) restore(ctx context.Context) error {
	if err := a.failPending(ctx); err != nil {
		return err
	}

	markers, err := a.store.ListMarkers(ctx)
	if err != nil {
		return err
	}
	for _, m := range markers {
		mk := &marker{ActivityMarker: m}
		a.markers[markerKey{roomID: m.RoomID, threadID: m.ThreadID}] = mk
		if m.NextWakeAt == 0 && a.unanswered(ctx, mk) {
			mk.NextWakeAt = a.clock.Now().UnixMilli()
			a.saveMarker(mk)
			slog.Info("notifier.marker.recovered", "org", a.orgID, "marker", mk.key(), "watermark", mk.Watermark)
		}
		if mk.NextWakeAt > 0 {
			a.alarm.set(mk.obligation(), time.UnixMilli(mk.NextWakeAt))
		}
	}

	workflows, err := a.store.ListActiveWorkflows(ctx)
	if err != nil {
		return err
	}
	for _, wf := range workflows {
		a.alarm.set(workflowObligation(wf.ID), time.UnixMilli(wf.NextExecutionTime))
	}
	return nil
}

func (a *Actor) failPending(ctx context.Context) error {
	pending, err := a.store.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		failed, err := a.store.Update(ctx, m.ID, store.MessageUpdate{Status: store.StatusError})
		if err != nil {
			return fmt.Errorf("fail pending message %d: %w", m.ID, err)
		}
		slog.Warn("turn.message.abandoned", "org", a.orgID, "room", m.RoomID, "message", m.ID)
		a.publishMessage(failed)
	}
	return nil
}

// OrgID returns the organization the actor owns.
func (a *Actor) OrgID() string { return a.orgID }

// Done is closed when the loop has exited.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Stop shuts the loop down, cancels in-flight turns and closes the store.
func (a *Actor) Stop() {
	a.cancel()
	<-a.done
}

func (a *Actor) loop() {
	panicked := a.drain()
	a.shutdown()
	close(a.done)
	if panicked && a.onFail != nil {
		a.onFail(a)
	}
}

func (a *Actor) drain() (panicked bool) {
	for {
		select {
		case <-a.ctx.Done():
			return false
		case <-a.mb.signal:
		}
		for {
			if a.ctx.Err() != nil {
				return false
			}
			fn := a.mb.pop()
			if fn == nil {
				break
			}
			if !a.run(fn) {
				return true
			}
		}
	}
}

func (a *Actor) run(fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("actor.panic", "org", a.orgID, "panic", p, "stack", string(debug.Stack()))
			ok = false
		}
	}()
	fn()
	if a.quiet {
		a.quiet = false
	} else {
		a.lastActive = a.clock.Now()
	}
	return true
}

func (a *Actor) shutdown() {
	a.mb.close()
	a.cancel()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("actor.store.close_failed", "org", a.orgID, "error", err)
	}
	slog.Info("actor.stopped", "org", a.orgID)
}

// post schedules fn on the loop. It reports false if the actor has stopped.
func (a *Actor) post(fn func()) bool {
	return a.mb.post(fn)
}

// call runs fn on the loop and waits for its result.
func call[T any](ctx context.Context, a *Actor, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	ch := make(chan result, 1)
	if !a.post(func() {
		v, err := fn()
		ch <- result{v, err}
	}) {
		return zero, ErrActorStopped
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-a.done:
		return zero, ErrActorStopped
	}
}

// rearm points the single physical timer at the earliest obligation.
func (a *Actor) rearm() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerGen++
	at, ok := a.alarm.next()
	if !ok {
		a.armedAt = time.Time{}
		return
	}
	a.armedAt = at
	gen := a.timerGen
	d := at.Sub(a.clock.Now())
	if d < 0 {
		d = 0
	}
	a.timer = a.clock.AfterFunc(d, func() {
		a.post(func() {
			if gen == a.timerGen {
				a.onAlarm()
			}
		})
	})
}

func (a *Actor) onAlarm() {
	a.timer = nil
	for _, id := range a.alarm.due(a.clock.Now()) {
		switch id.kind {
		case kindAgentBatch:
			a.fireMarker(id.key)
		case kindWorkflowFire:
			a.fireWorkflow(id.key)
		}
	}
	a.rearm()
}

// idleFor reports how long the actor has had no sessions, turns or
// obligations; zero if it is busy.
func (a *Actor) idleFor(now time.Time) time.Duration {
	if a.registry.Len() > 0 || a.turns > 0 || a.alarm.len() > 0 {
		return 0
	}
	return now.Sub(a.lastActive)
}

// IdleFor is the concurrency-safe form of idleFor.
func (a *Actor) IdleFor(ctx context.Context) (time.Duration, error) {
	return call(ctx, a, func() (time.Duration, error) {
		a.quiet = true
		return a.idleFor(a.clock.Now()), nil
	})
}
