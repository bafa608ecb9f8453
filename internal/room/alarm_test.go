package room

import (
	"testing"
	"time"
)

func TestAlarmOrdersObligations(t *testing.T) {
	a := newAlarm()
	t0 := testEpoch
	batch := obligationKey{kind: kindAgentBatch, key: "room/0"}
	wf := workflowObligation("wf-1")
	other := workflowObligation("wf-2")

	a.set(wf, t0.Add(time.Minute))
	a.set(batch, t0.Add(3*time.Second))
	a.set(other, t0.Add(time.Hour))

	if at, ok := a.next(); !ok || !at.Equal(t0.Add(3*time.Second)) {
		t.Fatalf("next = %v, %v; want batch wake", at, ok)
	}

	// Moving an obligation replaces it rather than duplicating it.
	a.set(batch, t0.Add(2*time.Hour))
	if a.len() != 3 {
		t.Fatalf("len = %d, want 3", a.len())
	}
	if at, _ := a.next(); !at.Equal(t0.Add(time.Minute)) {
		t.Errorf("next after move = %v", at)
	}

	a.remove(wf)
	if a.has(wf) {
		t.Error("removed obligation still present")
	}

	due := a.due(t0.Add(90 * time.Minute))
	if len(due) != 1 || due[0] != other {
		t.Fatalf("due = %v, want [%v]", due, other)
	}
	if a.len() != 1 || !a.has(batch) {
		t.Errorf("remaining obligations wrong: len=%d", a.len())
	}
}

func TestActorArmsSingleTimerAtMinimum(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("c1", testUser)
	h.say(c, "hello")

	var armed time.Time
	h.do(func() { armed = h.a.armedAt })
	if want := testEpoch.Add(3 * time.Second); !armed.Equal(want) {
		t.Fatalf("armedAt = %v, want %v", armed, want)
	}

	h.do(func() {
		h.a.alarm.set(workflowObligation("soon"), testEpoch.Add(time.Second))
		h.a.rearm()
		armed = h.a.armedAt
	})
	if want := testEpoch.Add(time.Second); !armed.Equal(want) {
		t.Errorf("armedAt after earlier obligation = %v, want %v", armed, want)
	}
}
