package room

import (
	"container/heap"
	"time"
)

type obligationKind uint8

const (
	kindAgentBatch obligationKind = iota + 1
	kindWorkflowFire
)

func (k obligationKind) String() string {
	switch k {
	case kindAgentBatch:
		return "agent-batch"
	case kindWorkflowFire:
		return "workflow-fire"
	}
	return "unknown"
}

// obligationKey identifies one pending wake-up. For agent batches key is the
// marker key, for workflows the workflow id.
type obligationKey struct {
	kind obligationKind
	key  string
}

type obligation struct {
	id    obligationKey
	at    time.Time
	index int
}

// alarm is a min-heap of obligations. The actor keeps exactly one physical
// timer armed at the heap minimum.
type alarm struct {
	items obligationHeap
	byKey map[obligationKey]*obligation
}

func newAlarm() *alarm {
	return &alarm{byKey: make(map[obligationKey]*obligation)}
}

// set inserts the obligation or moves it to at.
func (a *alarm) set(id obligationKey, at time.Time) {
	if o, ok := a.byKey[id]; ok {
		o.at = at
		heap.Fix(&a.items, o.index)
		return
	}
	o := &obligation{id: id, at: at}
	heap.Push(&a.items, o)
	a.byKey[id] = o
}

func (a *alarm) remove(id obligationKey) {
	o, ok := a.byKey[id]
	if !ok {
		return
	}
	heap.Remove(&a.items, o.index)
	delete(a.byKey, id)
}

func (a *alarm) has(id obligationKey) bool {
	_, ok := a.byKey[id]
	return ok
}

// next returns the earliest obligation time.
func (a *alarm) next() (time.Time, bool) {
	if len(a.items) == 0 {
		return time.Time{}, false
	}
	return a.items[0].at, true
}

// due pops every obligation at or before now, earliest first.
func (a *alarm) due(now time.Time) []obligationKey {
	var out []obligationKey
	for len(a.items) > 0 && !a.items[0].at.After(now) {
		o := heap.Pop(&a.items).(*obligation)
		delete(a.byKey, o.id)
		out = append(out, o.id)
	}
	return out
}

func (a *alarm) len() int { return len(a.items) }

type obligationHeap []*obligation

func (h obligationHeap) Len() int { return len(h) }

func (h obligationHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		if h[i].id.kind != h[j].id.kind {
			return h[i].id.kind < h[j].id.kind
		}
		return h[i].id.key < h[j].id.key
	}
	return h[i].at.Before(h[j].at)
}

func (h obligationHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *obligationHeap) Push(x any) {
	o := x.(*obligation)
	o.index = len(*h)
	*h = append(*h, o)
}

func (h *obligationHeap) Pop() any {
	old := *h
	n := len(old)
	o := old[n-1]
	old[n-1] = nil
	o.index = -1
	*h = old[:n-1]
	return o
}
