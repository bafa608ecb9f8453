package room

import (
	"slices"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
)

type streamPhase int

const (
	phasePendingRoot streamPhase = iota
	phasePendingChild
	phaseClosed
)

type streamOpKind int

const (
	// opWrite overwrites the open message with parts and status.
	opWrite streamOpKind = iota
	// opFork closes the open message with parts and opens a pending thread
	// child holding child.
	opFork
)

type streamOp struct {
	kind   streamOpKind
	parts  []store.Part
	child  []store.Part
	status store.MessageStatus
}

// streamState maps a turn's cumulative part snapshots onto persisted
// messages. It is a pure reducer: the caller applies the returned ops.
type streamState struct {
	phase  streamPhase
	fork   bool
	offset int
}

func newStreamState(forkAllowed bool) *streamState {
	return &streamState{phase: phasePendingRoot, fork: forkAllowed}
}

// forkIndex returns the index of the first successful thread-creation tool
// result at or after from, or -1.
func forkIndex(parts []store.Part, from int) int {
	for i := from; i < len(parts); i++ {
		p := parts[i]
		if p.Type == store.PartToolResult && p.ToolName == tools.NameCreateMessageThread && !p.IsError {
			return i
		}
	}
	return -1
}

// next reduces one snapshot.
func (s *streamState) next(snapshot []store.Part) []streamOp {
	return s.reduce(snapshot, false)
}

// reduce forks once a thread result is followed by content, or on the final
// snapshot. Until then the root is written in place.
func (s *streamState) reduce(snapshot []store.Part, final bool) []streamOp {
	switch s.phase {
	case phaseClosed:
		return nil
	case phasePendingRoot:
		if s.fork {
			if idx := forkIndex(snapshot, 0); idx >= 0 && (final || idx < len(snapshot)-1) {
				s.phase = phasePendingChild
				s.offset = idx + 1
				return []streamOp{{
					kind:   opFork,
					parts:  slices.Clone(snapshot[:idx+1]),
					child:  slices.Clone(snapshot[idx+1:]),
					status: store.StatusCompleted,
				}}
			}
		}
	}
	var tail []store.Part
	if s.offset < len(snapshot) {
		tail = slices.Clone(snapshot[s.offset:])
	}
	return []streamOp{{kind: opWrite, parts: tail, status: store.StatusPending}}
}

// close reduces the final snapshot and ends the stream with a terminal
// status on the open message.
func (s *streamState) close(final []store.Part, failed bool) []streamOp {
	if s.phase == phaseClosed {
		return nil
	}
	status := store.StatusCompleted
	if failed {
		status = store.StatusError
	}

	ops := s.reduce(final, true)
	last := &ops[len(ops)-1]
	switch {
	case last.kind == opFork && len(last.child) == 0:
		// Nothing followed the thread call: close the root, open no child.
		last.kind = opWrite
		last.child = nil
		last.status = status
	case last.kind == opFork:
		ops = append(ops, streamOp{kind: opWrite, parts: last.child, status: status})
	default:
		last.status = status
	}
	s.phase = phaseClosed
	return ops
}

func (s *streamState) abort() { s.phase = phaseClosed }
