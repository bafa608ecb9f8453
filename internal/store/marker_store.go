package store

import "context"

// ActivityMarker tracks agent processing for one (room, thread).
// ThreadID 0 is the room's top level. NextWakeAt 0 means no wake is armed.
type ActivityMarker struct {
	RoomID     string
	ThreadID   int64
	NextWakeAt int64
	Watermark  int64
}

type MarkerStore interface {
	ListMarkers(ctx context.Context) ([]ActivityMarker, error)
	SaveMarker(ctx context.Context, m ActivityMarker) error
}
