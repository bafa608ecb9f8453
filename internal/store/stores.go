package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActorStore is the single logical database owned by one organization actor.
type ActorStore interface {
	MessageStore
	RoomStore
	AgentStore
	WorkflowStore
	DocumentStore
	MCPServerStore
	MarkerStore
	Close() error
}

// DirectoryStore is the shared room/membership index consulted before a
// connection reaches an actor. It is eventually consistent with the actors;
// every write is idempotent.
type DirectoryStore interface {
	IsOrganizationMember(ctx context.Context, orgID, userID string) (bool, error)
	AddOrganizationMember(ctx context.Context, orgID, userID string) error
	UpsertRoom(ctx context.Context, orgID, roomID, name string) error
	AddRoomMembers(ctx context.Context, roomID string, userIDs []string) error
	RemoveRoomMember(ctx context.Context, roomID, userID string) error
	ListRoomIDsForUser(ctx context.Context, orgID, userID string) ([]string, error)
}

// GenNewID returns a time-ordered unique id.
func GenNewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowMillis is the storage timestamp format.
func NowMillis() int64 { return time.Now().UnixMilli() }
