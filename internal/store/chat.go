package store

import (
	"context"
	"encoding/json"
	"strings"
)

type RoomType string

const RoomTypePublic RoomType = "public"

// Room is a chat room owned by an organization actor.
type Room struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           RoomType `json:"type"`
	OrganizationID string   `json:"organizationId"`
	CreatedAt      int64    `json:"createdAt"`
}

type MemberType string

const (
	MemberTypeUser  MemberType = "user"
	MemberTypeAgent MemberType = "agent"
)

type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// ValidMemberRole reports whether r is a known role.
func ValidMemberRole(r MemberRole) bool {
	switch r {
	case MemberRoleOwner, MemberRoleAdmin, MemberRoleMember:
		return true
	}
	return false
}

// Member is a user or agent in a room. (RoomID, ID) is unique.
type Member struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	Type      MemberType `json:"type"`
	Role      MemberRole `json:"role"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Image     string     `json:"image,omitempty"`
	CreatedAt int64      `json:"createdAt"`
}

type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is one content block of a message.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// Mention references a room member by id.
type Mention struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusCompleted MessageStatus = "completed"
	StatusError     MessageStatus = "error"
)

// Terminal reports whether no further updates are expected.
func (s MessageStatus) Terminal() bool { return s == StatusCompleted || s == StatusError }

// OptimisticData is the client correlation used to reconcile optimistic renders.
type OptimisticData struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
}

type MessageMetadata struct {
	OptimisticData *OptimisticData `json:"optimisticData,omitempty"`
}

// ThreadMetadata is denormalized onto a thread root.
type ThreadMetadata struct {
	LastMessage  *Message `json:"lastMessage"`
	MessageCount int      `json:"messageCount"`
}

// Message is one entry of a room's log. ThreadID, when set, names a top-level message.
type Message struct {
	ID             int64           `json:"id"`
	RoomID         string          `json:"roomId"`
	MemberID       string          `json:"memberId"`
	Member         *Member         `json:"member,omitempty"`
	Parts          []Part          `json:"parts"`
	Mentions       []Mention       `json:"mentions"`
	Status         MessageStatus   `json:"status"`
	ThreadID       *int64          `json:"threadId"`
	ThreadMetadata *ThreadMetadata `json:"threadMetadata,omitempty"`
	Metadata       MessageMetadata `json:"metadata"`
	CreatedAt      int64           `json:"createdAt"`
}

// Text joins the text parts of m.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// ThreadKey returns the thread id or 0 for top-level messages.
func (m *Message) ThreadKey() int64 {
	if m.ThreadID == nil {
		return 0
	}
	return *m.ThreadID
}

// NewMessage is the input to MessageStore.Append.
type NewMessage struct {
	RoomID   string
	MemberID string
	Parts    []Part
	Mentions []Mention
	ThreadID *int64
	Status   MessageStatus
	Metadata MessageMetadata
}

// MessageUpdate holds the mutable fields of a message. Nil/empty fields are left unchanged.
type MessageUpdate struct {
	Parts    []Part
	Mentions []Mention
	Status   MessageStatus
}

// MessageQuery selects a window of a room's log. ThreadID nil selects top-level messages.
// AfterID and BeforeID are exclusive. With BeforeID and Limit the latest Limit messages
// below BeforeID are returned. Results are always ascending by id.
type MessageQuery struct {
	RoomID   string
	ThreadID *int64
	AfterID  int64
	BeforeID int64
	Limit    int
}

// MessageStore is the append-only, thread-aware message log.
type MessageStore interface {
	Append(ctx context.Context, m NewMessage) (*Message, error)
	Update(ctx context.Context, id int64, u MessageUpdate) (*Message, error)
	Query(ctx context.Context, q MessageQuery) ([]Message, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	GetMessageByOptimisticID(ctx context.Context, roomID, memberID, optimisticID string) (*Message, error)
	// ListPending returns messages still being generated, oldest first.
	ListPending(ctx context.Context) ([]Message, error)
}

// RoomStore manages rooms and their rosters.
type RoomStore interface {
	CreateRoom(ctx context.Context, r *Room, members []Member) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	ListRoomsForMember(ctx context.Context, memberID string) ([]Room, error)
	ListMembers(ctx context.Context, roomID string) ([]Member, error)
	GetMember(ctx context.Context, roomID, memberID string) (*Member, error)
	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, roomID, memberID string) error
}
