// Package protocol defines the WebSocket wire contract between clients and a
// room actor: a closed set of JSON events discriminated by a "type" field.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// Inbound is implemented by every client → actor event.
type Inbound interface {
	InboundType() string
}

// Outbound is implemented by every actor → client event.
type Outbound interface {
	OutboundType() string
}

// --- Inbound ---

type OrganizationInitRequest struct{}

type ChatRoomInitRequest struct {
	RoomID string `json:"roomId"`
}

type ChatRoomThreadInitRequest struct {
	RoomID   string `json:"roomId"`
	ThreadID int64  `json:"threadId"`
}

// SendMessage is the client's optimistic rendition of a message. ID and
// CreatedAt are client-assigned and only used for reconciliation.
type SendMessage struct {
	ID        string              `json:"id"`
	Parts     []store.Part        `json:"parts"`
	Mentions  []store.Mention     `json:"mentions"`
	Status    store.MessageStatus `json:"status,omitempty"`
	ThreadID  *int64              `json:"threadId"`
	CreatedAt int64               `json:"createdAt"`
}

type ChatRoomMessageSend struct {
	RoomID  string      `json:"roomId"`
	Message SendMessage `json:"message"`
}

func (OrganizationInitRequest) InboundType() string   { return TypeOrganizationInitRequest }
func (ChatRoomInitRequest) InboundType() string       { return TypeChatRoomInitRequest }
func (ChatRoomThreadInitRequest) InboundType() string { return TypeChatRoomThreadInitRequest }
func (ChatRoomMessageSend) InboundType() string       { return TypeChatRoomMessageSend }

// --- Outbound ---

type OrganizationInitResponse struct {
	ChatRooms []store.Room `json:"chatRooms"`
}

type ChatRoomInitResponse struct {
	RoomID    string           `json:"roomId"`
	Messages  []store.Message  `json:"messages"`
	Members   []store.Member   `json:"members"`
	Room      *store.Room      `json:"room"`
	Workflows []store.Workflow `json:"workflows"`
	Documents []store.Document `json:"documents"`
}

type ChatRoomThreadInitResponse struct {
	RoomID        string          `json:"roomId"`
	ThreadID      int64           `json:"threadId"`
	ThreadMessage *store.Message  `json:"threadMessage"`
	Messages      []store.Message `json:"messages"`
}

type ChatRoomMessageBroadcast struct {
	RoomID   string         `json:"roomId"`
	ThreadID *int64         `json:"threadId"`
	Message  *store.Message `json:"message"`
}

type ChatRoomMembersUpdate struct {
	RoomID  string         `json:"roomId"`
	Members []store.Member `json:"members"`
}

type ChatRoomDocumentsUpdate struct {
	RoomID    string           `json:"roomId"`
	Documents []store.Document `json:"documents"`
}

type ChatRoomsUpdate struct {
	ChatRooms []store.Room `json:"chatRooms"`
}

// ErrorFrame reports a rejected inbound event. The connection stays open.
type ErrorFrame struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"requestType,omitempty"`
}

func (OrganizationInitResponse) OutboundType() string   { return TypeOrganizationInitResponse }
func (ChatRoomInitResponse) OutboundType() string       { return TypeChatRoomInitResponse }
func (ChatRoomThreadInitResponse) OutboundType() string { return TypeChatRoomThreadInitResponse }
func (ChatRoomMessageBroadcast) OutboundType() string   { return TypeChatRoomMessageBroadcast }
func (ChatRoomMembersUpdate) OutboundType() string      { return TypeChatRoomMembersUpdate }
func (ChatRoomDocumentsUpdate) OutboundType() string    { return TypeChatRoomDocumentsUpdate }
func (ChatRoomsUpdate) OutboundType() string            { return TypeChatRoomsUpdate }
func (ErrorFrame) OutboundType() string                 { return TypeError }

// --- Codec ---

type envelope struct {
	Type string `json:"type"`
}

// UnknownTypeError is returned when a frame carries a tag outside the union.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string { return fmt.Sprintf("unknown event type %q", e.Type) }

// PeekType returns the "type" field of a raw frame.
func PeekType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("decode frame: missing type")
	}
	return env.Type, nil
}

// DecodeInbound parses a client frame into its concrete variant.
func DecodeInbound(data []byte) (Inbound, error) {
	typ, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeOrganizationInitRequest:
		return OrganizationInitRequest{}, nil
	case TypeChatRoomInitRequest:
		return decodeAs[ChatRoomInitRequest](data)
	case TypeChatRoomThreadInitRequest:
		return decodeAs[ChatRoomThreadInitRequest](data)
	case TypeChatRoomMessageSend:
		return decodeAs[ChatRoomMessageSend](data)
	default:
		return nil, &UnknownTypeError{Type: typ}
	}
}

// DecodeOutbound parses an actor frame into its concrete variant.
func DecodeOutbound(data []byte) (Outbound, error) {
	typ, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeOrganizationInitResponse:
		return decodeAs[OrganizationInitResponse](data)
	case TypeChatRoomInitResponse:
		return decodeAs[ChatRoomInitResponse](data)
	case TypeChatRoomThreadInitResponse:
		return decodeAs[ChatRoomThreadInitResponse](data)
	case TypeChatRoomMessageBroadcast:
		return decodeAs[ChatRoomMessageBroadcast](data)
	case TypeChatRoomMembersUpdate:
		return decodeAs[ChatRoomMembersUpdate](data)
	case TypeChatRoomDocumentsUpdate:
		return decodeAs[ChatRoomDocumentsUpdate](data)
	case TypeChatRoomsUpdate:
		return decodeAs[ChatRoomsUpdate](data)
	case TypeError:
		return decodeAs[ErrorFrame](data)
	default:
		return nil, &UnknownTypeError{Type: typ}
	}
}

func decodeAs[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// EncodeOutbound marshals an actor event with its "type" tag.
func EncodeOutbound(o Outbound) ([]byte, error) {
	return encodeTagged(o.OutboundType(), o)
}

// EncodeInbound marshals a client event with its "type" tag.
func EncodeInbound(in Inbound) ([]byte, error) {
	return encodeTagged(in.InboundType(), in)
}

func encodeTagged(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	tag, _ := json.Marshal(typ)

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
