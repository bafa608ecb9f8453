package protocol

// ProtocolVersion is reported by /health and checked by the Go client.
const ProtocolVersion = 1

// Inbound event tags (client → actor).
const (
	TypeOrganizationInitRequest   = "organization-init-request"
	TypeChatRoomInitRequest       = "chat-room-init-request"
	TypeChatRoomThreadInitRequest = "chat-room-thread-init-request"
	TypeChatRoomMessageSend       = "chat-room-message-send"
)

// Outbound event tags (actor → client).
const (
	TypeOrganizationInitResponse   = "organization-init-response"
	TypeChatRoomInitResponse       = "chat-room-init-response"
	TypeChatRoomThreadInitResponse = "chat-room-thread-init-response"
	TypeChatRoomMessageBroadcast   = "chat-room-message-broadcast"
	TypeChatRoomMembersUpdate      = "chat-room-members-update"
	TypeChatRoomDocumentsUpdate    = "chat-room-documents-update"
	TypeChatRoomsUpdate            = "chat-rooms-update"
	TypeError                      = "error"
)
