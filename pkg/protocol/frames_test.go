package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

func TestDecodeInboundVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"org init", `{"type":"organization-init-request"}`, TypeOrganizationInitRequest},
		{"room init", `{"type":"chat-room-init-request","roomId":"r1"}`, TypeChatRoomInitRequest},
		{"thread init", `{"type":"chat-room-thread-init-request","roomId":"r1","threadId":7}`, TypeChatRoomThreadInitRequest},
		{"send", `{"type":"chat-room-message-send","roomId":"r1","message":{"id":"opt","parts":[{"type":"text","text":"hi"}],"mentions":[],"threadId":null,"createdAt":1}}`, TypeChatRoomMessageSend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInbound([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if in.InboundType() != tt.want {
				t.Errorf("type = %q, want %q", in.InboundType(), tt.want)
			}
		})
	}

	in, _ := DecodeInbound([]byte(tests[3].raw))
	send := in.(ChatRoomMessageSend)
	if send.Message.ID != "opt" || send.Message.ThreadID != nil || send.Message.Parts[0].Text != "hi" {
		t.Errorf("send payload = %+v", send)
	}
	th, _ := DecodeInbound([]byte(tests[2].raw))
	if th.(ChatRoomThreadInitRequest).ThreadID != 7 {
		t.Errorf("thread payload = %+v", th)
	}
}

func TestDecodeInboundRejectsUnknownAndMalformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"chat-room-delete"}`))
	var unknown *UnknownTypeError
	if !errors.As(err, &unknown) || unknown.Type != "chat-room-delete" {
		t.Errorf("unknown type err = %v", err)
	}
	if _, err := DecodeInbound([]byte(`{"roomId":"r1"}`)); err == nil {
		t.Error("missing type should fail")
	}
	if _, err := DecodeInbound([]byte(`not json`)); err == nil {
		t.Error("malformed frame should fail")
	}
}

func TestEncodeOutboundSplicesType(t *testing.T) {
	threadID := int64(3)
	msg := &store.Message{ID: 4, RoomID: "r1", Parts: []store.Part{store.TextPart("yo")}, Mentions: []store.Mention{}, Status: store.StatusPending, ThreadID: &threadID}
	data, err := EncodeOutbound(ChatRoomMessageBroadcast{RoomID: "r1", ThreadID: &threadID, Message: msg})
	if err != nil {
		t.Fatalf("EncodeOutbound: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("output is not JSON: %s", data)
	}
	if raw["type"] != TypeChatRoomMessageBroadcast || raw["roomId"] != "r1" || raw["threadId"] != float64(3) {
		t.Errorf("encoded frame = %s", data)
	}

	out, err := DecodeOutbound(data)
	if err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
	b := out.(ChatRoomMessageBroadcast)
	if b.Message.ID != 4 || b.Message.Text() != "yo" || b.Message.Status != store.StatusPending {
		t.Errorf("decoded broadcast = %+v", b.Message)
	}
}

func TestEncodeEmptyVariant(t *testing.T) {
	data, err := EncodeInbound(OrganizationInitRequest{})
	if err != nil {
		t.Fatalf("EncodeInbound: %v", err)
	}
	if string(data) != `{"type":"organization-init-request"}` {
		t.Errorf("encoded = %s", data)
	}
}

func TestErrorFrame(t *testing.T) {
	data, _ := EncodeOutbound(ErrorFrame{Code: "not_found", Message: "room r9 not found", RequestType: TypeChatRoomInitRequest})
	out, err := DecodeOutbound(data)
	if err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
	f := out.(ErrorFrame)
	if f.Code != "not_found" || f.RequestType != TypeChatRoomInitRequest {
		t.Errorf("error frame = %+v", f)
	}
}
