package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

func TestDialRequiresIdentity(t *testing.T) {
	if _, err := Dial(context.Background(), Options{URL: "ws://localhost:1", UserID: "u1"}); err == nil {
		t.Fatal("expected error without organization")
	}
}

func TestDialSendsIdentityAndDecodesFrames(t *testing.T) {
	handshake := make(chan [3]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handshake <- [3]string{r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")}
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		ctx := r.Context()
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		typ, _ := protocol.PeekType(data)
		frame, _ := protocol.EncodeOutbound(protocol.ErrorFrame{Code: "invalid_request", Message: "nope", RequestType: typ})
		ws.Write(ctx, websocket.MessageText, frame)
		ws.Close(websocket.StatusPolicyViolation, "bye")
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := Dial(ctx, Options{URL: "ws" + srv.URL[len("http"):], Token: "tok", UserID: "u1", OrganizationID: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Send(ctx, protocol.OrganizationInitRequest{}); err != nil {
		t.Fatal(err)
	}
	ev, err := c.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := ev.(protocol.ErrorFrame); !ok || e.RequestType != protocol.TypeOrganizationInitRequest {
		t.Errorf("frame = %#v", ev)
	}
	_, err = c.Read(ctx)
	if ce, ok := err.(*CloseError); !ok || ce.Code != int(websocket.StatusPolicyViolation) || ce.Reason != "bye" {
		t.Errorf("close err = %v", err)
	}

	if hs := <-handshake; hs != [3]string{"/ws", "organizationId=acme&userId=u1", "Bearer tok"} {
		t.Errorf("handshake = %q", hs)
	}
}
