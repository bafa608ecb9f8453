package sessions

import "testing"

type fakeConn struct {
	id  string
	att Session
}

func (c *fakeConn) ID() string              { return c.id }
func (c *fakeConn) Send([]byte) error       { return nil }
func (c *fakeConn) Attachment() Session     { return c.att }
func (c *fakeConn) SetAttachment(s Session) { c.att = s }

func TestRegistryPersistsAttachment(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}
	r.Register(c, Session{UserID: "u1", OrganizationID: "org"})

	if !r.SetActiveRoom(c, "room-1") {
		t.Fatal("SetActiveRoom on registered conn returned false")
	}
	if c.att.ActiveRoomID != "room-1" {
		t.Errorf("attachment not updated: %+v", c.att)
	}
	s, ok := r.Get(c)
	if !ok || s.ActiveRoomID != "room-1" || s.UserID != "u1" {
		t.Errorf("Get = %+v, %v", s, ok)
	}

	r.Remove(c)
	if _, ok := r.Get(c); ok {
		t.Error("conn still registered after Remove")
	}
	if r.SetActiveRoom(c, "room-2") {
		t.Error("SetActiveRoom on removed conn should report false")
	}
}

func TestRebuildFromAttachments(t *testing.T) {
	a := &fakeConn{id: "a", att: Session{UserID: "u1", ActiveRoomID: "r1"}}
	b := &fakeConn{id: "b", att: Session{UserID: "u2", ActiveRoomID: "r2"}}
	c := &fakeConn{id: "c", att: Session{UserID: "u1", ActiveRoomID: "r2"}}

	r := Rebuild([]Conn{c, a, b})
	if r.Len() != 3 {
		t.Fatalf("Len = %d", r.Len())
	}
	inR2 := r.Match(func(s Session) bool { return s.ActiveRoomID == "r2" })
	if len(inR2) != 2 || inR2[0].ID() != "b" || inR2[1].ID() != "c" {
		t.Errorf("room r2 conns = %v", ids(inR2))
	}
	u1 := r.Match(func(s Session) bool { return s.UserID == "u1" })
	if len(u1) != 2 || u1[0].ID() != "a" {
		t.Errorf("user u1 conns = %v", ids(u1))
	}
}

func ids(conns []Conn) []string {
	out := make([]string, len(conns))
	for i, c := range conns {
		out[i] = c.ID()
	}
	return out
}
