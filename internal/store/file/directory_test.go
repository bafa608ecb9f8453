package file

import (
	"context"
	"path/filepath"
	"testing"
)

func TestDirectoryPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "directory.json")

	d, err := NewFileDirectoryStore(path)
	if err != nil {
		t.Fatalf("NewFileDirectoryStore: %v", err)
	}
	if err := d.UpsertRoom(ctx, "org", "r1", "general"); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}
	if err := d.AddRoomMembers(ctx, "r1", []string{"u1", "u2", "u1"}); err != nil {
		t.Fatalf("AddRoomMembers: %v", err)
	}
	// Idempotent retry.
	if err := d.AddRoomMembers(ctx, "r1", []string{"u2"}); err != nil {
		t.Fatalf("AddRoomMembers retry: %v", err)
	}

	d, err = NewFileDirectoryStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	ids, _ := d.ListRoomIDsForUser(ctx, "org", "u2")
	if len(ids) != 1 || ids[0] != "r1" {
		t.Fatalf("rooms for u2 = %v", ids)
	}
	if ids, _ := d.ListRoomIDsForUser(ctx, "other-org", "u2"); len(ids) != 0 {
		t.Errorf("rooms leaked across orgs: %v", ids)
	}

	if err := d.RemoveRoomMember(ctx, "r1", "u2"); err != nil {
		t.Fatalf("RemoveRoomMember: %v", err)
	}
	if err := d.RemoveRoomMember(ctx, "r1", "u2"); err != nil {
		t.Fatalf("RemoveRoomMember retry: %v", err)
	}
	if ids, _ := d.ListRoomIDsForUser(ctx, "org", "u2"); len(ids) != 0 {
		t.Errorf("u2 still indexed: %v", ids)
	}
}

func TestOrganizationMembership(t *testing.T) {
	ctx := context.Background()
	d, _ := NewFileDirectoryStore("")

	if ok, _ := d.IsOrganizationMember(ctx, "org", "anyone"); !ok {
		t.Fatal("organization without a member list should admit everyone")
	}
	if err := d.AddOrganizationMember(ctx, "org", "u1"); err != nil {
		t.Fatalf("AddOrganizationMember: %v", err)
	}
	if ok, _ := d.IsOrganizationMember(ctx, "org", "u1"); !ok {
		t.Error("u1 should be a member")
	}
	if ok, _ := d.IsOrganizationMember(ctx, "org", "u2"); ok {
		t.Error("u2 should not be a member once the org has a member list")
	}
}
