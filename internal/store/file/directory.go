// Package file implements a JSON-file room directory for single-node
// deployments that run without Postgres.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

type roomEntry struct {
	OrganizationID string   `json:"organizationId"`
	Name           string   `json:"name"`
	Members        []string `json:"members"`
	CreatedAt      int64    `json:"createdAt"`
}

type snapshot struct {
	// Organizations maps org id to its member user ids. An organization with
	// no entry admits every user.
	Organizations map[string][]string   `json:"organizations"`
	Rooms         map[string]*roomEntry `json:"rooms"`
}

// FileDirectoryStore keeps the directory in memory and rewrites one JSON
// file after every change.
type FileDirectoryStore struct {
	mu   sync.RWMutex
	path string
	data snapshot
}

var _ store.DirectoryStore = (*FileDirectoryStore)(nil)

// NewFileDirectoryStore loads path if it exists. An empty path keeps the
// directory in memory only.
func NewFileDirectoryStore(path string) (*FileDirectoryStore, error) {
	s := &FileDirectoryStore{
		path: path,
		data: snapshot{Organizations: map[string][]string{}, Rooms: map[string]*roomEntry{}},
	}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse directory %s: %w", path, err)
	}
	if s.data.Organizations == nil {
		s.data.Organizations = map[string][]string{}
	}
	if s.data.Rooms == nil {
		s.data.Rooms = map[string]*roomEntry{}
	}
	return s, nil
}

func (s *FileDirectoryStore) IsOrganizationMember(_ context.Context, orgID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.data.Organizations[orgID]
	if !ok {
		return true, nil
	}
	return slices.Contains(members, userID), nil
}

func (s *FileDirectoryStore) AddOrganizationMember(_ context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.data.Organizations[orgID]
	if slices.Contains(members, userID) {
		return nil
	}
	s.data.Organizations[orgID] = append(members, userID)
	return s.saveLocked()
}

func (s *FileDirectoryStore) UpsertRoom(_ context.Context, orgID, roomID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.data.Rooms[roomID]; ok {
		if r.Name == name {
			return nil
		}
		r.Name = name
	} else {
		s.data.Rooms[roomID] = &roomEntry{OrganizationID: orgID, Name: name, Members: []string{}, CreatedAt: store.NowMillis()}
	}
	return s.saveLocked()
}

func (s *FileDirectoryStore) AddRoomMembers(_ context.Context, roomID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.Rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s is not indexed", roomID)
	}
	changed := false
	for _, id := range userIDs {
		if !slices.Contains(r.Members, id) {
			r.Members = append(r.Members, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveLocked()
}

func (s *FileDirectoryStore) RemoveRoomMember(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.Rooms[roomID]
	if !ok {
		return nil
	}
	i := slices.Index(r.Members, userID)
	if i < 0 {
		return nil
	}
	r.Members = slices.Delete(r.Members, i, i+1)
	return s.saveLocked()
}

// ListRoomIDsForUser returns room ids newest first.
func (s *FileDirectoryStore) ListRoomIDsForUser(_ context.Context, orgID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type hit struct {
		id string
		at int64
	}
	var hits []hit
	for id, r := range s.data.Rooms {
		if r.OrganizationID == orgID && slices.Contains(r.Members, userID) {
			hits = append(hits, hit{id, r.CreatedAt})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if a.at != b.at {
			if a.at > b.at {
				return -1
			}
			return 1
		}
		if a.id < b.id {
			return -1
		}
		return 1
	})
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.id)
	}
	return ids, nil
}

// saveLocked writes the directory atomically (temp file, then rename).
func (s *FileDirectoryStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, "directory-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
