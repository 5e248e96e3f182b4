package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxelcascade.ai/internal/persistence/snapshot"
)

const fileExt = ".snap.zst"

// FileStore keeps one zstd snapshot file per region under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.Dir, id+fileExt)
}

func (s *FileStore) Location(id string) string { return s.path(id) }

func (s *FileStore) Save(_ context.Context, snap snapshot.RegionV1) error {
	if !validID(snap.Header.RegionID) {
		return fmt.Errorf("store: invalid region id %q", snap.Header.RegionID)
	}
	return snapshot.WriteFile(s.path(snap.Header.RegionID), snap)
}

func (s *FileStore) Load(_ context.Context, regionID string) (snapshot.RegionV1, error) {
	if !validID(regionID) {
		return snapshot.RegionV1{}, fmt.Errorf("store: invalid region id %q", regionID)
	}
	snap, err := snapshot.ReadFile(s.path(regionID))
	if errors.Is(err, os.ErrNotExist) {
		return snap, ErrNotFound
	}
	return snap, err
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Delete(_ context.Context, regionID string) error {
	if !validID(regionID) {
		return fmt.Errorf("store: invalid region id %q", regionID)
	}
	err := os.Remove(s.path(regionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error { return nil }
