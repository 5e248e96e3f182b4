// Package store persists region snapshots.
package store

import (
	"context"
	"errors"

	"voxelcascade.ai/internal/persistence/snapshot"
)

var ErrNotFound = errors.New("store: region not found")

// Store is satisfied by FileStore and RedisStore.
type Store interface {
	Save(ctx context.Context, snap snapshot.RegionV1) error
	Load(ctx context.Context, regionID string) (snapshot.RegionV1, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, regionID string) error
	// Location names where a region's snapshot lives, for indexing.
	Location(regionID string) string
	Close() error
}

func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
