package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcascade.ai/internal/persistence/snapshot"
	"voxelcascade.ai/internal/persistence/store"
)

func sample(id string, tick int64) snapshot.RegionV1 {
	return snapshot.RegionV1{
		Header:  snapshot.Header{Version: snapshot.Version, RegionID: id, Tick: tick},
		Seed:    3,
		Height:  4,
		Palette: []string{"AIR", "LAMP"},
		Chunks:  []snapshot.ChunkV1{{CX: 0, CZ: 0, Height: 4, Blocks: "AIAI"}},
		BlockTicks: []snapshot.ChunkTicksV1{{
			Ticks: []snapshot.TickV1{{Type: "LAMP", Pos: [3]int{1, 1, 1}, Delay: 3}},
		}},
	}
}

func runContract(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Save(ctx, sample("beta", 5)))
	require.NoError(t, s.Save(ctx, sample("alpha", 9)))
	require.NoError(t, s.Save(ctx, sample("beta", 6)))

	got, err := s.Load(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, sample("beta", 6), got)

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)

	require.NoError(t, s.Delete(ctx, "alpha"))
	require.NoError(t, s.Delete(ctx, "alpha"))
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, ids)

	assert.Error(t, s.Save(ctx, sample("../escape", 1)))
	assert.Error(t, s.Save(ctx, sample("", 1)))
}

func TestFileStore_Contract(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
	assert.Equal(t, filepath.Join(s.Dir, "alpha.snap.zst"), s.Location("alpha"))
}

func newRedis(t *testing.T, opts ...store.RedisOption) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Contract(t *testing.T) {
	s, mr := newRedis(t)
	runContract(t, s)
	assert.True(t, mr.Exists("voxelcascade:region:beta"))
	assert.Equal(t, "redis:voxelcascade:region:beta", s.Location("beta"))
}

func TestRedisStore_ExpiredSnapshotsLeaveIndex(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedis(t, store.WithPrefix("test:"), store.WithTTL(time.Minute))

	require.NoError(t, s.Save(ctx, sample("r1", 1)))
	require.NoError(t, s.Save(ctx, sample("r2", 2)))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, s.Save(ctx, sample("r3", 3)))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, ids)

	_, err = s.Load(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStore_CorruptBlob(t *testing.T) {
	s, mr := newRedis(t)
	require.NoError(t, mr.Set("voxelcascade:region:bad", "not zstd"))

	_, err := s.Load(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
