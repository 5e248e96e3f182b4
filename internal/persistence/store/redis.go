package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	backend "github.com/redis/go-redis/v9"

	"voxelcascade.ai/internal/persistence/snapshot"
)

// RedisStore keeps compressed snapshots under prefix+id and a sorted set
// of region ids scored by snapshot tick.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL expires snapshots; zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

func NewRedisStore(addr, password string, db int, opts ...RedisOption) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "voxelcascade:region:"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) Location(id string) string { return "redis:" + s.key(id) }

func (s *RedisStore) Save(ctx context.Context, snap snapshot.RegionV1) error {
	if !validID(snap.Header.RegionID) {
		return fmt.Errorf("store: invalid region id %q", snap.Header.RegionID)
	}
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(snap.Header.RegionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: float64(snap.Header.Tick), Member: snap.Header.RegionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, regionID string) (snapshot.RegionV1, error) {
	data, err := s.client.Get(ctx, s.key(regionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return snapshot.RegionV1{}, ErrNotFound
		}
		return snapshot.RegionV1{}, fmt.Errorf("get from redis: %w", err)
	}
	return snapshot.Unmarshal(data)
}

// List returns region ids in order, dropping index entries whose snapshot
// expired.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("list regions: %w", err)
		}
		if n == 0 {
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	sort.Strings(live)
	return live, nil
}

func (s *RedisStore) Delete(ctx context.Context, regionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(regionID))
	pipe.ZRem(ctx, s.indexKey(), regionID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
