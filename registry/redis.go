package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/go-redis/redis/v8"
)

const (
	fieldMetadata = "metadata"
	fieldArtifact = "artifact"
)

// RedisStore keeps each bundle in a hash with a metadata and an artifact field and indexes the
// kinds of a resource and entity in a set. Save replaces the hash inside MULTI/EXEC so readers see
// either the previous or the new bundle.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisStoreFromClient(client, prefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "forecaster"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) bundleKey(key Key) string {
	return fmt.Sprintf("%s:model:%s:%s:%s", s.prefix, key.Resource, key.Entity, key.Kind)
}

func (s *RedisStore) indexKey(r feature.Resource, entity string) string {
	return fmt.Sprintf("%s:models:%s:%s", s.prefix, r, entity)
}

func (s *RedisStore) Save(ctx context.Context, key Key, b *Bundle) error {
	if err := b.Validate(key); err != nil {
		return err
	}
	metaData, artifactData, err := encode(b)
	if err != nil {
		return err
	}

	bk := s.bundleKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, bk)
		if artifactData != nil {
			pipe.HSet(ctx, bk, fieldMetadata, metaData, fieldArtifact, artifactData)
		} else {
			pipe.HSet(ctx, bk, fieldMetadata, metaData)
		}
		pipe.SAdd(ctx, s.indexKey(key.Resource, key.Entity), string(key.Kind))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis MULTI save of %s failed: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key Key) (*Bundle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	fields, err := s.client.HGetAll(ctx, s.bundleKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL failed: %w", err)
	}
	meta, ok := fields[fieldMetadata]
	if !ok {
		return nil, fmt.Errorf("%s, %w", key, ErrNotFound)
	}
	return decode([]byte(meta), []byte(fields[fieldArtifact]))
}

func (s *RedisStore) List(ctx context.Context, r feature.Resource, entity string) ([]Metadata, error) {
	if err := ValidateEntity(entity); err != nil {
		return nil, err
	}
	kinds, err := s.client.SMembers(ctx, s.indexKey(r, entity)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS failed: %w", err)
	}
	sort.Strings(kinds)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(kinds))
	for i, k := range kinds {
		cmds[i] = pipe.HGet(ctx, fmt.Sprintf("%s:model:%s:%s:%s", s.prefix, r, entity, k), fieldMetadata)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis HGET pipeline failed: %w", err)
	}

	out := make([]Metadata, 0, len(kinds))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		b, err := decode([]byte(data), nil)
		if err != nil {
			return nil, err
		}
		out = append(out, b.Metadata)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, r feature.Resource, entity string) error {
	if err := ValidateEntity(entity); err != nil {
		return err
	}
	idx := s.indexKey(r, entity)
	kinds, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("redis SMEMBERS failed: %w", err)
	}
	if len(kinds) == 0 {
		return fmt.Errorf("%s/%s, %w", r, entity, ErrNotFound)
	}
	keys := []string{idx}
	for _, k := range kinds {
		keys = append(keys, fmt.Sprintf("%s:model:%s:%s:%s", s.prefix, r, entity, k))
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
