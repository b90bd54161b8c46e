package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bringyour/kvbroker/internal/document"
)

// HostBridge stands in for "an embedded table store... behind an
// inter-process interface supplied by the host environment": the broker
// does not own this storage, it talks to a separate
// process over a network client, exactly the way a mobile host bridge
// exposes its native store to embedded code across a process boundary.
// The concrete transport is Redis via github.com/redis/go-redis/v9, the
// client Oremus-Labs-ol-model-manager depends on. Collections become key
// prefixes; QUERY uses a SCAN over the prefix since Redis has no notion of
// a collection.
type HostBridge struct {
	client *redis.Client
}

func NewHostBridge(addr string) *HostBridge {
	return &HostBridge{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		}),
	}
}

func (self *HostBridge) redisKey(collection, key string) string {
	return fmt.Sprintf("%s:%s", collection, key)
}

func (self *HostBridge) Get(ctx context.Context, collection, key string, opts Options) (document.Value, error) {
	raw, err := self.client.Get(ctx, self.redisKey(collection, key)).Result()
	if err == redis.Nil {
		return document.Null, nil
	}
	if err != nil {
		return document.Null, fmt.Errorf("hostbridge: get: %w", err)
	}
	var v document.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return document.Null, fmt.Errorf("hostbridge: decode %s/%s: %w", collection, key, err)
	}
	return v, nil
}

func (self *HostBridge) Set(ctx context.Context, collection, key string, value document.Value, opts Options) (SetResult, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return SetResult{}, err
	}
	if err := self.client.Set(ctx, self.redisKey(collection, key), raw, 0).Err(); err != nil {
		return SetResult{}, fmt.Errorf("hostbridge: set: %w", err)
	}
	return SetResult{Success: true, Key: key, Timestamp: time.Now().UnixMilli()}, nil
}

func (self *HostBridge) Delete(ctx context.Context, collection, key string, opts Options) (DeleteResult, error) {
	if err := self.client.Del(ctx, self.redisKey(collection, key)).Err(); err != nil {
		return DeleteResult{}, fmt.Errorf("hostbridge: delete: %w", err)
	}
	return DeleteResult{Deleted: key}, nil
}

func (self *HostBridge) Query(ctx context.Context, collection string, predicate map[string]document.Value, opts Options) ([]Row, error) {
	prefix := collection + ":"
	var out []Row
	iter := self.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		key := fullKey[len(prefix):]
		raw, err := self.client.Get(ctx, fullKey).Result()
		if err != nil {
			continue
		}
		var v document.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		fields := fieldsOf(v)
		if matches(fields, predicate) {
			out = append(out, Row{Key: key, Fields: fields})
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("hostbridge: scan: %w", err)
	}
	return out, nil
}

func (self *HostBridge) Close() error {
	return self.client.Close()
}
