package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ably/ably-go/ably"
	"github.com/go-redis/redis/v8"
)

type RedisCtxKey struct{}
type AblyCtxKey struct{}

// RedisFrom returns the Redis client stored in ctx, or nil when the
// journal is not configured.
func RedisFrom(ctx context.Context) *redis.Client {
	rdb, _ := ctx.Value(RedisCtxKey{}).(*redis.Client)
	return rdb
}

func AblyFrom(ctx context.Context) *ably.Realtime {
	client, _ := ctx.Value(AblyCtxKey{}).(*ably.Realtime)
	return client
}

// LoadSnapshot reads the last journaled snapshot for a device. It returns
// nil, nil when nothing was journaled yet.
func LoadSnapshot(ctx context.Context, deviceID string) (*Snapshot, error) {
	rdb := RedisFrom(ctx)
	if rdb == nil {
		return nil, fmt.Errorf("no redis client in context")
	}
	val, err := rdb.Get(ctx, RoundKey(deviceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting round for %s: %w", deviceID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("error unmarshalling json data: %w. Raw: %s", err, val)
	}
	return &snap, nil
}

// ScoreboardChannel is the realtime channel announcements for a device go to.
func ScoreboardChannel(ctx context.Context, deviceID string) *ably.RealtimeChannel {
	client := AblyFrom(ctx)
	if client == nil {
		return nil
	}
	return client.Channels.Get("server:" + deviceID)
}
