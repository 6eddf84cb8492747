package uploads

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis so in-flight uploads survive
// process restarts and horizontal scale-out. Selected with
// SESSION_STORE=redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed session store. ttl is the initial
// session lifetime; PutChunk slides it forward.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func metaKey(id string) string   { return "upload:session:" + id }
func chunksKey(id string) string { return "upload:chunks:" + id }

// Create registers a fresh session with the configured TTL.
func (r *RedisStore) Create(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, metaKey(session.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get returns session metadata. Expiry is enforced by Redis key TTL, so
// a missing key means expired or never created.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, metaKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	received, err := r.client.HLen(ctx, chunksKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	session.Received = int(received)
	return &session, nil
}

// PutChunk stores one chunk in the session's hash and refreshes both
// keys' TTL.
func (r *RedisStore) PutChunk(ctx context.Context, id string, index int, data []byte, ttl time.Duration) (int, error) {
	if err := r.client.Get(ctx, metaKey(id)).Err(); err == redis.Nil {
		return 0, ErrSessionNotFound
	} else if err != nil {
		return 0, fmt.Errorf("failed to check session: %w", err)
	}

	field := strconv.Itoa(index)
	if err := r.client.HSet(ctx, chunksKey(id), field, data).Err(); err != nil {
		return 0, fmt.Errorf("failed to store chunk %d: %w", index, err)
	}

	pipe := r.client.Pipeline()
	pipe.Expire(ctx, metaKey(id), ttl)
	pipe.Expire(ctx, chunksKey(id), ttl)
	received := pipe.HLen(ctx, chunksKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to refresh session expiry: %w", err)
	}

	return int(received.Val()), nil
}

// Chunks returns all stored chunks keyed by index.
func (r *RedisStore) Chunks(ctx context.Context, id string) (map[int][]byte, error) {
	fields, err := r.client.HGetAll(ctx, chunksKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	out := make(map[int][]byte, len(fields))
	for field, data := range fields {
		index, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("corrupt chunk index %q: %w", field, err)
		}
		out[index] = []byte(data)
	}
	return out, nil
}

// Delete removes a session and its chunks.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, metaKey(id), chunksKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SweepExpired is a no-op: Redis key TTLs enforce expiry natively.
func (r *RedisStore) SweepExpired(ctx context.Context) int {
	return 0
}
