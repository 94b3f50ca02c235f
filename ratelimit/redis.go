// Copyright 2025 Sharp Ireland
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store over Redis for multi-instance deployments.
// Each record is a hash; every mutation runs as a single Lua script so the
// read-modify-write is atomic on the server, matching the conditional-update
// guarantee of the SQL backend.
//
// Unlike a cache, the store fails closed: any Redis error propagates to the
// limiter, which denies the request.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL connects a client from a redis:// URL and verifies
// connectivity before returning.
func NewRedisStoreFromURL(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(key Key) string {
	return fmt.Sprintf("ratelimit:%s:%s", key.UserID, key.IP)
}

// Hash fields: request_count, window_start (unix ms), blocked_until
// (unix ms, absent when not blocked), suspicious_count.

var incrementRequestScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local ws = tonumber(redis.call('HGET', KEYS[1], 'window_start'))
local count
if not ws or now - ws >= window then
  redis.call('HSET', KEYS[1], 'window_start', now, 'request_count', 1)
  local blocked = tonumber(redis.call('HGET', KEYS[1], 'blocked_until'))
  if blocked and blocked <= now then
    redis.call('HDEL', KEYS[1], 'blocked_until')
  end
  ws = now
  count = 1
else
  count = redis.call('HINCRBY', KEYS[1], 'request_count', 1)
end
redis.call('PEXPIRE', KEYS[1], ttl)
local blocked = redis.call('HGET', KEYS[1], 'blocked_until')
local susp = redis.call('HGET', KEYS[1], 'suspicious_count')
return {count, ws, blocked or 0, susp or 0}
`)

var incrementSuspiciousScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local blockUntil = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
if redis.call('HEXISTS', KEYS[1], 'window_start') == 0 then
  redis.call('HSET', KEYS[1], 'window_start', now, 'request_count', 0)
end
local susp = redis.call('HINCRBY', KEYS[1], 'suspicious_count', 1)
if susp >= threshold then
  redis.call('HSET', KEYS[1], 'blocked_until', blockUntil)
end
redis.call('PEXPIRE', KEYS[1], ttl)
local count = redis.call('HGET', KEYS[1], 'request_count')
local ws = redis.call('HGET', KEYS[1], 'window_start')
local blocked = redis.call('HGET', KEYS[1], 'blocked_until')
return {count or 0, ws or 0, blocked or 0, susp}
`)

var resetWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
redis.call('HSET', KEYS[1], 'window_start', now, 'request_count', 0)
local blocked = redis.call('HGET', KEYS[1], 'blocked_until')
local susp = redis.call('HGET', KEYS[1], 'suspicious_count')
return {0, now, blocked or 0, susp or 0}
`)

// Get returns the record for key, or ErrNotFound. HGETALL is read-only.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec := &Record{UserID: key.UserID, IP: key.IP}
	if v, ok := fields["request_count"]; ok {
		rec.RequestCount, _ = strconv.Atoi(v)
	}
	if v, ok := fields["suspicious_count"]; ok {
		rec.SuspiciousCount, _ = strconv.Atoi(v)
	}
	if v, ok := fields["window_start"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.WindowStart = time.UnixMilli(ms)
		}
	}
	if v, ok := fields["blocked_until"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			t := time.UnixMilli(ms)
			rec.BlockedUntil = &t
		}
	}
	return rec, nil
}

// IncrementRequest rolls the window over or increments the request count.
func (s *RedisStore) IncrementRequest(ctx context.Context, key Key, now time.Time, window time.Duration) (*Record, error) {
	reply, err := incrementRequestScript.Run(ctx, s.client, []string{redisKey(key)},
		now.UnixMilli(), window.Milliseconds(), recordTTL(window).Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("increment request count: %w", err)
	}
	return parseScriptReply(reply, key)
}

// IncrementSuspicious escalates the suspicion counter, blocking at threshold.
func (s *RedisStore) IncrementSuspicious(ctx context.Context, key Key, now time.Time, threshold int, blockedUntil time.Time) (*Record, error) {
	ttl := recordTTL(time.Until(blockedUntil))
	reply, err := incrementSuspiciousScript.Run(ctx, s.client, []string{redisKey(key)},
		now.UnixMilli(), threshold, blockedUntil.UnixMilli(), ttl.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("increment suspicious count: %w", err)
	}
	return parseScriptReply(reply, key)
}

// ResetWindow restarts the window with a zero request count.
func (s *RedisStore) ResetWindow(ctx context.Context, key Key, now time.Time) (*Record, error) {
	reply, err := resetWindowScript.Run(ctx, s.client, []string{redisKey(key)}, now.UnixMilli()).Result()
	if err != nil {
		return nil, fmt.Errorf("reset window: %w", err)
	}
	return parseScriptReply(reply, key)
}

// Reset removes the record entirely; the next request recreates it fresh.
func (s *RedisStore) Reset(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("reset rate limit record: %w", err)
	}
	return nil
}

// recordTTL keeps stale keys around long enough for any block to elapse.
func recordTTL(d time.Duration) time.Duration {
	ttl := 2 * d
	if ttl < 2*time.Hour {
		ttl = 2 * time.Hour
	}
	return ttl
}

// parseScriptReply decodes the {count, window_start, blocked_until,
// suspicious_count} array every script returns.
func parseScriptReply(reply interface{}, key Key) (*Record, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("unexpected script reply: %v", reply)
	}

	rec := &Record{UserID: key.UserID, IP: key.IP}
	rec.RequestCount = int(replyInt(values[0]))
	if ms := replyInt(values[1]); ms > 0 {
		rec.WindowStart = time.UnixMilli(ms)
	}
	if ms := replyInt(values[2]); ms > 0 {
		t := time.UnixMilli(ms)
		rec.BlockedUntil = &t
	}
	rec.SuspiciousCount = int(replyInt(values[3]))
	return rec, nil
}

func replyInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
