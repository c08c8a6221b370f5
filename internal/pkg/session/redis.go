package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisRegistry.
const DefaultRedisPrefix = "authgate:"

const maxWatchRetries = 5

// createScript stores the record only when neither the id nor its revocation
// tombstone exists, then indexes it under the owner.
//
// KEYS: session, owner index, tombstone
// ARGV: record json, ttl ms, score, id
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
  return 0
end
if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[2]) then
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return 1
`)

// RedisRegistry stores each session as a JSON string with a native expiry
// and keeps a per-owner sorted set scored by last use.
type RedisRegistry struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis returns a registry on rdb. An empty prefix means
// DefaultRedisPrefix.
func NewRedis(rdb redis.UniversalClient, prefix string) *RedisRegistry {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRegistry{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *RedisRegistry) key(id string) string      { return r.prefix + "session:" + id }
func (r *RedisRegistry) ownerKey(sub string) string { return r.prefix + "owner:" + sub }
func (r *RedisRegistry) tombKey(id string) string   { return r.prefix + "revoked:" + id }

func (r *RedisRegistry) Create(ctx context.Context, rec *Record) (string, error) {
	now := r.now()
	if err := prepare(rec, now, uuid.NewString); err != nil {
		return "", err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	ttl := rec.ExpiresAt.Sub(now).Milliseconds()
	if ttl <= 0 {
		return "", ErrInvalid
	}
	keys := []string{r.key(rec.ID), r.ownerKey(rec.OwnerSubjectID), r.tombKey(rec.ID)}
	ok, err := createScript.Run(ctx, r.rdb, keys, data, ttl, score(rec.LastUsedAt), rec.ID).Int()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if ok != 1 {
		return "", ErrExists
	}
	return rec.ID, nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := r.load(ctx, r.rdb, r.key(id))
	if err != nil {
		return nil, err
	}
	if !rec.ExpiresAt.After(r.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (r *RedisRegistry) List(ctx context.Context, owner string) ([]Record, error) {
	live, _, err := r.sweepOwner(ctx, r.ownerKey(owner))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(live))
	for _, rec := range live {
		if rec.OwnerSubjectID == owner {
			out = append(out, rec)
		}
	}
	sortByLastUsed(out)
	return out, nil
}

// Touch is best effort. A touch that loses a race with a revoke is dropped.
func (r *RedisRegistry) Touch(ctx context.Context, id string) error {
	key := r.key(id)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		now := r.now()
		if !rec.ExpiresAt.After(now) {
			return ErrNotFound
		}
		rec.LastUsedAt = now
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, redis.KeepTTL)
			p.ZAdd(ctx, r.ownerKey(rec.OwnerSubjectID), redis.Z{Score: score(now), Member: id})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrNotFound) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (r *RedisRegistry) Revoke(ctx context.Context, id string) error {
	key := r.key(id)
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := r.load(ctx, tx, key)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			ttl := rec.ExpiresAt.Sub(r.now())
			if ttl < time.Second {
				ttl = time.Second
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, key)
				p.ZRem(ctx, r.ownerKey(rec.OwnerSubjectID), id)
				p.Set(ctx, r.tombKey(id), "1", ttl)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("revoke session %s: %w", id, redis.TxFailedErr)
}

func (r *RedisRegistry) RevokeAllExcept(ctx context.Context, owner, keep string) error {
	ids, err := r.rdb.ZRange(ctx, r.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == keep {
			continue
		}
		if err := r.Revoke(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes owner index entries whose session key already expired.
// Session keys themselves expire natively.
func (r *RedisRegistry) Prune(ctx context.Context) (int64, error) {
	var total int64
	iter := r.rdb.Scan(ctx, 0, r.prefix+"owner:*", 200).Iterator()
	for iter.Next(ctx) {
		_, removed, err := r.sweepOwner(ctx, iter.Val())
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, iter.Err()
}

// sweepOwner loads every record indexed under ownerKey and drops index
// members whose record is gone.
func (r *RedisRegistry) sweepOwner(ctx context.Context, ownerKey string) ([]Record, int64, error) {
	ids, err := r.rdb.ZRevRange(ctx, ownerKey, 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return nil, 0, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}

	now := r.now()
	live := make([]Record, 0, len(ids))
	var stale []interface{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		if rec.ExpiresAt.After(now) {
			live = append(live, rec)
		}
	}
	if len(stale) == 0 {
		return live, 0, nil
	}
	removed, err := r.rdb.ZRem(ctx, ownerKey, stale...).Result()
	return live, removed, err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisRegistry) load(ctx context.Context, g getter, key string) (*Record, error) {
	raw, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

func score(t time.Time) float64 { return float64(t.UnixMilli()) }
