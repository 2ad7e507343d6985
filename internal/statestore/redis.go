package statestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis stores each run as a hash at {prefix}{runID}. The set {prefix}index
// tracks run IDs for List.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return NewRedis(rdb, opts.KeyPrefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "sitegen:run:"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(runID string) string { return r.prefix + runID }
func (r *Redis) index() string           { return r.prefix + "index" }

func (r *Redis) Save(ctx context.Context, runID, fingerprint string, data []byte) error {
	if err := validRunID(runID); err != nil {
		return err
	}
	key := r.key(runID)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fields(fingerprint, data))
			p.SAdd(ctx, r.index(), runID)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, ErrExists):
		return ErrExists
	case errors.Is(err, redis.TxFailedErr):
		return ErrExists
	case err != nil:
		return fmt.Errorf("save run %s to redis: %w", runID, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, runID string) (Record, error) {
	vals, err := r.rdb.HGetAll(ctx, r.key(runID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load run %s from redis: %w", runID, err)
	}
	if len(vals) == 0 {
		return Record{}, ErrNotFound
	}
	rec := Record{RunID: runID, Fingerprint: vals["fingerprint"], Data: []byte(vals["data"])}
	if ts, err := time.Parse(time.RFC3339Nano, vals["updated_at"]); err == nil {
		rec.UpdatedAt = ts
	}
	return rec, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, runID, expected, fingerprint string, data []byte) error {
	key := r.key(runID)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "fingerprint").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != expected {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fields(fingerprint, data))
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case err != nil:
		return fmt.Errorf("swap run %s in redis: %w", runID, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, r.index()).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs from redis: %w", err)
	}
	out := ids[:0]
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func fields(fingerprint string, data []byte) map[string]any {
	return map[string]any{
		"fingerprint": fingerprint,
		"data":        data,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
}
