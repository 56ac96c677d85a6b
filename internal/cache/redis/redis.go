package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	base "github.com/webitel/datum-exporter/internal/cache"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

var _ base.Cache = (*RedisCache)(nil)

const (
	StatusChannel   = "datum_export.job_status"
	statusKeyPrefix = "datum_export:status:"
	defaultTTL      = 24 * time.Hour
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Ping Redis to check the connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", addr, err)
	}

	return &RedisCache{client: rdb, ttl: defaultTTL}, nil
}

// Client exposes the connection for components sharing it, such as the redis destination.
func (r *RedisCache) Client() *redis.Client { return r.client }

// WithTTL sets how long status snapshots are kept.
func (r *RedisCache) WithTTL(ttl time.Duration) *RedisCache {
	if ttl > 0 {
		r.ttl = ttl
	}
	return r
}

func (r *RedisCache) PostEvent(ctx context.Context, ev *export.JobStatusChanged) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, statusKey(ev.JobID), data, r.ttl)
		p.Publish(ctx, StatusChannel, data)
		return nil
	})
	return err
}

func (r *RedisCache) GetJobStatus(ctx context.Context, jobID string) (*export.JobStatusChanged, error) {
	data, err := r.client.Get(ctx, statusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ev export.JobStatusChanged
	if err = json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *RedisCache) DeleteJobStatus(ctx context.Context, jobID string) error {
	return r.client.Del(ctx, statusKey(jobID)).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// helper to standardize keys
func statusKey(jobID string) string {
	return statusKeyPrefix + jobID
}
