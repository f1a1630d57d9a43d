package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"webmail/internal/model"
)

const (
	summaryKeyPrefix = "user:summary:"
	accountKeyPrefix = "user:account:"

	// 角色和启用状态以短 TTL 缓存，变更时由 Invalidate 立即清除
	accountTTL = time.Minute
)

func summaryKey(id int64) string {
	return summaryKeyPrefix + strconv.FormatInt(id, 10)
}

func accountKey(id int64) string {
	return accountKeyPrefix + strconv.FormatInt(id, 10)
}

// SummaryCache keeps participant summaries in redis as JSON strings.
type SummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SummaryCache{rdb: rdb, ttl: ttl}
}

// GetMany returns cached summaries and the ids that were not cached.
func (c *SummaryCache) GetMany(ctx context.Context, ids []int64) (map[int64]model.Participant, []int64, error) {
	hits := make(map[int64]model.Participant, len(ids))
	if len(ids) == 0 {
		return hits, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = summaryKey(id)
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids, fmt.Errorf("mget summaries: %w", err)
	}

	var misses []int64
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var p model.Participant
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			// 损坏的缓存当作未命中
			misses = append(misses, ids[i])
			continue
		}
		hits[ids[i]] = p
	}
	return hits, misses, nil
}

// SetMany stores summaries with the configured TTL in one pipeline.
func (c *SummaryCache) SetMany(ctx context.Context, ps []model.Participant) error {
	if len(ps) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range ps {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			pipe.Set(ctx, summaryKey(p.ID), data, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set summaries: %w", err)
	}
	return nil
}

// GetAccount returns the cached account, or nil on a miss.
func (c *SummaryCache) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	data, err := c.rdb.Get(ctx, accountKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	var a model.Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, nil
	}
	return &a, nil
}

func (c *SummaryCache) SetAccount(ctx context.Context, a model.Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, accountKey(a.ID), data, accountTTL).Err()
}

// Invalidate drops both the summary and the account entry for a user.
func (c *SummaryCache) Invalidate(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, summaryKey(id), accountKey(id)).Err()
}
