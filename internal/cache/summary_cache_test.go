package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"webmail/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) (*SummaryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSummaryCache(rdb, ttl), mr
}

func TestSummaryKey(t *testing.T) {
	if got := summaryKey(42); got != "user:summary:42" {
		t.Errorf("summaryKey(42) = %q", got)
	}
}

func TestNewSummaryCacheDefaultTTL(t *testing.T) {
	c := NewSummaryCache(nil, 0)
	if c.ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m default", c.ttl)
	}
}

func TestGetManySplitsHitsAndMisses(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	alice := model.Participant{ID: 1, FirstName: "Alice", LastName: "Doe", Email: "alice@example.com"}
	if err := c.SetMany(ctx, []model.Participant{alice}); err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}

	hits, misses, err := c.GetMany(ctx, []int64{1, 2})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(hits) != 1 || hits[1] != alice {
		t.Errorf("hits = %+v", hits)
	}
	if len(misses) != 1 || misses[0] != 2 {
		t.Errorf("misses = %v, want [2]", misses)
	}

	hits, misses, err = c.GetMany(ctx, nil)
	if err != nil || len(hits) != 0 || misses != nil {
		t.Errorf("GetMany(nil) = %v, %v, %v", hits, misses, err)
	}
}

func TestGetManyTreatsCorruptEntryAsMiss(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	if err := mr.Set(summaryKey(7), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	hits, misses, err := c.GetMany(context.Background(), []int64{7})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(hits) != 0 || len(misses) != 1 || misses[0] != 7 {
		t.Errorf("hits = %v misses = %v, want a miss for 7", hits, misses)
	}
}

func TestSetManyAppliesTTL(t *testing.T) {
	c, mr := newTestCache(t, 5*time.Minute)
	ctx := context.Background()

	err := c.SetMany(ctx, []model.Participant{{ID: 1, Email: "a@example.com"}, {ID: 2, Email: "b@example.com"}})
	if err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}
	for _, id := range []int64{1, 2} {
		if ttl := mr.TTL(summaryKey(id)); ttl != 5*time.Minute {
			t.Errorf("ttl(%d) = %v, want 5m", id, ttl)
		}
	}

	mr.FastForward(6 * time.Minute)
	_, misses, err := c.GetMany(ctx, []int64{1, 2})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(misses) != 2 {
		t.Errorf("misses after expiry = %v, want both", misses)
	}
}

func TestAccountRoundTripAndInvalidate(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	got, err := c.GetAccount(ctx, 3)
	if err != nil || got != nil {
		t.Fatalf("GetAccount() on miss = %v, %v", got, err)
	}

	want := model.Account{ID: 3, Role: model.RoleAdmin, IsActive: true}
	if err := c.SetAccount(ctx, want); err != nil {
		t.Fatalf("SetAccount() error = %v", err)
	}
	if ttl := mr.TTL(accountKey(3)); ttl != accountTTL {
		t.Errorf("account ttl = %v, want %v", ttl, accountTTL)
	}
	got, err = c.GetAccount(ctx, 3)
	if err != nil || got == nil || *got != want {
		t.Fatalf("GetAccount() = %v, %v", got, err)
	}

	if err := c.SetMany(ctx, []model.Participant{{ID: 3, Email: "c@example.com"}}); err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}
	if err := c.Invalidate(ctx, 3); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if mr.Exists(summaryKey(3)) || mr.Exists(accountKey(3)) {
		t.Error("Invalidate() should drop both the summary and the account entry")
	}
}

func TestCacheErrorsWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	if _, misses, err := c.GetMany(context.Background(), []int64{1}); err == nil || len(misses) != 1 {
		t.Errorf("GetMany() = misses %v err %v, want an error with every id missed", misses, err)
	}
	if _, err := c.GetAccount(context.Background(), 1); err == nil {
		t.Error("GetAccount() should fail when redis is down")
	}
}
