package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ttl), mr
}

func TestRedis_LoadSave(t *testing.T) {
	c, mr := newTestRedis(t, time.Hour)
	ctx := context.Background()

	if _, ok, err := c.Load(ctx, "shop|default|foo"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	value := map[string]float64{"bar": 0.1, "baz": 0.1}
	if err := c.Save(ctx, "shop|default|foo", value, []string{IndexTag("shop")}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Load(ctx, "shop|default|foo")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got["bar"] != 0.1 {
		t.Errorf("got %v", got)
	}
	if !mr.Exists(valuePrefix + "shop|default|foo") {
		t.Error("value key missing")
	}
	if ttl := mr.TTL(valuePrefix + "shop|default|foo"); ttl != time.Hour {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestRedis_expires(t *testing.T) {
	c, mr := newTestRedis(t, time.Minute)
	ctx := context.Background()
	_ = c.Save(ctx, "k", map[string]float64{"a": 0.5}, nil)
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.Load(ctx, "k"); ok {
		t.Error("expected miss after ttl")
	}
}

func TestRedis_InvalidateTag(t *testing.T) {
	c, _ := newTestRedis(t, 0)
	ctx := context.Background()
	_ = c.Save(ctx, "shop|default|a", map[string]float64{}, []string{IndexTag("shop"), ContainerTag("default")})
	_ = c.Save(ctx, "shop|default|b", map[string]float64{}, []string{IndexTag("shop"), ContainerTag("default")})
	_ = c.Save(ctx, "blog|promo|a", map[string]float64{}, []string{IndexTag("blog"), ContainerTag("promo")})

	n, err := c.InvalidateTag(ctx, IndexTag("shop"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("dropped %d, want 2", n)
	}
	if _, ok, _ := c.Load(ctx, "shop|default|a"); ok {
		t.Error("expected shop entry gone")
	}
	if _, ok, _ := c.Load(ctx, "blog|promo|a"); !ok {
		t.Error("expected blog entry kept")
	}

	n, err = c.InvalidateTag(ctx, ContainerTag("default"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second invalidation dropped %d, want 0", n)
	}
}

func TestRedis_InvalidateTagInBatches(t *testing.T) {
	c, mr := newTestRedis(t, 0)
	ctx := context.Background()
	total := invalidateBatch*2 + 7
	for i := 0; i < total; i++ {
		if err := c.Save(ctx, fmt.Sprintf("shop|default|q%d", i), map[string]float64{}, []string{IndexTag("shop")}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.InvalidateTag(ctx, IndexTag("shop"))
	if err != nil {
		t.Fatal(err)
	}
	if n != total {
		t.Errorf("dropped %d, want %d", n, total)
	}
	if mr.Exists(tagPrefix + IndexTag("shop")) {
		t.Error("expected tag set removed")
	}
}

func TestRedis_saveDuringInvalidationKeepsMembership(t *testing.T) {
	c, mr := newTestRedis(t, 0)
	ctx := context.Background()
	for i := 0; i < invalidateBatch*4; i++ {
		_ = c.Save(ctx, fmt.Sprintf("shop|default|old%d", i), map[string]float64{}, []string{IndexTag("shop")})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = c.Save(ctx, fmt.Sprintf("shop|default|new%d", i), map[string]float64{}, []string{IndexTag("shop")})
		}
	}()
	if _, err := c.InvalidateTag(ctx, IndexTag("shop")); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	// every surviving entry must still be reachable through its tag
	members := map[string]bool{}
	if mr.Exists(tagPrefix + IndexTag("shop")) {
		list, err := mr.SMembers(tagPrefix + IndexTag("shop"))
		if err != nil {
			t.Fatal(err)
		}
		for _, m := range list {
			members[m] = true
		}
	}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("shop|default|new%d", i)
		if _, ok, _ := c.Load(ctx, key); ok && !members[valuePrefix+key] {
			t.Errorf("%s cached but missing from its tag set", key)
		}
	}

	if _, err := c.InvalidateTag(ctx, IndexTag("shop")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if _, ok, _ := c.Load(ctx, fmt.Sprintf("shop|default|new%d", i)); ok {
			t.Fatalf("new%d survived a second invalidation", i)
		}
	}
}

func TestRedis_loadReportsCorruptValue(t *testing.T) {
	c, mr := newTestRedis(t, 0)
	if err := mr.Set(valuePrefix+"k", "not json"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Load(context.Background(), "k"); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewRedisClient_unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisClient(ctx, RedisOptions{Addr: addr}); err == nil {
		t.Error("expected ping error")
	}
}
