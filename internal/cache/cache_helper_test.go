package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type cachedValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestHelper(t *testing.T) *CacheHelper {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheHelper(client, "test:")
}

func TestCacheHelper_SetAndGet(t *testing.T) {
	helper := newTestHelper(t)
	ctx := context.Background()

	want := cachedValue{Name: "attempt", Count: 3}
	if err := helper.Set(ctx, "key1", want, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got cachedValue
	if err := helper.Get(ctx, "key1", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestCacheHelper_GetMissing(t *testing.T) {
	helper := newTestHelper(t)

	var got cachedValue
	err := helper.Get(context.Background(), "absent", &got)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("err = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper := newTestHelper(t)
	ctx := context.Background()

	if err := helper.Set(ctx, "key1", cachedValue{Name: "a"}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := helper.Set(ctx, "key2", cachedValue{Name: "b"}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := helper.Delete(ctx, "key1", "key2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var got cachedValue
	if err := helper.Get(ctx, "key1", &got); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("key1 still cached: %v", err)
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	helper := newTestHelper(t)
	ctx := context.Background()

	fetches := 0
	fetch := func() (interface{}, error) {
		fetches++
		return &cachedValue{Name: "fetched", Count: fetches}, nil
	}

	var first cachedValue
	if err := helper.CacheOrExecute(ctx, "key", &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if first.Name != "fetched" || fetches != 1 {
		t.Errorf("first = %+v, fetches = %d", first, fetches)
	}

	// The cache write is asynchronous, wait for it to land
	deadline := time.Now().Add(time.Second)
	for {
		if ok, _ := helper.Exists(ctx, "key"); ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	var second cachedValue
	if err := helper.CacheOrExecute(ctx, "key", &second, time.Minute, fetch); err != nil {
		t.Fatalf("Second CacheOrExecute failed: %v", err)
	}
	if fetches != 1 {
		t.Errorf("fetches = %d, want 1 (second read served from cache)", fetches)
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "test:")
	ctx := context.Background()

	if err := helper.Set(ctx, "key", cachedValue{}, time.Minute); err != nil {
		t.Errorf("Set with nil client should be a no-op: %v", err)
	}

	var got cachedValue
	if err := helper.Get(ctx, "key", &got); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("err = %v, want ErrCacheNotAvailable", err)
	}

	fetched := false
	err := helper.CacheOrExecute(ctx, "key", &got, time.Minute, func() (interface{}, error) {
		fetched = true
		return &cachedValue{Name: "db"}, nil
	})
	if err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if !fetched || got.Name != "db" {
		t.Errorf("Fetch fallback did not run: fetched=%v got=%+v", fetched, got)
	}
}
