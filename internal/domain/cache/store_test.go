package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"xtts-server-go/internal/platform/config"
)

func writeCachedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cached.wav")
	if err := os.WriteFile(path, []byte("riff"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(time.Minute)
	t.Cleanup(func() { store.Close() })

	path := writeCachedFile(t)

	if _, ok, _ := store.Get(ctx, "fp1"); ok {
		t.Fatal("expected miss before Set")
	}

	if err := store.Set(ctx, "fp1", path); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, ok, err := store.Get(ctx, "fp1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok || got != path {
		t.Fatalf("expected hit with %s, got %q ok=%v", path, got, ok)
	}

	if err := store.Delete(ctx, "fp1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "fp1"); ok {
		t.Fatal("expected miss after Delete")
	}
}

func TestMemoryStoreDropsEntriesForRemovedFiles(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(time.Minute)
	t.Cleanup(func() { store.Close() })

	path := writeCachedFile(t)
	if err := store.Set(ctx, "fp", path); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := store.Get(ctx, "fp"); ok {
		t.Fatal("expected miss once the cached file is gone")
	}
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	store, err := NewRedis(config.CacheConfig{
		Enabled: true,
		TTL:     time.Minute,
		Redis:   config.RedisCacheConfig{Addr: mr.Addr()},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	path := writeCachedFile(t)

	if err := store.Set(ctx, "fp1", path); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, ok, err := store.Get(ctx, "fp1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok || got != path {
		t.Fatalf("expected hit with %s, got %q ok=%v", path, got, ok)
	}

	if err := store.Delete(ctx, "fp1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "fp1"); ok {
		t.Fatal("expected miss after Delete")
	}
}

func TestFactory(t *testing.T) {
	disabled, err := New(config.CacheConfig{Enabled: false})
	if err != nil || disabled != nil {
		t.Fatalf("disabled cache should be nil, got %v err=%v", disabled, err)
	}

	mem, err := New(config.CacheConfig{Enabled: true, Type: DriverMemory, TTL: time.Minute})
	if err != nil || mem == nil {
		t.Fatalf("memory cache construction failed: %v", err)
	}
	mem.Close()

	if _, err := New(config.CacheConfig{Enabled: true, Type: "memcached"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
