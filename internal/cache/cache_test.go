package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		if err := c.Set(ctx, "key", []byte("value"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, "key")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value" {
			t.Errorf("got %q, want %q", val, "value")
		}
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		val, err := c.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil on miss, got %q", val)
		}
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		if err := c.Set(ctx, "key", []byte("value"), -time.Second); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, "key")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expected expired entry to be a miss")
		}
	})

	t.Run("evicts oldest beyond capacity", func(t *testing.T) {
		c := NewLRUCache(2)
		defer c.Close()

		c.Set(ctx, "a", []byte("1"), time.Minute)
		c.Set(ctx, "b", []byte("2"), time.Minute)
		c.Set(ctx, "c", []byte("3"), time.Minute)

		if val, _ := c.Get(ctx, "a"); val != nil {
			t.Error("oldest entry should have been evicted")
		}
		if val, _ := c.Get(ctx, "c"); val == nil {
			t.Error("newest entry should survive")
		}

		size, capacity := c.Stats()
		if size != 2 || capacity != 2 {
			t.Errorf("stats = %d/%d, want 2/2", size, capacity)
		}
	})

	t.Run("delete removes entry", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		c.Set(ctx, "key", []byte("value"), time.Minute)
		if err := c.Delete(ctx, "key"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, "key"); val != nil {
			t.Error("deleted entry should be gone")
		}
	})
}

func TestResultCaching(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)
	defer c.Close()

	fingerprint := "abc123"
	result := &domain.FraudCheckResult{
		FraudScore:   87,
		IsSuspicious: true,
		ExpectedKm:   145000,
		Reasons:      []string{"mileage far below expectation"},
	}

	t.Run("round trip by fingerprint", func(t *testing.T) {
		if err := c.SetResult(ctx, fingerprint, result, time.Minute); err != nil {
			t.Fatalf("SetResult failed: %v", err)
		}

		got, err := c.GetResult(ctx, fingerprint)
		if err != nil {
			t.Fatalf("GetResult failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected cached result")
		}
		if got.FraudScore != 87 || !got.IsSuspicious || len(got.Reasons) != 1 {
			t.Errorf("result = %+v", got)
		}
	})

	t.Run("unknown fingerprint misses", func(t *testing.T) {
		got, err := c.GetResult(ctx, "unknown")
		if err != nil {
			t.Fatalf("GetResult failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected miss, got %+v", got)
		}
	})
}

func TestIncrementCounter(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)
	defer c.Close()

	t.Run("counts within window", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := c.IncrementCounter(ctx, "fp", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("count = %d, want %d", got, want)
			}
		}
	})

	t.Run("expired window restarts at one", func(t *testing.T) {
		if _, err := c.IncrementCounter(ctx, "short", -time.Second); err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}

		got, err := c.IncrementCounter(ctx, "short", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 1 {
			t.Errorf("count = %d, want 1 after window expiry", got)
		}
	})

	t.Run("counters are independent per key", func(t *testing.T) {
		got, err := c.IncrementCounter(ctx, "other", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 1 {
			t.Errorf("count = %d, want 1 for fresh key", got)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("memory type builds LRU", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("unknown type fails", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
