package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCache_GetSet(t *testing.T) {
	clock := newClock()
	c := New[string](5*time.Minute, clock.Now)

	if _, ok := c.Get("k"); ok {
		t.Fatal("Get on empty cache should miss")
	}

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("Get() = %q, %v; want v, true", got, ok)
	}
}

func TestCache_Expiry(t *testing.T) {
	clock := newClock()
	c := New[string](5*time.Minute, clock.Now)
	c.Set("k", "v")

	clock.Advance(4*time.Minute + 59*time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should still be fresh before TTL")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should be expired at TTL")
	}
}

func TestCache_Sweep(t *testing.T) {
	clock := newClock()
	c := New[int](time.Minute, clock.Now)

	c.Set("old", 1)
	clock.Advance(2 * time.Minute)
	c.Set("new", 2)

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("fresh entry should survive sweep")
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[int](time.Minute, nil)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key should miss")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestCache_Defaults(t *testing.T) {
	c := New[int](0, nil)
	if c.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", c.TTL(), DefaultTTL)
	}
}

func TestCache_LastWriteWins(t *testing.T) {
	c := New[int](time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(fmt.Sprintf("k%d", i%5), i)
			c.Get("k0")
		}(i)
	}
	wg.Wait()

	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}

func TestCache_RunSweeper(t *testing.T) {
	clock := newClock()
	c := New[int](time.Minute, clock.Now)
	c.Set("k", 1)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int, 1)
	go c.RunSweeper(ctx, 10*time.Millisecond, func(n int) {
		select {
		case swept <- n:
		default:
		}
	})
	defer cancel()

	select {
	case n := <-swept:
		if n != 1 {
			t.Errorf("first sweep removed %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}
}

func TestKey(t *testing.T) {
	a := Key("s.myshopify.com", "query", map[string]any{"handle": "oud", "first": 1})
	b := Key("s.myshopify.com", "query", map[string]any{"first": 1, "handle": "oud"})
	if a != b {
		t.Error("keys with equal variables should match")
	}

	c := Key("t.myshopify.com", "query", map[string]any{"handle": "oud", "first": 1})
	if a == c {
		t.Error("keys for different domains should differ")
	}
}
