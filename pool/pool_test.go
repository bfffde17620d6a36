package pool

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func sqliteOpener(t *testing.T) Opener {
	t.Helper()
	dsn := fmt.Sprintf("file:%s", filepath.Join(t.TempDir(), "pool.db"))
	return func() (*Conn, error) {
		return Dial("sqlite3", dsn)
	}
}

func newTestCache(t *testing.T, capacity int) *Cache {
	t.Helper()
	c := New(capacity, sqliteOpener(t))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAcquireOpensWhenEmpty(t *testing.T) {
	c := newTestCache(t, 2)

	conn, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := conn.Ping(); err != nil {
		t.Fatalf("fresh connection not usable: %v", err)
	}
	c.Release(conn)

	stats := c.Stats()
	if stats.Opened != 1 {
		t.Errorf("expected 1 opened connection, got %d", stats.Opened)
	}
	if stats.Idle != 1 {
		t.Errorf("expected 1 idle connection, got %d", stats.Idle)
	}
}

func TestAcquireReusesIdle(t *testing.T) {
	c := newTestCache(t, 2)

	first, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	c.Release(first)

	second, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer c.Release(second)

	if first != second {
		t.Error("expected the idle connection to be reused")
	}
	if got := c.Stats().Opened; got != 1 {
		t.Errorf("expected 1 opened connection, got %d", got)
	}
}

func TestReleaseBeyondCapacityCloses(t *testing.T) {
	const capacity = 3
	const borrowed = 10
	c := newTestCache(t, capacity)

	conns := make([]*Conn, 0, borrowed)
	for i := 0; i < borrowed; i++ {
		conn, err := c.Acquire()
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		c.Release(conn)
	}

	stats := c.Stats()
	if stats.Idle != capacity {
		t.Errorf("expected %d idle connections, got %d", capacity, stats.Idle)
	}
	if stats.Closed != borrowed-capacity {
		t.Errorf("expected %d closed connections, got %d", borrowed-capacity, stats.Closed)
	}
	if stats.Opened != stats.Closed+int64(stats.Idle) {
		t.Errorf("connection leak: opened=%d closed=%d idle=%d",
			stats.Opened, stats.Closed, stats.Idle)
	}
}

func TestAcquireDiscardsDeadConnection(t *testing.T) {
	c := newTestCache(t, 2)

	conn, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	// Kill the handle behind the cache's back, then hand it back idle.
	conn.Close()
	c.Release(conn)

	replacement, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire after dead connection failed: %v", err)
	}
	defer c.Release(replacement)

	if replacement == conn {
		t.Error("dead connection was issued again")
	}
	if err := replacement.Ping(); err != nil {
		t.Errorf("replacement connection not usable: %v", err)
	}
}

func TestResetForgetsIdleConnections(t *testing.T) {
	c := newTestCache(t, 5)

	// Borrow three connections at once so three distinct handles exist,
	// then park them all in the cache.
	conns := make([]*Conn, 3)
	for i := range conns {
		conn, err := c.Acquire()
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		conns[i] = conn
	}
	for _, conn := range conns {
		c.Release(conn)
	}
	if c.Stats().Idle == 0 {
		t.Fatal("expected idle connections before reset")
	}

	c.Reset()

	if got := c.Stats().Idle; got != 0 {
		t.Errorf("expected empty cache after reset, got %d idle", got)
	}
}

func TestOnProcessForkedResetsRegisteredCaches(t *testing.T) {
	a := newTestCache(t, 2)
	b := newTestCache(t, 2)

	for _, c := range []*Cache{a, b} {
		conn, err := c.Acquire()
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		c.Release(conn)
	}

	OnProcessForked()

	if got := a.Stats().Idle; got != 0 {
		t.Errorf("cache a holds %d idle connections after fork reset", got)
	}
	if got := b.Stats().Idle; got != 0 {
		t.Errorf("cache b holds %d idle connections after fork reset", got)
	}

	// Both caches must still work in the "child".
	conn, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire after fork reset failed: %v", err)
	}
	a.Release(conn)
}

func TestConcurrentAcquireRelease(t *testing.T) {
	const goroutines = 16
	const iterations = 50
	const capacity = 4
	c := newTestCache(t, capacity)

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				conn, err := c.Acquire()
				if err != nil {
					errs <- err
					return
				}
				c.Release(conn)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent acquire failed: %v", err)
	}

	stats := c.Stats()
	if stats.Idle > capacity {
		t.Errorf("idle connections %d exceed capacity %d", stats.Idle, capacity)
	}
	if stats.Opened != stats.Closed+int64(stats.Idle) {
		t.Errorf("connection leak: opened=%d closed=%d idle=%d",
			stats.Opened, stats.Closed, stats.Idle)
	}
}
