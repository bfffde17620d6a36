package pool

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of idle connections a Cache retains when no
// explicit capacity is configured.
const DefaultCapacity = 5

// Opener dials a new database connection. The Cache calls it whenever no
// healthy idle connection is available.
type Opener func() (*Conn, error)

// Conn is a single reusable database connection. It wraps a *sql.DB pinned
// to one underlying connection so that a Conn is never shared by two
// sessions at once, and circulates between the Cache and in-flight sessions.
type Conn struct {
	db *sql.DB
}

// Dial opens a Conn for the given driver and DSN. The handle is limited to
// one underlying connection; pooling happens in the Cache, not in sql.DB.
func Dial(driver, dsn string) (*Conn, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driver, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Conn{db: db}, nil
}

// Ping reports whether the connection is still usable.
func (c *Conn) Ping() error {
	return c.db.Ping()
}

// Begin starts a transaction on the connection.
func (c *Conn) Begin() (*sql.Tx, error) {
	return c.db.Begin()
}

// Exec runs a statement outside any transaction, for per-connection setup
// such as pragmas.
func (c *Conn) Exec(query string, args ...any) (sql.Result, error) {
	return c.db.Exec(query, args...)
}

// Close releases the underlying handle permanently.
func (c *Conn) Close() error {
	return c.db.Close()
}

// Stats counts connection lifecycle events. Opened always equals Closed
// plus Idle plus the number of connections currently borrowed by sessions.
type Stats struct {
	Opened int64
	Closed int64
	Idle   int
}

// Cache is a bounded, process-wide holding area for idle connections.
// Acquire never blocks waiting for an idle connection: opening a fresh one
// is always the fallback, so the cache bounds idle handles only, never
// in-flight concurrency.
type Cache struct {
	mu       sync.Mutex
	idle     chan *Conn
	capacity int
	open     Opener

	opened atomic.Int64
	closed atomic.Int64
}

// New creates a Cache holding at most capacity idle connections. A capacity
// of zero or less falls back to DefaultCapacity. The cache registers itself
// for the process-wide fork reset; callers must Close it to deregister.
func New(capacity int, open Opener) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		idle:     make(chan *Conn, capacity),
		capacity: capacity,
		open:     open,
	}
	register(c)
	return c
}

// Acquire returns a healthy connection: a cached idle one when available,
// otherwise a freshly opened one. Dead cached connections are discarded
// silently.
func (c *Cache) Acquire() (*Conn, error) {
	for {
		select {
		case conn := <-c.idleChan():
			if conn.Ping() == nil {
				return conn, nil
			}
			c.Discard(conn)
		default:
			conn, err := c.open()
			if err != nil {
				return nil, err
			}
			c.opened.Add(1)
			return conn, nil
		}
	}
}

// Release returns an idle connection to the cache, or closes it when the
// cache is already full.
func (c *Cache) Release(conn *Conn) {
	select {
	case c.idleChan() <- conn:
	default:
		c.Discard(conn)
	}
}

// Discard closes a connection without returning it to the cache.
func (c *Cache) Discard(conn *Conn) {
	c.closed.Add(1)
	_ = conn.Close()
}

// Reset forgets every cached connection without closing it. It exists for
// one purpose: a process created by forking inherits os-level handles it
// must never touch, so the child swaps in an empty cache and builds its own
// connections. Callers reach it through OnProcessForked.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.idle = make(chan *Conn, c.capacity)
	c.mu.Unlock()
}

// Close drains and closes all idle connections and deregisters the cache
// from the fork-reset registry.
func (c *Cache) Close() error {
	deregister(c)
	for {
		select {
		case conn := <-c.idleChan():
			c.Discard(conn)
		default:
			return nil
		}
	}
}

// Stats returns lifecycle counters, used to verify that no connection is
// ever lost: every opened connection is either borrowed, idle here, or
// closed.
func (c *Cache) Stats() Stats {
	return Stats{
		Opened: c.opened.Load(),
		Closed: c.closed.Load(),
		Idle:   len(c.idleChan()),
	}
}

// idleChan snapshots the current idle channel. Reset swaps the channel
// under the mutex, so holders of a stale snapshot at worst release into a
// forgotten channel, which is exactly the post-fork semantics we want.
func (c *Cache) idleChan() chan *Conn {
	c.mu.Lock()
	ch := c.idle
	c.mu.Unlock()
	return ch
}

var (
	registryMu sync.Mutex
	registry   = make(map[*Cache]struct{})
)

func register(c *Cache) {
	registryMu.Lock()
	registry[c] = struct{}{}
	registryMu.Unlock()
}

func deregister(c *Cache) {
	registryMu.Lock()
	delete(registry, c)
	registryMu.Unlock()
}

// OnProcessForked resets every live Cache in the process. A child process
// must call it immediately after forking, before any database call; using a
// connection handle inherited from the parent is undefined behavior, and
// skipping the call is a programming error rather than a recoverable
// condition.
func OnProcessForked() {
	registryMu.Lock()
	caches := make([]*Cache, 0, len(registry))
	for c := range registry {
		caches = append(caches, c)
	}
	registryMu.Unlock()

	for _, c := range caches {
		c.Reset()
	}
}
