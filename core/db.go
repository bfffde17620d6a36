package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shrek82/humdb/dialect"
	"github.com/shrek82/humdb/logger"
	"github.com/shrek82/humdb/pool"
)

// Config is the complete storage configuration. It holds no live handle,
// so it can be serialized, shipped to another process, and used to rebuild
// an equivalent DB there.
type Config struct {
	// Driver is the registered dialect/driver name: sqlite3, mysql or
	// postgres.
	Driver string `json:"driver"`
	// DSN names the database file or server the cache dials.
	DSN string `json:"dsn"`
	// CacheCapacity bounds idle cached connections; zero means the default.
	CacheCapacity int `json:"cache_capacity,omitempty"`
	// RowMode is the default row shape for sessions.
	RowMode RowMode `json:"row_mode,omitempty"`
}

// DB is the storage facade for songs and their fingerprint hashes. Any
// number of goroutines may call it concurrently; each call borrows one
// connection from the cache for the duration of one transaction.
type DB struct {
	cfg     Config
	cache   *pool.Cache
	dialect dialect.Dialect
	logger  logger.Logger
	lookup  LookupCache
}

// Open validates the configuration, builds the connection cache and
// verifies that one connection can actually be established.
func Open(cfg Config) (*DB, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, fmt.Errorf("%w: driver and dsn are required", ErrInvalidConfig)
	}
	d, ok := dialect.Get(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, cfg.Driver)
	}

	opener := func() (*pool.Conn, error) {
		conn, err := pool.Dial(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		for _, stmt := range d.ConnInit() {
			if _, err := conn.Exec(stmt); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("connection init %q: %w", stmt, err)
			}
		}
		return conn, nil
	}

	db := &DB{
		cfg:     cfg,
		cache:   pool.New(cfg.CacheCapacity, opener),
		dialect: d,
		logger:  logger.NewStdLogger(),
	}

	conn, err := db.cache.Acquire()
	if err != nil {
		_ = db.cache.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := conn.Ping(); err != nil {
		db.cache.Discard(conn)
		_ = db.cache.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	db.cache.Release(conn)
	return db, nil
}

// OpenFromJSON rebuilds a DB from a serialized Config, the cross-process
// handoff path: the parent marshals db.Config(), the child unmarshals and
// opens its own connections.
func OpenFromJSON(data []byte) (*DB, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return Open(cfg)
}

// Config returns the configuration the DB was opened with.
func (db *DB) Config() Config { return db.cfg }

// MarshalConfig serializes the configuration for cross-process handoff.
func (db *DB) MarshalConfig() ([]byte, error) {
	return json.Marshal(db.cfg)
}

// Close shuts the lookup cache (if any) and discards all idle connections.
func (db *DB) Close() error {
	if db.lookup != nil {
		if err := db.lookup.Close(); err != nil {
			db.logger.Warn("closing lookup cache: %v", err)
		}
	}
	return db.cache.Close()
}

// SetLogger replaces the default logger.
func (db *DB) SetLogger(l logger.Logger) {
	db.logger = l
}

// Use installs a lookup cache; hash lookups read through it and every
// mutating operation invalidates it.
func (db *DB) Use(c LookupCache) {
	db.lookup = c
	db.logger.Info("lookup cache installed: %s", c.Name())
}

// Stats exposes the connection cache counters.
func (db *DB) Stats() pool.Stats {
	return db.cache.Stats()
}

func (db *DB) logSQL(sql string, duration time.Duration, args ...any) {
	if db.logger != nil {
		db.logger.SQL(sql, duration, args...)
	}
}

// classify maps driver constraint errors onto the package sentinels so
// callers can match with errors.Is regardless of backend.
func (db *DB) classify(err error) error {
	switch {
	case db.dialect.IsDuplicate(err):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	case db.dialect.IsForeignKey(err):
		return fmt.Errorf("%w: %v", ErrForeignKey, err)
	default:
		return err
	}
}

func (db *DB) invalidateLookup() {
	if db.lookup != nil {
		if err := db.lookup.Invalidate(context.Background()); err != nil {
			db.logger.Warn("lookup cache invalidation failed: %v", err)
		}
	}
}

func hexToBytes(h string) ([]byte, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", h, err)
	}
	return b, nil
}

func bytesToHex(b []byte) string {
	return strings.ToLower(hex.EncodeToString(b))
}
