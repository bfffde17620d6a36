package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shrek82/humdb/pool"
)

func TestAtomicCommitsOnSuccess(t *testing.T) {
	db := openTestDB(t)

	var id int64
	err := db.Atomic(func(s *Session) error {
		var err error
		id, err = s.InsertSong("kept", testFileSHA1, 1)
		if err != nil {
			return err
		}
		return s.InsertFingerprints(id, []Fingerprint{{Hash: "0102030405060708090a", Offset: 1}})
	})
	if err != nil {
		t.Fatalf("Atomic failed: %v", err)
	}

	if _, found, _ := db.SongByID(id); !found {
		t.Error("committed song not found")
	}
	n, _ := db.CountFingerprints()
	if n != 1 {
		t.Errorf("fingerprint count = %d, want 1", n)
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	db := openTestDB(t)

	boom := errors.New("boom")
	var id int64
	err := db.Atomic(func(s *Session) error {
		var err error
		id, err = s.InsertSong("discarded", testFileSHA1, 1)
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic returned %v, want the original error", err)
	}

	if _, found, _ := db.SongByID(id); found {
		t.Error("rolled-back song is visible")
	}
}

func TestAtomicRollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)

	var id int64
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		_ = db.Atomic(func(s *Session) error {
			var err error
			id, err = s.InsertSong("panicked", testFileSHA1, 1)
			if err != nil {
				return err
			}
			panic("mid-transaction failure")
		})
	}()

	if id == 0 {
		t.Fatal("insert inside the panicking session did not run")
	}
	if _, found, err := db.SongByID(id); err != nil {
		t.Fatalf("query after panic failed: %v", err)
	} else if found {
		t.Error("rolled-back song is visible after panic")
	}
}

func TestSessionEndExactlyOnce(t *testing.T) {
	db := openTestDB(t)

	s, err := db.newSession(RowTuple)
	if err != nil {
		t.Fatalf("newSession failed: %v", err)
	}
	if err := s.End(nil); err != nil {
		t.Fatalf("first End failed: %v", err)
	}
	if err := s.End(nil); !errors.Is(err, ErrTxFinished) {
		t.Errorf("second End = %v, want ErrTxFinished", err)
	}
	if _, err := s.Exec("SELECT 1"); !errors.Is(err, ErrTxFinished) {
		t.Errorf("Exec after End = %v, want ErrTxFinished", err)
	}
}

func TestSessionLeakUnderFailures(t *testing.T) {
	db := openTestDB(t)

	boom := errors.New("forced failure")
	const sessions = 1000
	for i := 0; i < sessions; i++ {
		err := db.Atomic(func(s *Session) error {
			if _, err := s.InsertSong(fmt.Sprintf("s-%d", i), testFileSHA1, 1); err != nil {
				return err
			}
			if i%2 == 1 {
				return boom
			}
			return nil
		})
		if i%2 == 1 && !errors.Is(err, boom) {
			t.Fatalf("session %d: got %v, want forced failure", i, err)
		}
		if i%2 == 0 && err != nil {
			t.Fatalf("session %d failed: %v", i, err)
		}
	}

	stats := db.Stats()
	if stats.Opened != stats.Closed+int64(stats.Idle) {
		t.Fatalf("connection leak after mixed sessions: opened=%d closed=%d idle=%d",
			stats.Opened, stats.Closed, stats.Idle)
	}
	if stats.Idle > cacheCapacity(db) {
		t.Errorf("idle %d exceeds cache capacity", stats.Idle)
	}
}

func cacheCapacity(db *DB) int {
	if db.cfg.CacheCapacity > 0 {
		return db.cfg.CacheCapacity
	}
	return pool.DefaultCapacity
}

func TestRowModeTuple(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertSong("tuple", testFileSHA1, 1); err != nil {
		t.Fatalf("InsertSong failed: %v", err)
	}

	err := db.AtomicMode(RowTuple, func(s *Session) error {
		res, err := s.Exec("SELECT song_name, total_hashes FROM songs")
		if err != nil {
			return err
		}
		if !res.Next() {
			return errors.New("no row")
		}
		row, err := res.Row()
		if err != nil {
			return err
		}
		tuple, ok := row.([]any)
		if !ok {
			return fmt.Errorf("row is %T, want []any", row)
		}
		if len(tuple) != 2 {
			return fmt.Errorf("tuple has %d columns, want 2", len(tuple))
		}
		if name, _ := tuple[0].(string); name != "tuple" {
			return fmt.Errorf("tuple[0] = %v, want %q", tuple[0], "tuple")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRowModeMap(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertSong("mapped", testFileSHA1, 9); err != nil {
		t.Fatalf("InsertSong failed: %v", err)
	}

	err := db.AtomicMode(RowMap, func(s *Session) error {
		res, err := s.Exec("SELECT song_name, total_hashes FROM songs")
		if err != nil {
			return err
		}
		if !res.Next() {
			return errors.New("no row")
		}
		row, err := res.Row()
		if err != nil {
			return err
		}
		m, ok := row.(map[string]any)
		if !ok {
			return fmt.Errorf("row is %T, want map[string]any", row)
		}
		if name, _ := m["song_name"].(string); name != "mapped" {
			return fmt.Errorf("song_name = %v, want %q", m["song_name"], "mapped")
		}
		if total, _ := m["total_hashes"].(int64); total != 9 {
			return fmt.Errorf("total_hashes = %v, want 9", m["total_hashes"])
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConstraintClassification(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertSong("classified", testFileSHA1, 1)
	if err != nil {
		t.Fatalf("InsertSong failed: %v", err)
	}

	// A plain insert, bypassing the duplicate-ignoring catalog statement.
	rawInsert := `INSERT INTO fingerprints (song_id, hash, "offset") VALUES (?, ?, ?)`
	hash := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	err = db.Atomic(func(s *Session) error {
		if _, err := s.Exec(rawInsert, id, hash, 1); err != nil {
			return err
		}
		_, err := s.Exec(rawInsert, id, hash, 1)
		return err
	})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("duplicate insert classified as %v, want ErrDuplicateKey", err)
	}

	err = db.Atomic(func(s *Session) error {
		_, err := s.Exec(rawInsert, int64(999999), hash, 1)
		return err
	})
	if !errors.Is(err, ErrForeignKey) {
		t.Errorf("orphan insert classified as %v, want ErrForeignKey", err)
	}
}

type countingLookup struct {
	store map[string][]byte
	gets  int
	hits  int
	inval int
}

func newCountingLookup() *countingLookup {
	return &countingLookup{store: make(map[string][]byte)}
}

func (c *countingLookup) Name() string { return "counting" }

func (c *countingLookup) Get(_ context.Context, key string) ([]byte, bool) {
	c.gets++
	v, ok := c.store[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *countingLookup) Set(_ context.Context, key string, val []byte, _ time.Duration) {
	c.store[key] = val
}

func (c *countingLookup) Invalidate(_ context.Context) error {
	c.inval++
	c.store = make(map[string][]byte)
	return nil
}

func (c *countingLookup) Close() error { return nil }

func TestLookupCacheReadThrough(t *testing.T) {
	db := openTestDB(t)
	cache := newCountingLookup()
	db.Use(cache)

	id, err := db.InsertSong("cached", testFileSHA1, 1)
	if err != nil {
		t.Fatalf("InsertSong failed: %v", err)
	}
	if err := db.InsertFingerprint(id, "abababababababababab", 4); err != nil {
		t.Fatalf("InsertFingerprint failed: %v", err)
	}
	if cache.inval == 0 {
		t.Error("fingerprint insert did not invalidate the lookup cache")
	}

	first, err := db.FingerprintsByHash("abababababababababab")
	if err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}
	second, err := db.FingerprintsByHash("abababababababababab")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if cache.hits == 0 {
		t.Error("second lookup did not hit the cache")
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("cached result diverges: %+v vs %+v", first, second)
	}

	// Deleting songs must drop cached answers.
	before := cache.inval
	if err := db.DeleteSongs([]int64{id}); err != nil {
		t.Fatalf("DeleteSongs failed: %v", err)
	}
	if cache.inval == before {
		t.Error("delete did not invalidate the lookup cache")
	}
	matches, err := db.FingerprintsByHash("abababababababababab")
	if err != nil {
		t.Fatalf("post-delete lookup failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("stale matches served after delete: %+v", matches)
	}
}
