package core

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// defaultLookupTTL bounds how long a cached hash-lookup result may be
// served before it must be re-read from the database.
const defaultLookupTTL = 5 * time.Minute

// The typed operations are defined on Session so callers needing
// multi-statement atomicity can compose them inside one Atomic block. The
// DB methods below wrap each operation in its own scoped session.

// InsertSong registers a song and returns its new id. Ids are assigned by
// the database, monotonic and unique.
func (s *Session) InsertSong(name, fileSHA1 string, totalHashes int) (int64, error) {
	digest, err := hexToBytes(fileSHA1)
	if err != nil {
		return 0, err
	}
	d := s.db.dialect
	res, err := s.Exec(d.InsertSong(), name, digest, totalHashes)
	if err != nil {
		return 0, fmt.Errorf("insert song: %w", err)
	}
	if d.SupportsLastInsertID() {
		return res.LastInsertID(), nil
	}
	// RETURNING path: the id comes back as a row.
	defer res.Close()
	if !res.Next() {
		return 0, fmt.Errorf("insert song: no id returned: %w", res.Err())
	}
	var id int64
	if err := res.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert song: %w", err)
	}
	return id, nil
}

// InsertFingerprints stores a batch of (hash, offset) pairs for one song
// in this session's transaction, chunked to the dialect's placeholder
// limit. Duplicate (song, offset, hash) triples are silently ignored.
func (s *Session) InsertFingerprints(songID int64, fps []Fingerprint) error {
	d := s.db.dialect
	rowsPerStmt := d.MaxPlaceholders() / 3

	for start := 0; start < len(fps); start += rowsPerStmt {
		end := start + rowsPerStmt
		if end > len(fps) {
			end = len(fps)
		}
		batch := fps[start:end]
		args := make([]any, 0, 3*len(batch))
		for _, fp := range batch {
			hash, err := hexToBytes(fp.Hash)
			if err != nil {
				return err
			}
			args = append(args, songID, hash, fp.Offset)
		}
		if _, err := s.Exec(d.InsertFingerprints(len(batch)), args...); err != nil {
			return fmt.Errorf("insert fingerprints: %w", err)
		}
	}
	return nil
}

// FingerprintsByHash returns every (song, offset) registration of one
// hash, unordered.
func (s *Session) FingerprintsByHash(hashHex string) ([]Match, error) {
	hash, err := hexToBytes(hashHex)
	if err != nil {
		return nil, err
	}
	res, err := s.Exec(s.db.dialect.SelectByHash(), hash)
	if err != nil {
		return nil, fmt.Errorf("select by hash: %w", err)
	}
	defer res.Close()

	var matches []Match
	for res.Next() {
		var m Match
		if err := res.Scan(&m.SongID, &m.Offset); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, res.Err()
}

// FingerprintsByHashes batch-resolves a set of hashes with IN-clause
// queries of at most chunk hashes each. Chunk values outside the dialect's
// placeholder limit are clamped to it.
func (s *Session) FingerprintsByHashes(hashes []string, chunk int) ([]HashMatch, error) {
	max := s.db.dialect.MaxPlaceholders()
	if chunk <= 0 || chunk > max {
		chunk = max
	}

	var out []HashMatch
	for start := 0; start < len(hashes); start += chunk {
		end := start + chunk
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]
		args := make([]any, 0, len(batch))
		for _, h := range batch {
			hash, err := hexToBytes(h)
			if err != nil {
				return nil, err
			}
			args = append(args, hash)
		}

		res, err := s.Exec(s.db.dialect.SelectByHashesIn(len(batch)), args...)
		if err != nil {
			return nil, fmt.Errorf("select by hashes: %w", err)
		}
		for res.Next() {
			var (
				hash []byte
				m    HashMatch
			)
			if err := res.Scan(&hash, &m.SongID, &m.Offset); err != nil {
				res.Close()
				return nil, err
			}
			m.Hash = bytesToHex(hash)
			out = append(out, m)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		res.Close()
	}
	return out, nil
}

// SongByID fetches one song. An unknown id yields (nil, false, nil), not
// an error.
func (s *Session) SongByID(id int64) (*Song, bool, error) {
	res, err := s.Exec(s.db.dialect.SelectSong(), id)
	if err != nil {
		return nil, false, fmt.Errorf("select song: %w", err)
	}
	defer res.Close()

	if !res.Next() {
		return nil, false, res.Err()
	}
	song := Song{ID: id}
	var digest []byte
	if err := res.Scan(&song.Name, &digest, &song.TotalHashes); err != nil {
		return nil, false, err
	}
	song.FileSHA1 = bytesToHex(digest)
	return &song, true, nil
}

// Songs lists every fully fingerprinted song.
func (s *Session) Songs() ([]Song, error) {
	res, err := s.Exec(s.db.dialect.SelectSongs())
	if err != nil {
		return nil, fmt.Errorf("select songs: %w", err)
	}
	defer res.Close()

	var songs []Song
	for res.Next() {
		var (
			song   Song
			digest []byte
		)
		if err := res.Scan(&song.ID, &song.Name, &digest, &song.TotalHashes, &song.DateCreated); err != nil {
			return nil, err
		}
		song.FileSHA1 = bytesToHex(digest)
		songs = append(songs, song)
	}
	return songs, res.Err()
}

// AllFingerprints returns every stored (song, offset) pair.
func (s *Session) AllFingerprints() ([]Match, error) {
	res, err := s.Exec(s.db.dialect.SelectAll())
	if err != nil {
		return nil, fmt.Errorf("select all fingerprints: %w", err)
	}
	defer res.Close()

	var matches []Match
	for res.Next() {
		var m Match
		if err := res.Scan(&m.SongID, &m.Offset); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, res.Err()
}

// MarkSongFingerprinted flips the song's fingerprinted flag, taking it out
// of reach of DeleteUnfingerprintedSongs.
func (s *Session) MarkSongFingerprinted(id int64) error {
	if _, err := s.Exec(s.db.dialect.UpdateSongFingerprinted(), id); err != nil {
		return fmt.Errorf("mark fingerprinted: %w", err)
	}
	return nil
}

// DeleteSongs removes songs by id; their fingerprints go with them via the
// cascade constraint.
func (s *Session) DeleteSongs(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	d := s.db.dialect
	chunk := d.MaxPlaceholders()
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		if _, err := s.Exec(d.DeleteSongsIn(len(batch)), args...); err != nil {
			return fmt.Errorf("delete songs: %w", err)
		}
	}
	return nil
}

// DeleteUnfingerprintedSongs reaps partially ingested songs and returns
// how many were removed.
func (s *Session) DeleteUnfingerprintedSongs() (int64, error) {
	res, err := s.Exec(s.db.dialect.DeleteUnfingerprinted())
	if err != nil {
		return 0, fmt.Errorf("delete unfingerprinted: %w", err)
	}
	return res.RowsAffected(), nil
}

// CountFingerprints returns the full fingerprint row count.
func (s *Session) CountFingerprints() (int64, error) {
	return s.countOne(s.db.dialect.CountFingerprints())
}

// CountFingerprintedSongs counts songs whose ingestion completed.
func (s *Session) CountFingerprintedSongs() (int64, error) {
	return s.countOne(s.db.dialect.CountFingerprintedSongs())
}

func (s *Session) countOne(query string) (int64, error) {
	res, err := s.Exec(query)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	if !res.Next() {
		return 0, fmt.Errorf("count returned no row: %w", res.Err())
	}
	var n int64
	if err := res.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateSchema applies the dialect's idempotent DDL.
func (s *Session) CreateSchema() error {
	for _, stmt := range s.db.dialect.CreateSchema() {
		if _, err := s.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// DropSchema tears the tables down.
func (s *Session) DropSchema() error {
	for _, stmt := range s.db.dialect.DropSchema() {
		if _, err := s.Exec(stmt); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	return nil
}

// --- One-session facade wrappers ---

// InsertSong registers a song in its own transaction.
func (db *DB) InsertSong(name, fileSHA1 string, totalHashes int) (int64, error) {
	var id int64
	err := db.Atomic(func(s *Session) error {
		var err error
		id, err = s.InsertSong(name, fileSHA1, totalHashes)
		return err
	})
	return id, err
}

// InsertFingerprint stores a single (hash, offset) pair.
func (db *DB) InsertFingerprint(songID int64, hashHex string, offset int) error {
	return db.InsertFingerprints(songID, []Fingerprint{{Hash: hashHex, Offset: offset}})
}

// InsertFingerprints stores a batch of fingerprints atomically.
func (db *DB) InsertFingerprints(songID int64, fps []Fingerprint) error {
	err := db.Atomic(func(s *Session) error {
		return s.InsertFingerprints(songID, fps)
	})
	if err == nil {
		db.invalidateLookup()
	}
	return err
}

// FingerprintsByHash resolves one hash, reading through the lookup cache
// when one is installed.
func (db *DB) FingerprintsByHash(hashHex string) ([]Match, error) {
	key := "hash:" + strings.ToLower(hashHex)
	var matches []Match
	if db.lookupGet(key, &matches) {
		return matches, nil
	}
	err := db.Atomic(func(s *Session) error {
		var err error
		matches, err = s.FingerprintsByHash(hashHex)
		return err
	})
	if err == nil {
		db.lookupSet(key, matches)
	}
	return matches, err
}

// FingerprintsByHashes batch-resolves a hash set. The result is the same
// regardless of chunking, so the cache key ignores the chunk size.
func (db *DB) FingerprintsByHashes(hashes []string, chunk int) ([]HashMatch, error) {
	key := hashSetKey(hashes)
	var out []HashMatch
	if db.lookupGet(key, &out) {
		return out, nil
	}
	err := db.Atomic(func(s *Session) error {
		var err error
		out, err = s.FingerprintsByHashes(hashes, chunk)
		return err
	})
	if err == nil {
		db.lookupSet(key, out)
	}
	return out, err
}

// SongByID fetches one song; absent ids yield (nil, false, nil).
func (db *DB) SongByID(id int64) (*Song, bool, error) {
	var (
		song  *Song
		found bool
	)
	err := db.Atomic(func(s *Session) error {
		var err error
		song, found, err = s.SongByID(id)
		return err
	})
	return song, found, err
}

// Songs lists every fingerprinted song.
func (db *DB) Songs() ([]Song, error) {
	var songs []Song
	err := db.Atomic(func(s *Session) error {
		var err error
		songs, err = s.Songs()
		return err
	})
	return songs, err
}

// AllFingerprints returns every stored (song, offset) pair.
func (db *DB) AllFingerprints() ([]Match, error) {
	var matches []Match
	err := db.Atomic(func(s *Session) error {
		var err error
		matches, err = s.AllFingerprints()
		return err
	})
	return matches, err
}

// MarkSongFingerprinted marks a song's ingestion as complete.
func (db *DB) MarkSongFingerprinted(id int64) error {
	return db.Atomic(func(s *Session) error {
		return s.MarkSongFingerprinted(id)
	})
}

// DeleteSongs removes songs and, by cascade, their fingerprints.
func (db *DB) DeleteSongs(ids []int64) error {
	err := db.Atomic(func(s *Session) error {
		return s.DeleteSongs(ids)
	})
	if err == nil {
		db.invalidateLookup()
	}
	return err
}

// DeleteUnfingerprintedSongs reaps partially ingested songs.
func (db *DB) DeleteUnfingerprintedSongs() (int64, error) {
	var n int64
	err := db.Atomic(func(s *Session) error {
		var err error
		n, err = s.DeleteUnfingerprintedSongs()
		return err
	})
	if err == nil {
		db.invalidateLookup()
	}
	return n, err
}

// CountFingerprints returns the full fingerprint row count.
func (db *DB) CountFingerprints() (int64, error) {
	var n int64
	err := db.Atomic(func(s *Session) error {
		var err error
		n, err = s.CountFingerprints()
		return err
	})
	return n, err
}

// CountFingerprintedSongs counts fully ingested songs.
func (db *DB) CountFingerprintedSongs() (int64, error) {
	var n int64
	err := db.Atomic(func(s *Session) error {
		var err error
		n, err = s.CountFingerprintedSongs()
		return err
	})
	return n, err
}

// CreateSchema applies the idempotent DDL.
func (db *DB) CreateSchema() error {
	return db.Atomic(func(s *Session) error {
		return s.CreateSchema()
	})
}

// DropSchema removes the tables and everything in them.
func (db *DB) DropSchema() error {
	err := db.Atomic(func(s *Session) error {
		return s.DropSchema()
	})
	if err == nil {
		db.invalidateLookup()
	}
	return err
}

func (db *DB) lookupGet(key string, dest any) bool {
	if db.lookup == nil {
		return false
	}
	data, ok := db.lookup.Get(context.Background(), key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		db.logger.Warn("stale lookup cache entry %s: %v", key, err)
		return false
	}
	return true
}

func (db *DB) lookupSet(key string, val any) {
	if db.lookup == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	db.lookup.Set(context.Background(), key, data, defaultLookupTTL)
}

// hashSetKey digests a hash set order-independently so chunked and
// reordered calls share one cache entry.
func hashSetKey(hashes []string) string {
	sorted := make([]string, len(hashes))
	for i, h := range hashes {
		sorted[i] = strings.ToLower(h)
	}
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, ",")))
	return "hashset:" + bytesToHex(sum[:])
}
