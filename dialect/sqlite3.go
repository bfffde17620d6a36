package dialect

import (
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLite dialect implementation. Hash columns are BLOBs; the core layer
// binds raw bytes and handles hex conversion at the API boundary.
type sqlite struct{}

func init() {
	Register("sqlite3", &sqlite{})
}

func (d *sqlite) Name() string { return "sqlite3" }

func (d *sqlite) CreateSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS songs (
			song_id INTEGER PRIMARY KEY AUTOINCREMENT,
			song_name VARCHAR(250) NOT NULL,
			fingerprinted TINYINT NOT NULL DEFAULT 0,
			file_sha1 BLOB NOT NULL,
			total_hashes INTEGER NOT NULL DEFAULT 0,
			date_created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			date_modified DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TRIGGER IF NOT EXISTS trg_songs_date_modified
			AFTER UPDATE ON songs FOR EACH ROW
			BEGIN
				UPDATE songs SET date_modified = CURRENT_TIMESTAMP
				WHERE song_id = OLD.song_id;
			END`,
		`CREATE TABLE IF NOT EXISTS fingerprints (
			hash BLOB NOT NULL,
			song_id INTEGER NOT NULL,
			"offset" INTEGER NOT NULL,
			date_created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			date_modified DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (song_id, "offset", hash),
			CONSTRAINT fk_fingerprints_song_id FOREIGN KEY (song_id)
				REFERENCES songs (song_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS ix_fingerprints_hash ON fingerprints (hash)`,
		`CREATE TRIGGER IF NOT EXISTS trg_fingerprints_date_modified
			AFTER UPDATE ON fingerprints FOR EACH ROW
			BEGIN
				UPDATE fingerprints SET date_modified = CURRENT_TIMESTAMP
				WHERE hash = OLD.hash;
			END`,
	}
}

func (d *sqlite) DropSchema() []string {
	return []string{
		`DROP TABLE IF EXISTS fingerprints`,
		`DROP TABLE IF EXISTS songs`,
	}
}

func (d *sqlite) InsertSong() string {
	return `INSERT INTO songs (song_name, file_sha1, total_hashes) VALUES (?, ?, ?)`
}

func (d *sqlite) InsertFingerprints(n int) string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "(?, ?, ?)"
	}
	return fmt.Sprintf(
		`INSERT OR IGNORE INTO fingerprints (song_id, hash, "offset") VALUES %s`,
		strings.Join(rows, ", "))
}

func (d *sqlite) SelectByHash() string {
	return `SELECT song_id, "offset" FROM fingerprints WHERE hash = ?`
}

func (d *sqlite) SelectByHashesIn(n int) string {
	return fmt.Sprintf(
		`SELECT hash, song_id, "offset" FROM fingerprints WHERE hash IN (%s)`,
		questionMarks(n))
}

func (d *sqlite) SelectSong() string {
	return `SELECT song_name, file_sha1, total_hashes FROM songs WHERE song_id = ?`
}

func (d *sqlite) SelectSongs() string {
	return `SELECT song_id, song_name, file_sha1, total_hashes, date_created
		FROM songs WHERE fingerprinted = 1`
}

func (d *sqlite) SelectAll() string {
	return `SELECT song_id, "offset" FROM fingerprints`
}

func (d *sqlite) UpdateSongFingerprinted() string {
	return `UPDATE songs SET fingerprinted = 1 WHERE song_id = ?`
}

func (d *sqlite) DeleteUnfingerprinted() string {
	return `DELETE FROM songs WHERE fingerprinted = 0`
}

func (d *sqlite) DeleteSongsIn(n int) string {
	return fmt.Sprintf(`DELETE FROM songs WHERE song_id IN (%s)`, questionMarks(n))
}

func (d *sqlite) CountFingerprints() string {
	return `SELECT COUNT(*) FROM fingerprints`
}

func (d *sqlite) CountFingerprintedSongs() string {
	return `SELECT COUNT(song_id) FROM songs WHERE fingerprinted = 1`
}

func (d *sqlite) Placeholder(index int) string { return "?" }

// SQLite's compiled-in SQLITE_MAX_VARIABLE_NUMBER default.
func (d *sqlite) MaxPlaceholders() int { return 999 }

func (d *sqlite) SupportsLastInsertID() bool { return true }

// Cascading deletes require the pragma on every connection.
func (d *sqlite) ConnInit() []string {
	return []string{`PRAGMA foreign_keys = ON`}
}

func (d *sqlite) IsDuplicate(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (d *sqlite) IsForeignKey(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
