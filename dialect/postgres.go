package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgreSQL dialect implementation. lib/pq does not surface last-insert
// ids through sql.Result, so InsertSong carries a RETURNING clause and the
// core layer runs it as a query. Hash columns are BYTEA.
type postgres struct{}

func init() {
	Register("postgres", &postgres{})
}

const (
	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
)

func (d *postgres) Name() string { return "postgres" }

func (d *postgres) CreateSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS songs (
			song_id SERIAL PRIMARY KEY,
			song_name VARCHAR(250) NOT NULL,
			fingerprinted SMALLINT NOT NULL DEFAULT 0,
			file_sha1 BYTEA NOT NULL,
			total_hashes INT NOT NULL DEFAULT 0,
			date_created TIMESTAMP NOT NULL DEFAULT now(),
			date_modified TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS fingerprints (
			hash BYTEA NOT NULL,
			song_id INT NOT NULL,
			"offset" INT NOT NULL,
			date_created TIMESTAMP NOT NULL DEFAULT now(),
			date_modified TIMESTAMP NOT NULL DEFAULT now(),
			UNIQUE (song_id, "offset", hash),
			CONSTRAINT fk_fingerprints_song_id FOREIGN KEY (song_id)
				REFERENCES songs (song_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS ix_fingerprints_hash ON fingerprints (hash)`,
		`CREATE OR REPLACE FUNCTION touch_date_modified() RETURNS TRIGGER AS $$
			BEGIN
				NEW.date_modified = now();
				RETURN NEW;
			END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_songs_date_modified ON songs`,
		`CREATE TRIGGER trg_songs_date_modified
			BEFORE UPDATE ON songs FOR EACH ROW
			EXECUTE FUNCTION touch_date_modified()`,
		`DROP TRIGGER IF EXISTS trg_fingerprints_date_modified ON fingerprints`,
		`CREATE TRIGGER trg_fingerprints_date_modified
			BEFORE UPDATE ON fingerprints FOR EACH ROW
			EXECUTE FUNCTION touch_date_modified()`,
	}
}

func (d *postgres) DropSchema() []string {
	return []string{
		`DROP TABLE IF EXISTS fingerprints`,
		`DROP TABLE IF EXISTS songs`,
		`DROP FUNCTION IF EXISTS touch_date_modified()`,
	}
}

func (d *postgres) InsertSong() string {
	return `INSERT INTO songs (song_name, file_sha1, total_hashes)
		VALUES ($1, $2, $3) RETURNING song_id`
}

func (d *postgres) InsertFingerprints(n int) string {
	rows := make([]string, n)
	for i := range rows {
		base := i * 3
		rows[i] = fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3)
	}
	return fmt.Sprintf(
		`INSERT INTO fingerprints (song_id, hash, "offset") VALUES %s
			ON CONFLICT DO NOTHING`,
		strings.Join(rows, ", "))
}

func (d *postgres) SelectByHash() string {
	return `SELECT song_id, "offset" FROM fingerprints WHERE hash = $1`
}

func (d *postgres) SelectByHashesIn(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		`SELECT hash, song_id, "offset" FROM fingerprints WHERE hash IN (%s)`,
		strings.Join(marks, ", "))
}

func (d *postgres) SelectSong() string {
	return `SELECT song_name, file_sha1, total_hashes FROM songs WHERE song_id = $1`
}

func (d *postgres) SelectSongs() string {
	return `SELECT song_id, song_name, file_sha1, total_hashes, date_created
		FROM songs WHERE fingerprinted = 1`
}

func (d *postgres) SelectAll() string {
	return `SELECT song_id, "offset" FROM fingerprints`
}

func (d *postgres) UpdateSongFingerprinted() string {
	return `UPDATE songs SET fingerprinted = 1 WHERE song_id = $1`
}

func (d *postgres) DeleteUnfingerprinted() string {
	return `DELETE FROM songs WHERE fingerprinted = 0`
}

func (d *postgres) DeleteSongsIn(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(`DELETE FROM songs WHERE song_id IN (%s)`,
		strings.Join(marks, ", "))
}

func (d *postgres) CountFingerprints() string {
	return `SELECT COUNT(*) FROM fingerprints`
}

func (d *postgres) CountFingerprintedSongs() string {
	return `SELECT COUNT(song_id) FROM songs WHERE fingerprinted = 1`
}

func (d *postgres) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *postgres) MaxPlaceholders() int { return 65535 }

func (d *postgres) SupportsLastInsertID() bool { return false }

func (d *postgres) ConnInit() []string { return nil }

func (d *postgres) IsDuplicate(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == pgUniqueViolation
}

func (d *postgres) IsForeignKey(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == pgFKViolation
}
