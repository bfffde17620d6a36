package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL dialect implementation. date_modified refresh uses the native
// ON UPDATE CURRENT_TIMESTAMP column attribute instead of triggers.
type mysqlDialect struct{}

func init() {
	Register("mysql", &mysqlDialect{})
}

const (
	mysqlDupEntryErr   = 1062
	mysqlFKParentErr   = 1452
	mysqlFKChildErr    = 1451
	mysqlMaxPrepareArg = 65535
)

func (d *mysqlDialect) Name() string { return "mysql" }

func (d *mysqlDialect) CreateSchema() []string {
	return []string{
		"CREATE TABLE IF NOT EXISTS `songs` (" +
			"`song_id` MEDIUMINT UNSIGNED NOT NULL AUTO_INCREMENT, " +
			"`song_name` VARCHAR(250) NOT NULL, " +
			"`fingerprinted` TINYINT NOT NULL DEFAULT 0, " +
			"`file_sha1` BINARY(20) NOT NULL, " +
			"`total_hashes` INT NOT NULL DEFAULT 0, " +
			"`date_created` DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP, " +
			"`date_modified` DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP, " +
			"PRIMARY KEY (`song_id`)" +
			") ENGINE=INNODB",
		"CREATE TABLE IF NOT EXISTS `fingerprints` (" +
			"`hash` BINARY(10) NOT NULL, " +
			"`song_id` MEDIUMINT UNSIGNED NOT NULL, " +
			"`offset` INT UNSIGNED NOT NULL, " +
			"`date_created` DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP, " +
			"`date_modified` DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP, " +
			"INDEX `ix_fingerprints_hash` (`hash`), " +
			"UNIQUE KEY `uq_fingerprints` (`song_id`, `offset`, `hash`), " +
			"CONSTRAINT `fk_fingerprints_song_id` FOREIGN KEY (`song_id`) " +
			"REFERENCES `songs`(`song_id`) ON DELETE CASCADE" +
			") ENGINE=INNODB",
	}
}

func (d *mysqlDialect) DropSchema() []string {
	return []string{
		"DROP TABLE IF EXISTS `fingerprints`",
		"DROP TABLE IF EXISTS `songs`",
	}
}

func (d *mysqlDialect) InsertSong() string {
	return "INSERT INTO `songs` (`song_name`, `file_sha1`, `total_hashes`) VALUES (?, ?, ?)"
}

func (d *mysqlDialect) InsertFingerprints(n int) string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "(?, ?, ?)"
	}
	return fmt.Sprintf(
		"INSERT IGNORE INTO `fingerprints` (`song_id`, `hash`, `offset`) VALUES %s",
		strings.Join(rows, ", "))
}

func (d *mysqlDialect) SelectByHash() string {
	return "SELECT `song_id`, `offset` FROM `fingerprints` WHERE `hash` = ?"
}

func (d *mysqlDialect) SelectByHashesIn(n int) string {
	return fmt.Sprintf(
		"SELECT `hash`, `song_id`, `offset` FROM `fingerprints` WHERE `hash` IN (%s)",
		questionMarks(n))
}

func (d *mysqlDialect) SelectSong() string {
	return "SELECT `song_name`, `file_sha1`, `total_hashes` FROM `songs` WHERE `song_id` = ?"
}

func (d *mysqlDialect) SelectSongs() string {
	return "SELECT `song_id`, `song_name`, `file_sha1`, `total_hashes`, `date_created` " +
		"FROM `songs` WHERE `fingerprinted` = 1"
}

func (d *mysqlDialect) SelectAll() string {
	return "SELECT `song_id`, `offset` FROM `fingerprints`"
}

func (d *mysqlDialect) UpdateSongFingerprinted() string {
	return "UPDATE `songs` SET `fingerprinted` = 1 WHERE `song_id` = ?"
}

func (d *mysqlDialect) DeleteUnfingerprinted() string {
	return "DELETE FROM `songs` WHERE `fingerprinted` = 0"
}

func (d *mysqlDialect) DeleteSongsIn(n int) string {
	return fmt.Sprintf("DELETE FROM `songs` WHERE `song_id` IN (%s)", questionMarks(n))
}

func (d *mysqlDialect) CountFingerprints() string {
	return "SELECT COUNT(*) FROM `fingerprints`"
}

func (d *mysqlDialect) CountFingerprintedSongs() string {
	return "SELECT COUNT(`song_id`) FROM `songs` WHERE `fingerprinted` = 1"
}

func (d *mysqlDialect) Placeholder(index int) string { return "?" }

func (d *mysqlDialect) MaxPlaceholders() int { return mysqlMaxPrepareArg }

func (d *mysqlDialect) SupportsLastInsertID() bool { return true }

func (d *mysqlDialect) ConnInit() []string { return nil }

func (d *mysqlDialect) IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntryErr
}

func (d *mysqlDialect) IsForeignKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) &&
		(me.Number == mysqlFKParentErr || me.Number == mysqlFKChildErr)
}
