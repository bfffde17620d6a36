// Command humdb is a small admin tool for a fingerprint database: schema
// management, counters and reaping of half-ingested songs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/shrek82/humdb/core"
	"github.com/shrek82/humdb/logger"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	var (
		driver       = flag.String("driver", "sqlite3", "database driver: sqlite3, mysql or postgres")
		dsn          = flag.String("dsn", "", "database file or DSN")
		capacity     = flag.Int("cache", 0, "idle connection cache capacity (0 = default)")
		createSchema = flag.Bool("create-schema", false, "create tables, indexes and triggers")
		dropSchema   = flag.Bool("drop-schema", false, "drop all tables")
		stats        = flag.Bool("stats", false, "print song and fingerprint counts")
		reap         = flag.Bool("reap", false, "delete songs whose fingerprinting never completed")
		verbose      = flag.Bool("v", false, "log every SQL statement")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "humdb: -dsn is required")
		flag.Usage()
		os.Exit(2)
	}

	db, err := core.Open(core.Config{
		Driver:        *driver,
		DSN:           *dsn,
		CacheCapacity: *capacity,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "humdb: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if !*verbose {
		l := logger.NewStdLogger()
		l.SetLevel(logger.LogLevelError)
		db.SetLogger(l)
	}

	switch {
	case *createSchema:
		err = db.CreateSchema()
		if err == nil {
			fmt.Println("schema created")
		}
	case *dropSchema:
		err = db.DropSchema()
		if err == nil {
			fmt.Println("schema dropped")
		}
	case *reap:
		var n int64
		n, err = db.DeleteUnfingerprintedSongs()
		if err == nil {
			fmt.Printf("reaped %d unfingerprinted songs\n", n)
		}
	case *stats:
		err = printStats(db)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "humdb: %v\n", err)
		os.Exit(1)
	}
}

func printStats(db *core.DB) error {
	songs, err := db.CountFingerprintedSongs()
	if err != nil {
		return err
	}
	fps, err := db.CountFingerprints()
	if err != nil {
		return err
	}
	fmt.Printf("fingerprinted songs: %d\n", songs)
	fmt.Printf("fingerprints:        %d\n", fps)
	return nil
}
