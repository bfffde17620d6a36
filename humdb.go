// Package humdb is the persistence layer for an audio-fingerprint
// matching service: it stores songs and their fingerprint hashes, and
// answers the hash-lookup queries matching is built on. Connections are
// recycled through a small bounded cache; every facade call runs in its
// own scoped transaction.
package humdb

import (
	"github.com/shrek82/humdb/core"
	"github.com/shrek82/humdb/pool"
)

// Re-export core types and functions
type DB = core.DB
type Config = core.Config
type Session = core.Session
type Song = core.Song
type Fingerprint = core.Fingerprint
type Match = core.Match
type HashMatch = core.HashMatch
type RowMode = core.RowMode
type LookupCache = core.LookupCache

const (
	RowTuple = core.RowTuple
	RowMap   = core.RowMap
)

var (
	Open         = core.Open
	OpenFromJSON = core.OpenFromJSON

	ErrNotFound         = core.ErrNotFound
	ErrConnectionFailed = core.ErrConnectionFailed
	ErrTxFinished       = core.ErrTxFinished
	ErrDuplicateKey     = core.ErrDuplicateKey
	ErrForeignKey       = core.ErrForeignKey
	ErrUnknownDialect   = core.ErrUnknownDialect
	ErrInvalidConfig    = core.ErrInvalidConfig
)

// OnProcessForked must be called in every child process immediately after
// forking, before any facade call. It makes each live connection cache
// forget the handles inherited from the parent; the child then opens its
// own connections on demand.
var OnProcessForked = pool.OnProcessForked
