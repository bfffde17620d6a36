package core

import "time"

// Song is one registered track. FileSHA1 is the hex form of the source
// file's 20-byte digest; raw digest bytes never cross the API boundary.
type Song struct {
	ID          int64
	Name        string
	FileSHA1    string
	TotalHashes int
	DateCreated time.Time
}

// Fingerprint is one (hash, offset) pair extracted from a song. Hash is
// hex-encoded.
type Fingerprint struct {
	Hash   string
	Offset int
}

// Match is one lookup hit: the owning song and the offset the hash was
// registered at.
type Match struct {
	SongID int64
	Offset int
}

// HashMatch is a batched-lookup hit, carrying the matched hash so callers
// can group results per query hash.
type HashMatch struct {
	Hash   string
	SongID int64
	Offset int
}
