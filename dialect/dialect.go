package dialect

// Dialect carries the fixed statement catalog for one database engine,
// plus the engine-specific knobs the facade needs: placeholder style,
// placeholder limits for IN-clause batching, and constraint-error
// classification. Statements are pure data; all values are bound through
// placeholders, never interpolated.
type Dialect interface {
	// Name returns the driver name the dialect is registered under.
	Name() string

	// CreateSchema returns the ordered, idempotent DDL for the songs and
	// fingerprints tables, the hash index, and the modified-timestamp
	// refresh machinery.
	CreateSchema() []string
	// DropSchema returns the ordered DDL tearing the schema down.
	DropSchema() []string

	// InsertSong binds (song_name, file_sha1, total_hashes).
	InsertSong() string
	// InsertFingerprints binds n rows of (song_id, hash, "offset") and
	// silently ignores duplicate (song_id, "offset", hash) triples.
	InsertFingerprints(n int) string
	// SelectByHash binds (hash) and yields (song_id, "offset") rows.
	SelectByHash() string
	// SelectByHashesIn binds n hashes and yields (hash, song_id, "offset").
	SelectByHashesIn(n int) string
	// SelectSong binds (song_id) and yields (song_name, file_sha1,
	// total_hashes).
	SelectSong() string
	// SelectSongs yields (song_id, song_name, file_sha1, total_hashes,
	// date_created) for fully fingerprinted songs.
	SelectSongs() string
	// SelectAll yields every (song_id, "offset") pair.
	SelectAll() string
	// UpdateSongFingerprinted binds (song_id) and flips the flag.
	UpdateSongFingerprinted() string
	// DeleteUnfingerprinted removes songs whose flag is still unset.
	DeleteUnfingerprinted() string
	// DeleteSongsIn binds n song ids; fingerprints go with them by cascade.
	DeleteSongsIn(n int) string
	// CountFingerprints is a full-table count.
	CountFingerprints() string
	// CountFingerprintedSongs counts songs with the flag set.
	CountFingerprintedSongs() string

	// Placeholder returns the 1-based bind marker for the engine.
	Placeholder(index int) string
	// MaxPlaceholders is the engine's per-statement bind-variable limit;
	// batched inserts and IN-clause lookups must chunk to it.
	MaxPlaceholders() int
	// SupportsLastInsertID reports whether the driver surfaces new row ids
	// through sql.Result. When false, InsertSong ends in a RETURNING
	// clause and must be run as a query.
	SupportsLastInsertID() bool

	// ConnInit returns statements to run on every freshly opened
	// connection before it is used (per-connection pragmas and the like).
	ConnInit() []string

	// IsDuplicate reports whether err is a unique-constraint violation.
	IsDuplicate(err error) bool
	// IsForeignKey reports whether err is a foreign-key violation.
	IsForeignKey(err error) bool
}

var dialects = make(map[string]Dialect)

// questionMarks returns "?, ?, ..." with n markers, shared by the dialects
// that use positional question-mark binding.
func questionMarks(n int) string {
	if n <= 0 {
		return ""
	}
	marks := make([]byte, 0, 3*n-2)
	for i := 0; i < n; i++ {
		if i > 0 {
			marks = append(marks, ',', ' ')
		}
		marks = append(marks, '?')
	}
	return string(marks)
}

// Register registers a dialect for a given driver name.
func Register(name string, d Dialect) {
	dialects[name] = d
}

// Get retrieves a registered dialect by driver name.
func Get(name string) (Dialect, bool) {
	d, ok := dialects[name]
	return d, ok
}
