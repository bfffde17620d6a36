package core

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shrek82/humdb/pool"
)

// Session binds exactly one borrowed connection to one unit of work. Every
// statement it executes runs inside a single transaction; End commits or
// rolls back and returns the connection to the cache on every exit path.
type Session struct {
	db      *DB
	conn    *pool.Conn
	tx      *sql.Tx
	mode    RowMode
	pending *Result
	done    bool
}

func (db *DB) newSession(mode RowMode) (*Session, error) {
	conn, err := db.cache.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	tx, err := conn.Begin()
	if err != nil {
		db.cache.Discard(conn)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Session{db: db, conn: conn, tx: tx, mode: mode}, nil
}

// Mode returns the row shape this session was constructed with.
func (s *Session) Mode() RowMode { return s.mode }

// Exec runs one catalog statement with bound parameters on the session's
// connection and returns a cursor-like result. Row-returning statements
// keep their cursor open until the next Exec or End.
func (s *Session) Exec(query string, args ...any) (*Result, error) {
	if s.done {
		return nil, ErrTxFinished
	}
	// A prior cursor must be drained before the connection can run
	// another statement or commit.
	s.closePending()

	start := time.Now()
	var (
		res *Result
		err error
	)
	if yieldsRows(query) {
		var rows *sql.Rows
		rows, err = s.tx.Query(query, args...)
		if err == nil {
			res, err = newRowsResult(rows, s.mode)
			s.pending = res
		}
	} else {
		var sr sql.Result
		sr, err = s.tx.Exec(query, args...)
		if err == nil {
			res = newExecResult(sr)
		}
	}
	s.db.logSQL(query, time.Since(start), args...)
	if err != nil {
		return nil, s.db.classify(err)
	}
	return res, nil
}

// End finishes the session exactly once: commit when cause is nil,
// rollback otherwise. The returned error is what the caller should
// propagate; a rollback failure never replaces the original cause, it is
// only logged. The connection is returned to the cache, or discarded when
// commit or rollback left it in an unknown state.
func (s *Session) End(cause error) error {
	if s.done {
		return ErrTxFinished
	}
	s.done = true
	s.closePending()

	if cause != nil {
		// Rollback goes to the transaction itself, never to a result
		// cursor that may already be exhausted.
		if rbErr := s.tx.Rollback(); rbErr != nil {
			s.db.logger.Error("rollback failed after %v: %v", cause, rbErr)
			s.db.cache.Discard(s.conn)
			return cause
		}
		s.db.cache.Release(s.conn)
		return cause
	}

	if err := s.tx.Commit(); err != nil {
		s.db.cache.Discard(s.conn)
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	s.db.cache.Release(s.conn)
	return nil
}

func (s *Session) closePending() {
	if s.pending != nil {
		_ = s.pending.Close()
		s.pending = nil
	}
}

// Atomic runs fn inside one scoped session: commit when fn returns nil,
// rollback when it errors or panics. Panics are re-raised after rollback.
func (db *DB) Atomic(fn func(*Session) error) error {
	return db.atomic(db.cfg.RowMode, fn)
}

// AtomicMode is Atomic with an explicit row shape for the session.
func (db *DB) AtomicMode(mode RowMode, fn func(*Session) error) error {
	return db.atomic(mode, fn)
}

func (db *DB) atomic(mode RowMode, fn func(*Session) error) (err error) {
	s, err := db.newSession(mode)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.End(fmt.Errorf("panic in session: %v", p))
			panic(p)
		}
		err = s.End(err)
	}()
	err = fn(s)
	return err
}

// yieldsRows reports whether the statement produces a row cursor. The
// catalog only contains SELECTs and RETURNING-suffixed inserts, so a
// prefix and suffix check is sufficient.
func yieldsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") || strings.Contains(q, "RETURNING")
}
