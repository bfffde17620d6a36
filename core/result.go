package core

import (
	"database/sql"
	"errors"
	"fmt"
)

// errNoCursor is returned when scanning a result that has no open row
// cursor, such as an insert/update result or one already closed.
var errNoCursor = errors.New("result has no open cursor")

// RowMode selects the shape of rows returned by Result.Row. It is fixed at
// session construction, never inferred per row.
type RowMode int

const (
	// RowTuple yields each row as a []any in column order.
	RowTuple RowMode = iota
	// RowMap yields each row as a map keyed by column name.
	RowMap
)

// Result is the cursor-like outcome of one statement execution. For
// row-returning statements it iterates rows in the session's RowMode; for
// others it carries the last-inserted id and affected-row count.
type Result struct {
	rows     *sql.Rows
	mode     RowMode
	cols     []string
	lastID   int64
	affected int64
	closed   bool
}

func newRowsResult(rows *sql.Rows, mode RowMode) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return &Result{rows: rows, mode: mode, cols: cols}, nil
}

func newExecResult(res sql.Result) *Result {
	r := &Result{closed: true}
	// Not every driver supports these; a failing accessor just leaves zero.
	if id, err := res.LastInsertId(); err == nil {
		r.lastID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		r.affected = n
	}
	return r
}

// Next advances to the next row. It returns false once rows are exhausted
// or on a non-row-returning result.
func (r *Result) Next() bool {
	if r.rows == nil {
		return false
	}
	if !r.rows.Next() {
		r.Close()
		return false
	}
	return true
}

// Scan copies the current row into dest by column position.
func (r *Result) Scan(dest ...any) error {
	if r.rows == nil {
		return errNoCursor
	}
	return r.rows.Scan(dest...)
}

// Row returns the current row in the session's RowMode: []any for
// RowTuple, map[string]any for RowMap.
func (r *Result) Row() (any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.Scan(ptrs...); err != nil {
		return nil, err
	}
	if r.mode == RowTuple {
		return vals, nil
	}
	row := make(map[string]any, len(r.cols))
	for i, col := range r.cols {
		row[col] = vals[i]
	}
	return row, nil
}

// Err returns the error, if any, encountered during iteration.
func (r *Result) Err() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Err()
}

// Close releases the underlying cursor. Safe to call more than once.
func (r *Result) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}

// LastInsertID returns the id assigned to the last inserted row, when the
// statement and driver provide one.
func (r *Result) LastInsertID() int64 { return r.lastID }

// RowsAffected returns the number of rows changed by the statement.
func (r *Result) RowsAffected() int64 { return r.affected }
