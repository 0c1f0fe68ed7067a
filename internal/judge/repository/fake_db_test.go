package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"judgebox/internal/common/db"
)

// fakeDB answers queries by matching a fragment of the SQL text.
type fakeDB struct {
	mu      sync.Mutex
	results map[string][][]interface{}
	errs    map[string]error
	execs   []execCall
}

type execCall struct {
	query string
	args  []interface{}
}

func newFakeDB() *fakeDB {
	return &fakeDB{results: map[string][][]interface{}{}, errs: map[string]error{}}
}

func (f *fakeDB) on(fragment string, rows ...[]interface{}) {
	f.results[fragment] = rows
}

func (f *fakeDB) match(query string) ([][]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fragment, err := range f.errs {
		if strings.Contains(query, fragment) {
			return nil, err
		}
	}
	for fragment, rows := range f.results {
		if strings.Contains(query, fragment) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) Query(_ context.Context, query string, _ ...interface{}) (db.Rows, error) {
	rows, err := f.match(query)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows, pos: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, _ ...interface{}) db.Row {
	rows, err := f.match(query)
	if err != nil {
		return fakeRow{err: err}
	}
	if len(rows) == 0 {
		return fakeRow{err: sql.ErrNoRows}
	}
	return fakeRow{values: rows[0]}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	f.mu.Lock()
	f.execs = append(f.execs, execCall{query: query, args: args})
	f.mu.Unlock()
	if _, err := f.match(query); err != nil {
		return nil, err
	}
	return fakeResult(1), nil
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type fakeRows struct {
	rows [][]interface{}
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error { return assign(r.rows[r.pos], dest) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

func assign(values []interface{}, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		if scanner, ok := dest[i].(sql.Scanner); ok {
			if err := scanner.Scan(v); err != nil {
				return err
			}
			continue
		}
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int:
			*d = v.(int)
		case *uint64:
			*d = v.(uint64)
		case *string:
			*d = v.(string)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}
