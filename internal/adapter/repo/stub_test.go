package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// scriptedSQL answers QueryRow calls by query constant. Each handler sees the
// bound arguments so tests can assert on them.
type scriptedSQL struct {
	rows  map[string]func(args []any) pgx.Row
	calls []string
}

func newScriptedSQL() *scriptedSQL {
	return &scriptedSQL{rows: map[string]func(args []any) pgx.Row{}}
}

func (s *scriptedSQL) on(query string, fn func(args []any) pgx.Row) {
	s.rows[query] = fn
}

func (s *scriptedSQL) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("exec not scripted")
}

func (s *scriptedSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, query)
	fn, ok := s.rows[query]
	if !ok {
		return valuesRow{err: fmt.Errorf("query not scripted")}
	}
	return fn(args)
}

func (s *scriptedSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not scripted")
}

type valuesRow struct {
	values []any
	err    error
}

func (r valuesRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: got %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func noRows(_ []any) pgx.Row { return valuesRow{err: pgx.ErrNoRows} }
