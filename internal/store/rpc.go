package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CallProc invokes a stored procedure with positional arguments and
// returns its result set as generic rows.
func (s *Store) CallProc(ctx context.Context, name string, args ...any) ([]Row, error) {
	sql, bound, err := procCall(name, args, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.pool.Query(ctx, sql, bound...)
	if err != nil {
		return nil, mapError(err)
	}
	return collectRows(res)
}

// CallProcJSON invokes a stored procedure that returns a single JSON
// document.
func (s *Store) CallProcJSON(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	sql, bound, err := procCall(name, args, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var raw []byte
	if err := s.pool.QueryRow(ctx, sql, bound...).Scan(&raw); err != nil {
		return nil, mapError(err)
	}
	return json.RawMessage(raw), nil
}

func procCall(name string, args []any, table bool) (string, []any, error) {
	if err := checkIdent(name); err != nil {
		return "", nil, err
	}
	bound := make([]any, len(args))
	placeholders := make([]string, len(args))
	for i, a := range args {
		enc, err := encodeParam("", a)
		if err != nil {
			return "", nil, &QueryError{err: err}
		}
		bound[i] = enc
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	form := "SELECT * FROM %s(%s)"
	if !table {
		form = "SELECT %s(%s)"
	}
	return fmt.Sprintf(form, name, strings.Join(placeholders, ", ")), bound, nil
}
