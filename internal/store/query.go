package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// rewriteNamed converts $name placeholders into positional parameters
// and binds them from params. A name used twice binds the same
// positional slot. Text inside single-quoted literals is left alone;
// $1-style positional markers pass through untouched.
func rewriteNamed(sql string, params map[string]any) (string, []any, error) {
	var sb strings.Builder
	var args []any
	positions := make(map[string]int)

	inLiteral := false
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\'' {
			inLiteral = !inLiteral
			sb.WriteRune(r)
			continue
		}
		if inLiteral || r != '$' || i+1 >= len(runes) || !identStart(runes[i+1]) {
			sb.WriteRune(r)
			continue
		}

		j := i + 1
		for j < len(runes) && identPart(runes[j]) {
			j++
		}
		name := string(runes[i+1 : j])
		pos, seen := positions[name]
		if !seen {
			v, ok := params[name]
			if !ok {
				return "", nil, &QueryError{err: fmt.Errorf("no value bound for parameter $%s", name)}
			}
			enc, err := encodeParam(name, v)
			if err != nil {
				return "", nil, &QueryError{err: err}
			}
			args = append(args, enc)
			pos = len(args)
			positions[name] = pos
		}
		fmt.Fprintf(&sb, "$%d", pos)
		i = j - 1
	}
	return sb.String(), args, nil
}

func identStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func identPart(r rune) bool  { return identStart(r) || unicode.IsDigit(r) }

// FetchAll runs a parameterized query and returns every row.
func (s *Store) FetchAll(ctx context.Context, sql string, params map[string]any) ([]Row, error) {
	q, args, err := rewriteNamed(sql, params)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return collectRows(res)
}

// FetchOne runs a parameterized query and returns the first row, or
// ErrNotFound when the result set is empty.
func (s *Store) FetchOne(ctx context.Context, sql string, params map[string]any) (Row, error) {
	rows, err := s.FetchAll(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// FetchExec runs a parameterized statement and returns the affected
// row count.
func (s *Store) FetchExec(ctx context.Context, sql string, params map[string]any) (int64, error) {
	q, args, err := rewriteNamed(sql, params)
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}
