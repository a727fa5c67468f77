package store

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return &QueryError{err: fmt.Errorf("invalid identifier %q", name)}
	}
	return nil
}

func sortedKeys(m Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Insert writes one row and returns it as stored, including columns
// the database filled in (ids, defaults).
func (s *Store) Insert(ctx context.Context, table string, row Row) (Row, error) {
	rows, err := s.InsertMany(ctx, table, []Row{row})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// InsertMany writes rows sharing one column set in a single statement
// and returns them as stored. All-or-nothing: a failure inserts no
// rows.
func (s *Store) InsertMany(ctx context.Context, table string, rows []Row) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &QueryError{err: fmt.Errorf("insert into %s: no rows", table)}
	}

	cols := sortedKeys(rows[0])
	for _, col := range cols {
		if err := checkIdent(col); err != nil {
			return nil, err
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if len(row) != len(cols) {
			return nil, &QueryError{err: fmt.Errorf("insert into %s: row %d has a different column set", table, i)}
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, col := range cols {
			v, ok := row[col]
			if !ok {
				return nil, &QueryError{err: fmt.Errorf("insert into %s: row %d missing column %q", table, i, col)}
			}
			enc, err := encodeParam(col, v)
			if err != nil {
				return nil, &QueryError{err: err}
			}
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, enc)
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteByte(')')
	}
	sb.WriteString(" RETURNING *")

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	out, err := collectRows(res)
	if err != nil {
		return nil, err
	}
	if len(out) != len(rows) {
		return nil, &QueryError{err: fmt.Errorf("insert into %s: wrote %d of %d rows", table, len(out), len(rows))}
	}
	return out, nil
}

// Update sets values on every row matching the equality conditions and
// reports how many rows changed.
func (s *Store) Update(ctx context.Context, table string, values, where Row) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, &QueryError{err: fmt.Errorf("update %s: no values", table)}
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "UPDATE %s SET ", table)
	for i, col := range sortedKeys(values) {
		if err := checkIdent(col); err != nil {
			return 0, err
		}
		enc, err := encodeParam(col, values[col])
		if err != nil {
			return 0, &QueryError{err: err}
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, enc)
		fmt.Fprintf(&sb, "%s = $%d", col, len(args))
	}
	clause, err := whereClause(where, &args)
	if err != nil {
		return 0, err
	}
	sb.WriteString(clause)

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes every row matching the equality conditions and
// reports how many rows went.
func (s *Store) Delete(ctx context.Context, table string, where Row) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, &QueryError{err: fmt.Errorf("delete from %s: refusing an unconditioned delete", table)}
	}

	var args []any
	clause, err := whereClause(where, &args)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s%s", table, clause), args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// SelectOpts tunes a Select beyond its equality conditions.
type SelectOpts struct {
	Columns []string // projection; empty means all columns
	OrderBy string   // single column
	Desc    bool
	Limit   int
	Offset  int
}

// Select reads rows matching the equality conditions. Slice condition
// values become membership tests.
func (s *Store) Select(ctx context.Context, table string, where Row, opts *SelectOpts) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &SelectOpts{}
	}

	projection := "*"
	if len(opts.Columns) > 0 {
		for _, col := range opts.Columns {
			if err := checkIdent(col); err != nil {
				return nil, err
			}
		}
		projection = strings.Join(opts.Columns, ", ")
	}

	var args []any
	clause, err := whereClause(where, &args)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s", projection, table, clause)
	if opts.OrderBy != "" {
		if err := checkIdent(opts.OrderBy); err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, " ORDER BY %s", opts.OrderBy)
		if opts.Desc {
			sb.WriteString(" DESC")
		}
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", opts.Offset)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	res, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	return collectRows(res)
}

// SelectOne reads a single row or ErrNotFound.
func (s *Store) SelectOne(ctx context.Context, table string, where Row) (Row, error) {
	rows, err := s.Select(ctx, table, where, &SelectOpts{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Count reports how many rows match the equality conditions.
func (s *Store) Count(ctx context.Context, table string, where Row) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	var args []any
	clause, err := whereClause(where, &args)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, clause), args...).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// whereClause renders equality conditions in sorted column order. Nil
// values become IS NULL; slice values become = ANY(...).
func whereClause(where Row, args *[]any) (string, error) {
	if len(where) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(" WHERE ")
	for i, col := range sortedKeys(where) {
		if err := checkIdent(col); err != nil {
			return "", err
		}
		if i > 0 {
			sb.WriteString(" AND ")
		}
		v := where[col]
		if v == nil {
			fmt.Fprintf(&sb, "%s IS NULL", col)
			continue
		}
		if t := reflect.TypeOf(v); t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
			*args = append(*args, v)
			fmt.Fprintf(&sb, "%s = ANY($%d)", col, len(*args))
			continue
		}
		enc, err := encodeParam(col, v)
		if err != nil {
			return "", &QueryError{err: err}
		}
		*args = append(*args, enc)
		fmt.Fprintf(&sb, "%s = $%d", col, len(*args))
	}
	return sb.String(), nil
}
