package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrConnectivity marks failures to reach the database at all.
	ErrConnectivity = errors.New("store: backend unreachable")
	// ErrTimeout marks operations that exceeded their wall-clock budget.
	ErrTimeout = errors.New("store: operation timed out")
	// ErrNotFound is returned by single-row reads that matched nothing.
	ErrNotFound = errors.New("store: no rows")
)

// ConstraintError surfaces a uniqueness or check violation from the
// engine. Constraint carries the violated constraint's name when the
// driver reports one.
type ConstraintError struct {
	Constraint string
	Table      string
	err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("store: constraint %q on %q violated: %v", e.Constraint, e.Table, e.err)
}

func (e *ConstraintError) Unwrap() error { return e.err }

// QueryError marks malformed input: bad SQL, unknown parameters,
// unencodable values.
type QueryError struct {
	err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("store: query failed: %v", e.err) }
func (e *QueryError) Unwrap() error { return e.err }

// mapError folds driver errors into the adapter's taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23 covers integrity violations, class 08 connection faults.
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23":
			return &ConstraintError{Constraint: pgErr.ConstraintName, Table: pgErr.TableName, err: err}
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return fmt.Errorf("%w: %v", ErrConnectivity, err)
		}
		return &QueryError{err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	return &QueryError{err: err}
}
