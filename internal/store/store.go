// Package store is the relational adapter: pooled Postgres access with
// generic row CRUD, stored-procedure calls, and parameterized queries.
// Rows cross this boundary as column-name maps; JSON-typed columns are
// serialized on write and parsed on read, so the rest of the system
// only ever sees structured values.
package store

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	acquireTimeout     = 10 * time.Second
	opTimeout          = 30 * time.Second
	idleLifetime       = 5 * time.Minute
	startupPingRetries = 5
)

// Row is the generic row shape exchanged with the adapter, keyed by
// column name.
type Row = map[string]any

// Store owns the connection pool. Connections are borrowed per
// operation and never shared between tasks.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses the DSN, applies the pool and per-connection policy, and
// verifies connectivity before returning.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MinConns = 1
	cfg.MaxConns = 6
	cfg.MaxConnIdleTime = idleLifetime
	cfg.ConnConfig.ConnectTimeout = acquireTimeout

	dialer := &net.Dialer{
		Timeout: acquireTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     300 * time.Second,
			Interval: 30 * time.Second,
			Count:    3,
		},
	}
	cfg.ConnConfig.DialFunc = dialer.DialContext

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for _, stmt := range []string{
			"SET statement_timeout = '60s'",
			"SET idle_in_transaction_session_timeout = '30s'",
		} {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("session setup: %w", err)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// The database often comes up after us; retry the first ping so a
	// cold start does not flap the process.
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
		defer cancel()
		return pool.Ping(pingCtx)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), startupPingRetries), ctx)
	if err := backoff.Retry(ping, bo); err != nil {
		pool.Close()
		return nil, mapError(err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks that a connection can be borrowed and the backend
// answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return mapError(s.pool.Ping(ctx))
}

// Refresh exercises the pool so idle connections are validated and
// broken ones replaced. Used by the scheduler's pool-refresh job.
func (s *Store) Refresh(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return mapError(err)
	}
	return nil
}

// PrepareForShutdown waits up to timeout for in-flight operations to
// return their connections, then closes the pool.
func (s *Store) PrepareForShutdown(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.pool.Stat().AcquiredConns() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if n := s.pool.Stat().AcquiredConns(); n > 0 {
		log.Printf("store: closing with %d connections still borrowed", n)
	}
	s.pool.Close()
}

// Close force-closes the pool without waiting for borrows.
func (s *Store) Close() {
	s.pool.Close()
}

// opContext bounds an operation to the wrapper timeout unless the
// caller already carries a sooner deadline.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= opTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}

// collectRows drains a result set into generic rows, normalizing
// driver-native values along the way.
func collectRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, mapError(err)
		}
		r := make(Row, len(fields))
		for i, fd := range fields {
			r[fd.Name] = normalizeValue(vals[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}
