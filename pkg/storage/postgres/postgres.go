// Package postgres stores settings and authenticator definitions in
// PostgreSQL through a pgx/v5 pool. Setting values and HTTP authenticator
// specs are kept as JSONB; every query filters on organization_id.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/settings"
)

// Store is a settings.Store and dynauth.Registry backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ settings.Store   = (*Store)(nil)
	_ dynauth.Registry = (*Store)(nil)
)

// New opens the pool, checks connectivity and, when cfg.MigrateOnStart is
// set, brings the schema up to date.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	params := poolCfg.ConnConfig.RuntimeParams
	params["application_name"] = cfg.ApplicationName
	params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	if debug.Enabled(debug.Storage) {
		poolCfg.ConnConfig.Tracer = queryTracer{}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type traceStartKey struct{}

// queryTracer logs statement timings under the storage debug category.
type queryTracer struct{}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceStartKey{}, time.Now())
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, _ := ctx.Value(traceStartKey{}).(time.Time)
	args := []any{"rows", data.CommandTag.RowsAffected(), "elapsed", time.Since(start)}
	if data.Err != nil {
		args = append(args, "error", data.Err)
	}
	debug.Log(debug.Storage, "query finished", args...)
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey reports a unique_violation (SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
