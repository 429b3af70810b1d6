// Package dbsource implements the spatial-SQL backed tile sources of §4.C:
// discovery of table and function sources and per-request ST_AsMVT query
// generation against a pooled PostGIS connection, grounded in the
// tarkov-database-tileserver controller's pool-and-query shape and
// arihant-dev-forest-bd-viewer's jackc/pgx/v5/pgxpool usage.
package dbsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDatabaseUnavailable is surfaced once acquisition fails after the single
// transparent retry described in spec §4.C.
var ErrDatabaseUnavailable = errors.New("dbsource: database unavailable")

// PoolConfig bounds a database connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	AcquireTimeout  time.Duration
	RequestTimeout  time.Duration
}

// DefaultPoolConfig mirrors the teacher's conservative defaults, scaled for
// a pooled spatial backend rather than a single SQLite file handle.
func DefaultPoolConfig(url string) PoolConfig {
	return PoolConfig{
		URL:            url,
		MaxConns:       10,
		MinConns:       0,
		AcquireTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Pool wraps a pgxpool.Pool with the acquire/retry/timeout semantics spec
// §4.C and §5 require: awaitable and cancellable acquisition, a per-request
// timeout, and a single transparent retry on connection loss before
// ErrDatabaseUnavailable is surfaced.
type Pool struct {
	cfg PoolConfig
	pg  *pgxpool.Pool
}

// Open connects and validates reachability with a Ping, logging the way the
// teacher's mbtiles.Open does for its own backend.
func Open(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dbsource: parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pgCfg.MaxConns = cfg.MaxConns
	}
	pgCfg.MinConns = cfg.MinConns

	pg, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("dbsource: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pg.Ping(pingCtx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}

	logger.Infof("dbsource: pool opened (max_conns=%d)", pgCfg.MaxConns)
	return &Pool{cfg: cfg, pg: pg}, nil
}

// Close releases the underlying pool.
func (p *Pool) Close() { p.pg.Close() }

// QueryRowRetry runs fn with the pool's configured request timeout, retrying
// exactly once on a connection-class failure before surfacing
// ErrDatabaseUnavailable, per spec §4.C.
func (p *Pool) QueryRowRetry(ctx context.Context, fn func(ctx context.Context, conn *pgxpool.Pool) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	err := fn(reqCtx, p.pg)
	if err == nil || !isConnectionLoss(err) {
		return err
	}

	logger.Warningf("dbsource: connection lost, retrying once: %v", err)

	retryCtx, retryCancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer retryCancel()

	if err := fn(retryCtx, p.pg); err != nil {
		if isConnectionLoss(err) {
			return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
		}
		return err
	}
	return nil
}

func isConnectionLoss(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var connErr interface{ SafeToRetry() bool }
	if errors.As(err, &connErr) {
		return connErr.SafeToRetry()
	}

	msg := err.Error()
	for _, sub := range []string{"connection reset", "broken pipe", "EOF", "connection refused", "bad connection"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
