package sequence

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"bbkernel/internal/apperr"
	"bbkernel/internal/config"
)

// Supported values of database.driver.
const (
	DriverPostgres = "postgres" // lib/pq through sqlx
	DriverPGX      = "pgx"      // pgxpool
	DriverSQLite   = "sqlite3"
)

var connectDelay = 500 * time.Millisecond

// Open connects to the configured database, retrying the initial ping, and
// returns a Sequencer with its schema in place. The returned func closes the
// connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*Sequencer, func() error, error) {
	attempts := cfg.ConnectRetries + 1
	opts := []Option{WithLogger(log)}
	if cfg.Table != "" {
		opts = append(opts, WithTableName(cfg.Table))
	}
	retryOpts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(connectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("driver", cfg.Driver).Msg("database not reachable, retrying")
		}),
	}

	var (
		seq     *Sequencer
		closeFn func() error
		err     error
	)
	switch cfg.Driver {
	case DriverPGX:
		pcfg, perr := pgxpool.ParseConfig(cfg.DSN)
		if perr != nil {
			return nil, nil, apperr.Wrap(apperr.CodeInvalidConfig, perr, "parse pgx dsn")
		}
		if cfg.MaxOpenConns > 0 {
			pcfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		pool, perr := pgxpool.NewWithConfig(ctx, pcfg)
		if perr != nil {
			return nil, nil, apperr.Wrap(apperr.CodeConnectionFailed, perr, "open pgx pool")
		}
		closeFn = func() error { pool.Close(); return nil }
		err = retry.Do(func() error { return pool.Ping(ctx) }, retryOpts...)
		if err == nil {
			seq, err = NewFromPGXPool(pool, opts...)
		}
	case DriverPostgres, DriverSQLite:
		var db *sqlx.DB
		db, err = sqlx.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.CodeConnectionFailed, err, "open "+cfg.Driver)
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.Driver == DriverSQLite {
			// one connection keeps ":memory:" databases shared
			db.SetMaxOpenConns(1)
		}
		closeFn = db.Close
		err = retry.Do(func() error { return db.PingContext(ctx) }, retryOpts...)
		if err == nil {
			seq, err = NewFromSQLX(db, opts...)
		}
	default:
		return nil, nil, apperr.Newf(apperr.CodeInvalidConfig, "unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		_ = closeFn()
		if apperr.CodeOf(err) != apperr.CodeUnknown {
			return nil, nil, err
		}
		return nil, nil, apperr.Wrap(apperr.CodeConnectionFailed, err, "connect "+cfg.Driver)
	}
	if err := seq.EnsureSchema(ctx); err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	log.Info().Str("driver", cfg.Driver).Str("table", seq.Table()).Msg("sequencer ready")
	return seq, closeFn, nil
}
