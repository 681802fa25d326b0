// Package sequence implements named persistent counters on a relational table.
// Every update is a single upsert statement, so concurrent callers never lose
// increments.
package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"bbkernel/internal/apperr"
	"bbkernel/internal/sequence/internal/adapters"
)

const (
	// DefaultTable is the table used unless WithTableName says otherwise.
	DefaultTable = "sequence"

	dialectPostgres = "postgres"
	colName         = "name"
	colValue        = "value"
)

var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrInvalidTableName      = errors.New("invalid sequence table name")
	ErrEmptySequenceName     = errors.New("sequence name must not be empty")
	ErrNonPositiveValue      = errors.New("sequence value must be a positive integer")
	ErrUnknownSequence       = errors.New("unknown sequence")

	tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Sequencer reads and advances named counters.
type Sequencer struct {
	db    adapters.DBAdapter
	table string
	log   zerolog.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer) error

// WithTableName sets the backing table.
func WithTableName(name string) Option {
	return func(s *Sequencer) error {
		if !tableNameRe.MatchString(name) {
			return errors.Join(ErrInvalidTableName, fmt.Errorf("%q", name))
		}
		s.table = name
		return nil
	}
}

// WithLogger sets the logger; statements are logged at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sequencer) error {
		s.log = l
		return nil
	}
}

// NewFromSQLDB returns a Sequencer on a database/sql handle.
func NewFromSQLDB(db *sql.DB, opts ...Option) (*Sequencer, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}
	return newSequencer(adapters.NewSQLAdapter(db), opts)
}

// NewFromSQLX returns a Sequencer on a sqlx handle.
func NewFromSQLX(db *sqlx.DB, opts ...Option) (*Sequencer, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}
	return newSequencer(adapters.NewSQLXAdapter(db), opts)
}

// NewFromPGXPool returns a Sequencer on a pgx pool.
func NewFromPGXPool(pool *pgxpool.Pool, opts ...Option) (*Sequencer, error) {
	if pool == nil {
		return nil, ErrNilDatabaseConnection
	}
	return newSequencer(adapters.NewPGXAdapter(pool), opts)
}

func newSequencer(db adapters.DBAdapter, opts []Option) (*Sequencer, error) {
	s := &Sequencer{db: db, table: DefaultTable, log: zerolog.Nop()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidArgument, err, "sequencer option")
		}
	}
	return s, nil
}

// Table returns the backing table name.
func (s *Sequencer) Table() string { return s.table }

// EnsureSchema creates the table when it does not exist.
func (s *Sequencer) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%q VARCHAR(255) NOT NULL PRIMARY KEY, %q BIGINT NOT NULL)`,
		s.table, colName, colValue)
	if _, err := s.db.Exec(ctx, q); err != nil {
		return apperr.Wrap(apperr.CodeQueryFailed, err, "create sequence table")
	}
	s.log.Debug().Str("table", s.table).Msg("sequence schema ensured")
	return nil
}

// Next advances name by one and returns the new value. A sequence that does
// not exist yet is created at def, which is returned.
func (s *Sequencer) Next(ctx context.Context, name string, def int64) (int64, error) {
	if name == "" {
		return 0, apperr.Wrap(apperr.CodeInvalidArgument, ErrEmptySequenceName, "next")
	}
	q, err := s.nextSQL(name, def)
	if err != nil {
		return 0, err
	}
	v, found, err := s.queryValue(ctx, q)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, apperr.Newf(apperr.CodeQueryFailed, "sequence %q: upsert returned no row", name)
	}
	s.log.Debug().Str("sequence", name).Int64("value", v).Msg("sequence advanced")
	return v, nil
}

// IncreaseTo raises name to value when value exceeds the stored value and
// returns the stored value afterwards. It never lowers a sequence. A missing
// sequence is created at value.
func (s *Sequencer) IncreaseTo(ctx context.Context, name string, value int64) (int64, error) {
	if name == "" {
		return 0, apperr.Wrap(apperr.CodeInvalidArgument, ErrEmptySequenceName, "increase")
	}
	if value <= 0 {
		return 0, apperr.Wrap(apperr.CodeInvalidArgument, ErrNonPositiveValue, fmt.Sprintf("increase %s to %d", name, value))
	}
	q, err := s.increaseSQL(name, value)
	if err != nil {
		return 0, err
	}
	v, raised, err := s.queryValue(ctx, q)
	if err != nil {
		return 0, err
	}
	if raised {
		s.log.Debug().Str("sequence", name).Int64("value", v).Msg("sequence raised")
		return v, nil
	}
	return s.Current(ctx, name)
}

// Current returns the stored value of name.
func (s *Sequencer) Current(ctx context.Context, name string) (int64, error) {
	q, _, err := goqu.Dialect(dialectPostgres).
		From(s.table).
		Select(colValue).
		Where(goqu.C(colName).Eq(name)).
		ToSQL()
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeQueryFailed, err, "build select")
	}
	v, found, err := s.queryValue(ctx, q)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, apperr.Wrap(apperr.CodeInvalidArgument, ErrUnknownSequence, name)
	}
	return v, nil
}

// nextSQL renders
//
//	INSERT INTO t (name, value) VALUES (n, def)
//	ON CONFLICT (name) DO UPDATE SET value = t.value + 1 RETURNING value
func (s *Sequencer) nextSQL(name string, def int64) (string, error) {
	q, _, err := goqu.Dialect(dialectPostgres).
		Insert(s.table).
		Rows(goqu.Record{colName: name, colValue: def}).
		OnConflict(goqu.DoUpdate(colName, goqu.Record{
			colValue: goqu.L("? + 1", goqu.T(s.table).Col(colValue)),
		})).
		Returning(colValue).
		ToSQL()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeQueryFailed, err, "build upsert")
	}
	return q, nil
}

// increaseSQL renders the same upsert guarded by WHERE t.value < value, so no
// row comes back when the stored value is already at least value.
func (s *Sequencer) increaseSQL(name string, value int64) (string, error) {
	q, _, err := goqu.Dialect(dialectPostgres).
		Insert(s.table).
		Rows(goqu.Record{colName: name, colValue: value}).
		OnConflict(goqu.DoUpdate(colName, goqu.Record{colValue: value}).
			Where(goqu.T(s.table).Col(colValue).Lt(value))).
		Returning(colValue).
		ToSQL()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeQueryFailed, err, "build upsert")
	}
	return q, nil
}

func (s *Sequencer) queryValue(ctx context.Context, q string) (v int64, found bool, err error) {
	s.log.Debug().Str("query", q).Msg("sequence sql")
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return 0, false, apperr.Wrap(apperr.CodeQueryFailed, err, "sequence query")
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = apperr.Wrap(apperr.CodeQueryFailed, cerr, "close rows")
		}
	}()
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return 0, false, apperr.Wrap(apperr.CodeQueryFailed, err, "scan sequence value")
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return 0, false, apperr.Wrap(apperr.CodeQueryFailed, err, "sequence rows")
	}
	return v, found, nil
}
