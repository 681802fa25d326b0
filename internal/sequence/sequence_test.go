package sequence

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkernel/internal/apperr"
	"bbkernel/internal/config"
)

func newSQLite(t *testing.T, opts ...Option) *Sequencer {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	s, err := NewFromSQLDB(db, opts...)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestNext_StartsAtDefault(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	v, err := s.Next(ctx, "x", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	v, err = s.Next(ctx, "x", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)

	v, err = s.Next(ctx, "y", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "sequences are independent")

	cur, err := s.Current(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(6), cur)

	_, err = s.Next(ctx, "", 1)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidArgument))
}

func TestNext_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	seen := make(chan int64, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v, err := s.Next(ctx, "page", 1)
				if err != nil {
					t.Error(err)
					return
				}
				seen <- v
			}
		}()
	}
	wg.Wait()
	close(seen)
	unique := map[int64]bool{}
	for v := range seen {
		assert.False(t, unique[v], "value %d handed out twice", v)
		unique[v] = true
	}
	cur, err := s.Current(ctx, "page")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), cur)
}

func TestIncreaseTo_NeverDecreases(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	_, err := s.Next(ctx, "x", 10)
	require.NoError(t, err)

	for _, lower := range []int64{1, 9, 10} {
		v, err := s.IncreaseTo(ctx, "x", lower)
		require.NoError(t, err)
		assert.Equal(t, int64(10), v, "increase to %d", lower)
	}

	v, err := s.IncreaseTo(ctx, "x", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	cur, err := s.Current(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cur)

	next, err := s.Next(ctx, "x", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(43), next)

	v, err = s.IncreaseTo(ctx, "fresh", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v, "missing sequences are created")
}

func TestIncreaseTo_RejectsNonPositive(t *testing.T) {
	s := newSQLite(t)
	for _, bad := range []int64{0, -1} {
		_, err := s.IncreaseTo(context.Background(), "x", bad)
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidArgument))
		assert.ErrorIs(t, err, ErrNonPositiveValue)
	}
}

func TestCurrent_Unknown(t *testing.T) {
	_, err := newSQLite(t).Current(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSequence)
}

func TestOptions(t *testing.T) {
	s := newSQLite(t, WithTableName("bb_sequence"), WithLogger(zerolog.Nop()))
	assert.Equal(t, "bb_sequence", s.Table())
	v, err := s.Next(context.Background(), "x", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = NewFromSQLDB(db, WithTableName("bad name; drop"))
	assert.ErrorIs(t, err, ErrInvalidTableName)

	_, err = NewFromSQLDB(nil)
	assert.ErrorIs(t, err, ErrNilDatabaseConnection)
	_, err = NewFromSQLX(nil)
	assert.ErrorIs(t, err, ErrNilDatabaseConnection)
	_, err = NewFromPGXPool(nil)
	assert.ErrorIs(t, err, ErrNilDatabaseConnection)
}

func TestSQLShapes(t *testing.T) {
	s := &Sequencer{table: DefaultTable}
	q, err := s.nextSQL("it's", 5)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "sequence" ("name", "value") VALUES ('it''s', 5) ON CONFLICT (name) DO UPDATE SET "value"="sequence"."value" + 1 RETURNING "value"`, q)

	q, err = s.increaseSQL("x", 9)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q, `DO UPDATE SET "value"=9 WHERE ("sequence"."value" < 9) RETURNING "value"`), q)
}

func TestNewFromSQLX(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()
	s, err := NewFromSQLX(db)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	v, err := s.Next(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestOpen(t *testing.T) {
	s, closeFn, err := Open(context.Background(), config.DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:", Table: "seq"}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	v, err := s.Next(context.Background(), "x", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, _, err = Open(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"}, zerolog.Nop())
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidConfig))
}
