package adapters

import "context"

// DBAdapter runs interpolated statements.
type DBAdapter interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBRows is a forward-only result cursor.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult reports an Exec outcome.
type DBResult interface {
	RowsAffected() (int64, error)
}
