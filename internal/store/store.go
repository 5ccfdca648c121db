// Package store defines the narrow capability the order service needs from a
// wide-column store: read one row, apply a batch of cell mutations, create a
// table. Concrete drivers live in the sub-packages.
package store

import (
	"context"
	"time"
)

// Cell is a single stored value. Timestamp is in unix milliseconds.
type Cell struct {
	Value     []byte
	Timestamp int64
}

// Row is one result row. Columns are keyed by their raw "family:qualifier"
// name as returned by the store, so a name is not guaranteed to be valid UTF-8.
type Row struct {
	Key     []byte
	Columns map[string]Cell
}

// Mutation sets one cell.
type Mutation struct {
	Family    string
	Qualifier string
	Value     []byte
}

// RowMutation is the set of cell writes applied to a single row.
type RowMutation struct {
	Key       string
	Mutations []Mutation
}

// Store is one open connection to the wide-column store.
type Store interface {
	// GetRow returns *RowNotFoundError when the store has no row for key.
	GetRow(ctx context.Context, table, key string) (Row, error)
	// Put applies the batch stamped with ts. Failures are *DBError.
	Put(ctx context.Context, table string, batch []RowMutation, ts time.Time) error
	// CreateTable is idempotent: an existing table is not an error.
	CreateTable(ctx context.Context, name string, families []string) error
	Close() error
}

// Dialer opens a fresh Store connection. Request handlers dial once per call
// and close the connection when done.
type Dialer interface {
	Dial(ctx context.Context) (Store, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Store, error)

func (f DialerFunc) Dial(ctx context.Context) (Store, error) { return f(ctx) }

// FirstRow picks the first of rows, ignoring the rest. Zero rows is a
// *RowNotFoundError for key.
func FirstRow(key string, rows []Row) (Row, error) {
	if len(rows) == 0 {
		return Row{}, &RowNotFoundError{ID: key}
	}
	return rows[0], nil
}

// Millis converts a mutation timestamp to the store's unix millisecond form.
func Millis(ts time.Time) int64 { return ts.UnixMilli() }
