// Package pgcells stores wide-column rows in PostgreSQL as one SQL row per
// cell, keyed by (row_key, family, qualifier).
package pgcells

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-courier-orders/internal/postgres"
	"github.com/ariefcatur/go-courier-orders/internal/store"
)

// Conn is satisfied by *pgx.Conn and by pgxmock connections.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

type Store struct {
	conn Conn
}

func New(conn Conn) *Store { return &Store{conn: conn} }

type Dialer struct {
	DSN string
}

func (d Dialer) Dial(ctx context.Context) (store.Store, error) {
	if d.DSN == "" {
		return nil, store.ErrNotConfigured
	}
	conn, err := postgres.Connect(ctx, d.DSN)
	if err != nil {
		return nil, store.Wrap("connect", errors.Wrap(err, "postgres connect"))
	}
	return New(conn), nil
}

func cellsTable(name string) string    { return pgx.Identifier{name + "_cells"}.Sanitize() }
func familiesTable(name string) string { return pgx.Identifier{name + "_families"}.Sanitize() }

func (s *Store) GetRow(ctx context.Context, table, key string) (store.Row, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT family, qualifier, value, ts FROM `+cellsTable(table)+` WHERE row_key = $1`, key)
	if err != nil {
		return store.Row{}, store.Wrap("get", errors.Wrapf(err, "query %s/%s", table, key))
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		var (
			family, qualifier string
			value             []byte
			ts                int64
		)
		if err := rows.Scan(&family, &qualifier, &value, &ts); err != nil {
			return store.Row{}, store.Wrap("get", errors.Wrap(err, "scan cell"))
		}
		if out == nil {
			out = []store.Row{{Key: []byte(key), Columns: make(map[string]store.Cell)}}
		}
		out[0].Columns[family+":"+qualifier] = store.Cell{Value: value, Timestamp: ts}
	}
	if err := rows.Err(); err != nil {
		return store.Row{}, store.Wrap("get", errors.Wrap(err, "iterate cells"))
	}
	return store.FirstRow(key, out)
}

func (s *Store) Put(ctx context.Context, table string, batch []store.RowMutation, ts time.Time) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return store.Wrap("put", errors.Wrap(err, "begin"))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	known, err := registeredFamilies(ctx, tx, table)
	if err != nil {
		return store.Wrap("put", err)
	}
	for _, rm := range batch {
		for _, m := range rm.Mutations {
			if !known[m.Family] {
				return store.Wrap("put", errors.Errorf("unknown column family %q", m.Family))
			}
		}
	}

	stmt := `INSERT INTO ` + cellsTable(table) + ` (row_key, family, qualifier, value, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (row_key, family, qualifier) DO UPDATE SET value = EXCLUDED.value, ts = EXCLUDED.ts`
	millis := store.Millis(ts)
	for _, rm := range batch {
		for _, m := range rm.Mutations {
			if _, err := tx.Exec(ctx, stmt, rm.Key, m.Family, m.Qualifier, m.Value, millis); err != nil {
				return store.Wrap("put", errors.Wrapf(err, "upsert %s/%s %s:%s", table, rm.Key, m.Family, m.Qualifier))
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Wrap("put", errors.Wrap(err, "commit"))
	}
	return nil
}

// registeredFamilies reads the families CreateTable recorded for table.
func registeredFamilies(ctx context.Context, tx pgx.Tx, table string) (map[string]bool, error) {
	rows, err := tx.Query(ctx, `SELECT family FROM `+familiesTable(table))
	if err != nil {
		return nil, errors.Wrapf(err, "list families of %s", table)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrapf(err, "list families of %s", table)
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return known, nil
}

func (s *Store) CreateTable(ctx context.Context, name string, families []string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + cellsTable(name) + ` (
			row_key   TEXT   NOT NULL,
			family    TEXT   NOT NULL,
			qualifier TEXT   NOT NULL,
			value     BYTEA  NOT NULL,
			ts        BIGINT NOT NULL,
			PRIMARY KEY (row_key, family, qualifier)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + familiesTable(name) + ` (family TEXT PRIMARY KEY)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return store.Wrap("create table", errors.Wrapf(err, "create %s", name))
		}
	}
	for _, f := range families {
		if _, err := s.conn.Exec(ctx,
			`INSERT INTO `+familiesTable(name)+` (family) VALUES ($1) ON CONFLICT DO NOTHING`, f); err != nil {
			return store.Wrap("create table", errors.Wrapf(err, "register family %s", f))
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close(context.Background())
}
