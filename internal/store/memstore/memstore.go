// Package memstore is a process-local store used for development and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ariefcatur/go-courier-orders/internal/store"
)

// Memory keeps tables in memory. It is both the Dialer and the Store: every
// Dial returns a handle to the same data, and Close on a handle is a no-op.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	families map[string]bool
	rows     map[string]map[string]store.Cell
}

func New() *Memory {
	return &Memory{tables: make(map[string]*table)}
}

func (m *Memory) Dial(context.Context) (store.Store, error) { return m, nil }

func (m *Memory) GetRow(_ context.Context, tableName, key string) (store.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[tableName]
	if !ok {
		return store.Row{}, &store.DBError{Op: "get", Cause: errors.Errorf("table %q does not exist", tableName)}
	}
	cols, ok := t.rows[key]
	if !ok {
		return store.FirstRow(key, nil)
	}
	row := store.Row{Key: []byte(key), Columns: make(map[string]store.Cell, len(cols))}
	for name, cell := range cols {
		row.Columns[name] = store.Cell{Value: append([]byte(nil), cell.Value...), Timestamp: cell.Timestamp}
	}
	return row, nil
}

func (m *Memory) Put(_ context.Context, tableName string, batch []store.RowMutation, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[tableName]
	if !ok {
		return &store.DBError{Op: "put", Cause: errors.Errorf("table %q does not exist", tableName)}
	}
	for _, rm := range batch {
		for _, mut := range rm.Mutations {
			if !t.families[mut.Family] {
				return &store.DBError{Op: "put", Cause: errors.Errorf("unknown column family %q", mut.Family)}
			}
		}
	}

	millis := store.Millis(ts)
	for _, rm := range batch {
		cols, ok := t.rows[rm.Key]
		if !ok {
			cols = make(map[string]store.Cell)
			t.rows[rm.Key] = cols
		}
		for _, mut := range rm.Mutations {
			cols[mut.Family+":"+mut.Qualifier] = store.Cell{
				Value:     append([]byte(nil), mut.Value...),
				Timestamp: millis,
			}
		}
	}
	return nil
}

func (m *Memory) CreateTable(_ context.Context, name string, families []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[name]
	if !ok {
		t = &table{families: make(map[string]bool), rows: make(map[string]map[string]store.Cell)}
		m.tables[name] = t
	}
	for _, f := range families {
		t.families[f] = true
	}
	return nil
}

func (m *Memory) Close() error { return nil }
