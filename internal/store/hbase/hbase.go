// Package hbase implements store.Store on top of an HBase cluster reached
// through its ZooKeeper quorum.
package hbase

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tsuna/gohbase"
	"github.com/tsuna/gohbase/hrpc"

	"github.com/ariefcatur/go-courier-orders/internal/store"
)

// client is the subset of gohbase.Client used here.
type client interface {
	Get(g *hrpc.Get) (*hrpc.Result, error)
	Put(p *hrpc.Mutate) (*hrpc.Result, error)
	Close()
}

type adminClient interface {
	CreateTable(t *hrpc.CreateTable) error
}

type Store struct {
	client   client
	newAdmin func() adminClient
	log      zerolog.Logger
}

// Dialer opens a gohbase client per Dial. The client connects lazily, so a
// dial is cheap until the first request.
type Dialer struct {
	Quorum string
	Log    zerolog.Logger
}

func (d Dialer) Dial(context.Context) (store.Store, error) {
	if d.Quorum == "" {
		return nil, store.ErrNotConfigured
	}
	quorum := d.Quorum
	return &Store{
		client:   gohbase.NewClient(quorum),
		newAdmin: func() adminClient { return gohbase.NewAdminClient(quorum) },
		log:      d.Log.With().Str("store", "hbase").Logger(),
	}, nil
}

func (s *Store) GetRow(ctx context.Context, table, key string) (store.Row, error) {
	get, err := hrpc.NewGetStr(ctx, table, key)
	if err != nil {
		return store.Row{}, store.Wrap("get", errors.Wrap(err, "build get request"))
	}
	res, err := s.client.Get(get)
	if err != nil {
		return store.Row{}, store.Wrap("get", errors.Wrapf(err, "get %s/%s", table, key))
	}
	return store.FirstRow(key, rowsFromCells(res.Cells))
}

func (s *Store) Put(ctx context.Context, table string, batch []store.RowMutation, ts time.Time) error {
	for _, rm := range batch {
		values := make(map[string]map[string][]byte)
		for _, m := range rm.Mutations {
			if values[m.Family] == nil {
				values[m.Family] = make(map[string][]byte)
			}
			values[m.Family][m.Qualifier] = m.Value
		}
		put, err := hrpc.NewPutStr(ctx, table, rm.Key, values, hrpc.Timestamp(ts))
		if err != nil {
			return store.Wrap("put", errors.Wrap(err, "build put request"))
		}
		if _, err := s.client.Put(put); err != nil {
			return store.Wrap("put", errors.Wrapf(err, "put %s/%s", table, rm.Key))
		}
		s.log.Debug().Str("table", table).Str("row", rm.Key).Int("cells", len(rm.Mutations)).Msg("row mutated")
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, name string, families []string) error {
	cfs := make(map[string]map[string]string, len(families))
	for _, f := range families {
		cfs[f] = map[string]string{}
	}
	err := s.newAdmin().CreateTable(hrpc.NewCreateTable(ctx, []byte(name), cfs))
	if err != nil {
		if strings.Contains(err.Error(), "TableExistsException") {
			s.log.Info().Str("table", name).Msg("table already exists")
			return nil
		}
		return store.Wrap("create table", errors.Wrapf(err, "create %s", name))
	}
	s.log.Info().Str("table", name).Strs("families", families).Msg("table created")
	return nil
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// rowsFromCells groups cells by row key, keeping the order rows first appear.
func rowsFromCells(cells []*hrpc.Cell) []store.Row {
	var rows []store.Row
	index := make(map[string]int)
	for _, c := range cells {
		if c == nil {
			continue
		}
		key := string(c.Row)
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, store.Row{Key: c.Row, Columns: make(map[string]store.Cell)})
		}
		var ts int64
		if c.Timestamp != nil {
			ts = int64(*c.Timestamp)
		}
		rows[i].Columns[string(c.Family)+":"+string(c.Qualifier)] = store.Cell{Value: c.Value, Timestamp: ts}
	}
	return rows
}
