package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-courier-orders/internal/store"
)

const DefaultTable = "orders"

// Repo reads and writes orders through one open store connection.
type Repo struct {
	Store store.Store
	Table string
}

func (r *Repo) table() string {
	if r.Table == "" {
		return DefaultTable
	}
	return r.Table
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	row, err := r.Store.GetRow(ctx, r.table(), orderID)
	if err != nil {
		return Order{}, err
	}
	return DecodeRow(ctx, row).Build()
}

// CurrentState reads only the state column. Rows without one are Created.
func (r *Repo) CurrentState(ctx context.Context, orderID string) (State, error) {
	row, err := r.Store.GetRow(ctx, r.table(), orderID)
	if err != nil {
		return "", err
	}
	b := DecodeRow(ctx, row)
	if b.State == nil || *b.State == "" {
		return StateCreated, nil
	}
	return *b.State, nil
}

// UpdateState overwrites info:state with at as the mutation timestamp. The
// current state is not checked.
func (r *Repo) UpdateState(ctx context.Context, orderID string, s State, at time.Time) error {
	batch := []store.RowMutation{{Key: orderID, Mutations: []store.Mutation{StateMutation(s)}}}
	return r.Store.Put(ctx, r.table(), batch, at)
}

func (r *Repo) SaveOrder(ctx context.Context, o Order, at time.Time) error {
	return r.Store.Put(ctx, r.table(), []store.RowMutation{EncodeOrder(o)}, at)
}

func (r *Repo) CreateTable(ctx context.Context) error {
	return r.Store.CreateTable(ctx, r.table(), Families)
}
