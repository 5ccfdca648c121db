package orders

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-courier-orders/internal/store"
)

const (
	FamilyInfo     = "info"
	FamilyIDs      = "ids"
	FamilyAddr     = "addr"
	FamilyReserved = "ol" // unused, kept in the table layout

	QualOrderID           = "o_id"
	QualState             = "state"
	QualCustomerID        = "c_id"
	QualRestaurantID      = "r_id"
	QualCustomerAddress   = "c_addr"
	QualRestaurantAddress = "r_addr"
)

// Families is the column family set of the orders table.
var Families = []string{FamilyInfo, FamilyIDs, FamilyAddr, FamilyReserved}

type column struct{ family, qualifier string }

var columnSetters = map[column]func(b *OrderBuilder, v string){
	{FamilyInfo, QualOrderID}:           func(b *OrderBuilder, v string) { b.OrderID = &v },
	{FamilyInfo, QualState}:             func(b *OrderBuilder, v string) { s := State(v); b.State = &s },
	{FamilyIDs, QualCustomerID}:         func(b *OrderBuilder, v string) { b.CustomerID = &v },
	{FamilyIDs, QualRestaurantID}:       func(b *OrderBuilder, v string) { b.RestaurantID = &v },
	{FamilyAddr, QualCustomerAddress}:   func(b *OrderBuilder, v string) { b.CustomerAddress = &v },
	{FamilyAddr, QualRestaurantAddress}: func(b *OrderBuilder, v string) { b.RestaurantAddress = &v },
}

// ColumnName joins family and qualifier the way the store names columns.
func ColumnName(family, qualifier string) string { return family + ":" + qualifier }

// ParseColumn splits a "family:qualifier" column name. It fails for names
// that are not valid UTF-8 or do not contain exactly one colon.
func ParseColumn(name string) (family, qualifier string, ok bool) {
	if !utf8.ValidString(name) {
		return "", "", false
	}
	parts := strings.Split(name, ":")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// EncodeOrder produces the cell writes that store o. info:state is only
// written when o carries a state.
func EncodeOrder(o Order) store.RowMutation {
	muts := []store.Mutation{
		{Family: FamilyInfo, Qualifier: QualOrderID, Value: []byte(o.OrderID)},
		{Family: FamilyIDs, Qualifier: QualCustomerID, Value: []byte(o.CustomerID)},
		{Family: FamilyIDs, Qualifier: QualRestaurantID, Value: []byte(o.RestaurantID)},
		{Family: FamilyAddr, Qualifier: QualCustomerAddress, Value: []byte(o.CustomerAddress)},
		{Family: FamilyAddr, Qualifier: QualRestaurantAddress, Value: []byte(o.RestaurantAddress)},
	}
	if o.State != "" {
		muts = append(muts, StateMutation(o.State))
	}
	return store.RowMutation{Key: o.OrderID, Mutations: muts}
}

func StateMutation(s State) store.Mutation {
	return store.Mutation{Family: FamilyInfo, Qualifier: QualState, Value: []byte(s)}
}

// DecodeRow fills a builder from row. The row key seeds the order id.
// Malformed column names, non-UTF-8 values and unknown columns are skipped.
func DecodeRow(ctx context.Context, row store.Row) OrderBuilder {
	var b OrderBuilder
	if len(row.Key) > 0 && utf8.Valid(row.Key) {
		id := string(row.Key)
		b.OrderID = &id
	}
	log := zerolog.Ctx(ctx)
	for name, cell := range row.Columns {
		family, qualifier, ok := ParseColumn(name)
		if !ok {
			log.Debug().Bytes("column", []byte(name)).Msg("skipping malformed column name")
			continue
		}
		if !utf8.Valid(cell.Value) {
			log.Debug().Str("column", name).Msg("skipping non utf-8 cell value")
			continue
		}
		set, ok := columnSetters[column{family, qualifier}]
		if !ok {
			log.Debug().Str("column", name).Msg("unknown column")
			continue
		}
		set(&b, string(cell.Value))
	}
	return b
}

// Build returns ErrOrderBuildFailed naming the missing fields. A missing
// state becomes StateCreated.
func (b OrderBuilder) Build() (Order, error) {
	var missing []string
	need := func(name string, v *string) string {
		if v == nil {
			missing = append(missing, name)
			return ""
		}
		return *v
	}
	o := Order{
		OrderID:           need("order_id", b.OrderID),
		CustomerID:        need("customer_id", b.CustomerID),
		RestaurantID:      need("restaurant_id", b.RestaurantID),
		CustomerAddress:   need("customer_address", b.CustomerAddress),
		RestaurantAddress: need("restaurant_address", b.RestaurantAddress),
		State:             StateCreated,
	}
	if len(missing) > 0 {
		return Order{}, errors.Wrapf(ErrOrderBuildFailed, "missing %s", strings.Join(missing, ", "))
	}
	if b.State != nil && *b.State != "" {
		o.State = *b.State
	}
	return o, nil
}
