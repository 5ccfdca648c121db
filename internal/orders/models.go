package orders

// Order is a delivery order as stored in the orders table.
type Order struct {
	OrderID           string `json:"order_id"`
	CustomerID        string `json:"customer_id"`
	RestaurantID      string `json:"restaurant_id"`
	CustomerAddress   string `json:"customer_address"`
	RestaurantAddress string `json:"restaurant_address"`
	State             State  `json:"state"`
}

// OrderBuilder collects fields decoded from a row. A nil field was absent.
type OrderBuilder struct {
	OrderID           *string
	CustomerID        *string
	RestaurantID      *string
	CustomerAddress   *string
	RestaurantAddress *string
	State             *State
}

// NewOrder validates its arguments the same way a decoded row is validated.
// An empty state becomes StateCreated.
func NewOrder(orderID, customerID, restaurantID, customerAddr, restaurantAddr string, state State) (Order, error) {
	b := OrderBuilder{
		OrderID:           nonEmpty(orderID),
		CustomerID:        nonEmpty(customerID),
		RestaurantID:      nonEmpty(restaurantID),
		CustomerAddress:   nonEmpty(customerAddr),
		RestaurantAddress: nonEmpty(restaurantAddr),
	}
	if state != "" {
		b.State = &state
	}
	return b.Build()
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
