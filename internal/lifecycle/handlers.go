package lifecycle

import (
	"context"

	kafkax "github.com/ariefcatur/go-courier-orders/internal/kafka"
	"github.com/ariefcatur/go-courier-orders/internal/orders"
)

// HandleOutForDelivery consumes an OrderOutForDelivery payload.
func (c *Coordinator) HandleOutForDelivery(ctx context.Context, payload []byte) error {
	return c.handle(ctx, payload, orders.StateOutForDelivery)
}

// HandleDelivered consumes an OrderDelivered payload.
func (c *Coordinator) HandleDelivered(ctx context.Context, payload []byte) error {
	return c.handle(ctx, payload, orders.StateDelivered)
}

func (c *Coordinator) handle(ctx context.Context, payload []byte, target orders.State) error {
	ev, err := orders.DecodeEvent(payload)
	if err != nil {
		return err
	}
	return c.Apply(ctx, ev.OrderID, target)
}

// Handlers maps each lifecycle topic to its consuming handler.
func (c *Coordinator) Handlers() map[string]kafkax.Handler {
	return map[string]kafkax.Handler{
		c.topics.OutForDelivery: c.HandleOutForDelivery,
		c.topics.Delivered:      c.HandleDelivered,
	}
}
