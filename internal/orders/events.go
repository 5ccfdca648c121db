package orders

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// OrderEvent points at an order whose state changed. It carries identity
// only; consumers re-apply the transition the topic stands for.
type OrderEvent struct {
	OrderID   string `json:"order_id"`
	CourierID string `json:"courier_id,omitempty"`
}

// EncodeEvent renders ev as JSON with order_id first.
func EncodeEvent(ev OrderEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, &CodecError{Cause: errors.Wrap(err, "encode order event")}
	}
	return b, nil
}

func DecodeEvent(b []byte) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return OrderEvent{}, &CodecError{Cause: errors.Wrap(err, "decode order event")}
	}
	if ev.OrderID == "" {
		return OrderEvent{}, &CodecError{Cause: errors.New("order event without order_id")}
	}
	return ev, nil
}
