package orders

const (
	TopicOutForDelivery = "OrderOutForDelivery"
	TopicDelivered      = "OrderDelivered"
)

// Topics maps transition target states to the topic their events go to.
type Topics struct {
	OutForDelivery string
	Delivered      string
}

func DefaultTopics() Topics {
	return Topics{OutForDelivery: TopicOutForDelivery, Delivered: TopicDelivered}
}

func (t Topics) For(s State) (string, bool) {
	switch s {
	case StateOutForDelivery:
		return t.OutForDelivery, t.OutForDelivery != ""
	case StateDelivered:
		return t.Delivered, t.Delivered != ""
	}
	return "", false
}

// Partition key = order_id, so events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
