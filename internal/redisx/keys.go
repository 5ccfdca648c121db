package redisx

import (
	"fmt"
	"time"
)

const (
	// Cached order summary: order_status:{order_id} -> order JSON
	KeyOrderStatus = "order_status:%s"
	// Bumped on every invalidation: order_status_gen:{order_id} -> counter
	KeyOrderStatusGen = "order_status_gen:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLStatusGen   = time.Hour
)

func OrderStatusKey(orderID string) string    { return fmt.Sprintf(KeyOrderStatus, orderID) }
func OrderStatusGenKey(orderID string) string { return fmt.Sprintf(KeyOrderStatusGen, orderID) }
