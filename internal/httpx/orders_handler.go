package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-courier-orders/internal/lifecycle"
	"github.com/ariefcatur/go-courier-orders/internal/orders"
	"github.com/ariefcatur/go-courier-orders/internal/store"
)

type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	MarkOutForDelivery(ctx context.Context, orderID string, opts ...lifecycle.TransitionOption) error
	MarkDelivered(ctx context.Context, orderID string, opts ...lifecycle.TransitionOption) error
}

type OrdersHandler struct {
	Orders OrderService
}

type messageResp struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/order/{id}", h.getOrder)
	r.Post("/order/pickup/{id}", h.pickupOrder)
	r.Post("/order/deliver/{id}", h.deliverOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a missing row to 404, a rejected transition to 409 and
// anything else to 500.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case store.IsNotFound(err):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition):
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) pickupOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Orders.MarkOutForDelivery(ctx, orderID, courierOption(r)...); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Message: "Order is now out for delivery!", OrderID: orderID})
}

func (h *OrdersHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Orders.MarkDelivered(ctx, orderID, courierOption(r)...); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Message: "Order is now delivered!", OrderID: orderID})
}

func courierOption(r *http.Request) []lifecycle.TransitionOption {
	if c := r.URL.Query().Get("courier_id"); c != "" {
		return []lifecycle.TransitionOption{lifecycle.WithCourier(c)}
	}
	return nil
}
