package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/modadz/marketplace/internal/orders"
	"github.com/modadz/marketplace/internal/redisx"
)

// Customer identity comes from the gateway in front of this service.
const headerCustomerID = "X-Customer-Id"

type OrdersHandler struct {
	Service *orders.Service
	Redis   *redis.Client // optional tracking cache
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/track", h.trackOrder)
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Delete("/orders/{id}", h.cancelOrder)
	r.Post("/cart/calculate", h.calculateCart)
}

func customerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(headerCustomerID)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing customer identity"})
		return "", false
	}
	return id, true
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerID(w, r)
	if !ok {
		return
	}
	var in orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	in.CustomerID = cust

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.CreateOrder(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	size := atoiDefault(q.Get("size"), 20)
	status := orders.Status(q.Get("status"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Service.ListOrders(ctx, cust, page, size, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"), cust)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// trackOrder serves the delivery view through a short-lived cache, the
// tracking page is polled far more often than orders change.
func (h *OrdersHandler) trackOrder(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerID(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderTracking, orderID) + ":" + cust
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	v, err := h.Service.TrackOrder(ctx, orderID, cust)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Redis != nil {
		if b, err := json.Marshal(v); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLTrackingCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, v)
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
	Note   string        `json:"note,omitempty"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerID(w, r)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.CustomerUpdateStatus(ctx, chi.URLParam(r, "id"), cust, req.Status, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.CancelOrder(ctx, chi.URLParam(r, "id"), cust, r.URL.Query().Get("reason"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type calculateCartReq struct {
	Items          []orders.ItemInput    `json:"items"`
	DeliveryMethod orders.DeliveryMethod `json:"delivery_method,omitempty"`
}

func (h *OrdersHandler) calculateCart(w http.ResponseWriter, r *http.Request) {
	var req calculateCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	totals, err := h.Service.CalculateCart(ctx, req.Items, req.DeliveryMethod)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
