package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shoplite/catalog-orders/internal/orders"
	"github.com/shoplite/catalog-orders/internal/redisx"
)

type OrderStore interface {
	Create(ctx context.Context, in orders.CreateOrderInput, producer, traceID string) (*orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
	Get(ctx context.Context, id int64) (*orders.Order, error)
	Update(ctx context.Context, id int64, in orders.UpdateOrderInput) (*orders.Order, error)
	UpdateStatus(ctx context.Context, id int64, to orders.Status) (*orders.Order, error)
	Delete(ctx context.Context, id int64) error
}

// Cache is a read-through cache for single-order GETs; redisx.Cache
// implements it. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type OrdersHandler struct {
	Store   OrderStore
	Cache   Cache
	Service string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/order", h.create)
	r.Get("/order", h.list)
	r.Get("/order/{id}", h.get)
	r.Patch("/order/{id}", h.update)
	r.Patch("/order/{id}/status", h.updateStatus)
	r.Delete("/order/{id}", h.remove)
}

type createOrderReq struct {
	ProductID     int64  `json:"productId"`
	Quantity      int    `json:"quantity"`
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
}

func (req createOrderReq) validate() map[string]string {
	fields := map[string]string{}
	if req.ProductID <= 0 {
		fields["productId"] = "must be a positive integer"
	}
	if req.Quantity <= 0 {
		fields["quantity"] = "must be a positive integer"
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		fields["customerName"] = "must not be empty"
	}
	if addr, err := mail.ParseAddress(req.CustomerEmail); err != nil || addr.Address != req.CustomerEmail {
		fields["customerEmail"] = "must be a valid email address"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if fields := req.validate(); fields != nil {
		writeValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.Create(ctx, orders.CreateOrderInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: req.CustomerEmail,
	}, h.Service, middleware.GetReqID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Store.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderCache, id)
	if h.Cache != nil {
		if s, err := h.Cache.Get(ctx, key); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Store.Get(ctx, id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if h.Cache != nil {
		if b, err := json.Marshal(o); err == nil {
			_ = h.Cache.Set(ctx, key, string(b), redisx.TTLOrderCache)
		}
	}
	writeJSON(w, http.StatusOK, o)
}

type updateOrderReq struct {
	ProductID     *int64  `json:"productId"`
	Quantity      *int    `json:"quantity"`
	CustomerName  *string `json:"customerName"`
	CustomerEmail *string `json:"customerEmail"`
}

func (req updateOrderReq) validate() map[string]string {
	fields := map[string]string{}
	if req.ProductID != nil && *req.ProductID <= 0 {
		fields["productId"] = "must be a positive integer"
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		fields["quantity"] = "must be a positive integer"
	}
	if req.CustomerName != nil && strings.TrimSpace(*req.CustomerName) == "" {
		fields["customerName"] = "must not be empty"
	}
	if req.CustomerEmail != nil {
		if addr, err := mail.ParseAddress(*req.CustomerEmail); err != nil || addr.Address != *req.CustomerEmail {
			fields["customerEmail"] = "must be a valid email address"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *OrdersHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req updateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if fields := req.validate(); fields != nil {
		writeValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.Update(ctx, id, orders.UpdateOrderInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.invalidate(ctx, id)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	st := orders.Status(req.Status)
	if !st.Valid() {
		writeValidation(w, map[string]string{"status": "unknown status value"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.UpdateStatus(ctx, id, st)
	if err != nil {
		if errors.Is(err, orders.ErrBadTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.storeError(w, err)
		return
	}
	h.invalidate(ctx, id)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.Delete(ctx, id); err != nil {
		h.storeError(w, err)
		return
	}
	h.invalidate(ctx, id)
	w.WriteHeader(http.StatusOK)
}

func (h *OrdersHandler) invalidate(ctx context.Context, id int64) {
	if h.Cache != nil {
		_ = h.Cache.Del(ctx, fmt.Sprintf(redisx.KeyOrderCache, id))
	}
}

func (h *OrdersHandler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// orderID parses the path id; non-numeric ids read as "no such order".
func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "order not found")
		return 0, false
	}
	return id, true
}
