package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/freshfold/laundry-orders/internal/orders"
	"github.com/freshfold/laundry-orders/internal/redisx"
)

type OrdersHandler struct {
	Svc   *orders.Service
	Redis *redis.Client
	Log   *slog.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/flash", h.createFlashOrder)
	r.Post("/orders/{id}/complete", h.completeFlashOrder)
	r.Patch("/orders/{id}", h.patchOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Get("/orders/{id}", h.getOrder)
	r.Delete("/orders/{id}", h.deleteOrder)
}

// callerFrom trusts the identity headers set by the auth gateway; the
// service never sees credentials.
func callerFrom(r *http.Request) orders.Caller {
	return orders.Caller{
		ID:   r.Header.Get("X-User-Id"),
		Role: orders.Role(r.Header.Get("X-User-Role")),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps error kinds to HTTP codes. Store/driver detail stays out
// of the response body.
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, orders.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, orders.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, orders.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrInvalidAffiliateCode):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrInvalidState),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrConcurrentModification):
		code = http.StatusConflict
	case errors.Is(err, orders.ErrPersistence):
		msg = "persistence failure"
	}
	writeJSON(w, code, map[string]string{"error": msg, "kind": orders.Kind(err)})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, fmt.Errorf("%w: invalid json", orders.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.CreateOrder(ctx, callerFrom(r), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheOrder(ctx, res.Order)
	writeJSON(w, http.StatusCreated, res)
}

type flashOrderReq struct {
	AddressID     string `json:"address_id"`
	AffiliateCode string `json:"affiliate_code,omitempty"`
	Note          string `json:"note,omitempty"`
}

func (h *OrdersHandler) createFlashOrder(w http.ResponseWriter, r *http.Request) {
	var req flashOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: invalid json", orders.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.CreateFlashOrder(ctx, callerFrom(r), req.AddressID, req.AffiliateCode, req.Note)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) completeFlashOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CompleteFlashInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, fmt.Errorf("%w: invalid json", orders.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.CompleteFlashOrder(ctx, callerFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) patchOrder(w http.ResponseWriter, r *http.Request) {
	var p orders.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, fmt.Errorf("%w: invalid json", orders.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.PatchOrderFields(ctx, callerFrom(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("%w: invalid json", orders.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, callerFrom(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	caller := callerFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first; only the owner short-circuits here, staff reads stay
	// authorized by the service path below
	key := fmt.Sprintf(redisx.KeyOrder, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		var o orders.Order
		if json.Unmarshal([]byte(s), &o) == nil && o.UserID == caller.ID {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Svc.GetOrder(ctx, caller, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.DeleteOrder(ctx, callerFrom(r), orderID); err != nil {
		writeErr(w, err)
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrder, orderID)).Err()
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrder, o.ID)
	if err := h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err(); err != nil {
		h.Log.Warn("order cache write failed", "order_id", o.ID, "err", err)
	}
}
