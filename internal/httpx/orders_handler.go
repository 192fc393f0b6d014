package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Service is the order lifecycle as the HTTP layer sees it.
type Service interface {
	CreateOrder(ctx context.Context, p auth.Principal, req lifecycle.CheckoutRequest) (orders.Order, error)
	Checkout(ctx context.Context, p auth.Principal, req lifecycle.CheckoutRequest) (lifecycle.CheckoutResult, error)
	ConfirmPayment(ctx context.Context, token string) (lifecycle.PaymentResult, error)
	Cancel(ctx context.Context, p auth.Principal, orderID int64, reason string) (lifecycle.CancelResult, error)
	UpdateStatus(ctx context.Context, p auth.Principal, orderID int64, status orders.Status, notes *string) (orders.Order, error)
	Refund(ctx context.Context, p auth.Principal, orderID, amount int64) (lifecycle.RefundResult, error)
	GetOrder(ctx context.Context, p auth.Principal, id int64) (lifecycle.OrderView, error)
	PaymentStatus(ctx context.Context, p auth.Principal, id int64) (lifecycle.PaymentView, error)
	OrderStatus(ctx context.Context, p auth.Principal, id int64) (redisx.StatusEntry, error)
	ListOrders(ctx context.Context, p auth.Principal, f orders.ListFilter) (orders.Page, error)
	ListAll(ctx context.Context, p auth.Principal, f orders.ListFilter) (orders.Page, error)
	Stats(ctx context.Context, p auth.Principal, period string) (orders.Stats, error)
}

type OrdersHandler struct {
	Svc Service
	Log *zap.Logger
}

const (
	readTimeout    = 5 * time.Second
	gatewayTimeout = 20 * time.Second
)

// Register mounts the order and payment routes. authn guards everything
// except the gateway callback.
func (h *OrdersHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	h.Log = logging.OrNop(h.Log)

	r.Post("/payments/confirm", h.confirmPayment)
	r.Get("/payments/confirm", h.confirmPayment)

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.orderStatus)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Post("/payments/init", h.checkout)
		r.Get("/payments/status/{orderId}", h.paymentStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(h.Log))
			r.Get("/orders", h.listAll)
			r.Get("/orders/stats", h.stats)
			r.Patch("/orders/{id}/status", h.updateStatus)
			r.Post("/payments/{orderId}/refund", h.refund)
		})
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return orders.NewValidationError("invalid json")
	}
	return nil
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return orders.NewValidationError("invalid json")
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, orders.NewValidationError("invalid id", name)
	}
	return id, nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	o, err := h.Svc.CreateOrder(ctx, principal(r), req)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), gatewayTimeout)
	defer cancel()

	res, err := h.Svc.Checkout(ctx, principal(r), req)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// confirmPayment is where the gateway sends the buyer back. The token
// arrives as token_ws in the query, a form post or a JSON body.
func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	token := callbackToken(r)
	ctx, cancel := context.WithTimeout(r.Context(), gatewayTimeout)
	defer cancel()

	res, err := h.Svc.ConfirmPayment(ctx, token)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func callbackToken(r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			TokenWS string `json:"token_ws"`
			Token   string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			if body.TokenWS != "" {
				return body.TokenWS
			}
			return body.Token
		}
		return r.URL.Query().Get("token_ws")
	}
	if err := r.ParseForm(); err != nil {
		return r.URL.Query().Get("token_ws")
	}
	return r.Form.Get("token_ws")
}

func listFilter(r *http.Request) orders.ListFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return orders.ListFilter{
		Status:        orders.Status(q.Get("status")),
		PaymentStatus: orders.PaymentStatus(q.Get("paymentStatus")),
		Search:        strings.TrimSpace(q.Get("search")),
		Page:          page,
		Limit:         limit,
	}
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	pg, err := h.Svc.ListOrders(ctx, principal(r), listFilter(r))
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, pg)
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	f := listFilter(r)
	if uid := r.URL.Query().Get("userId"); uid != "" {
		f.UserID, _ = strconv.ParseInt(uid, 10, 64)
	}
	pg, err := h.Svc.ListAll(ctx, principal(r), f)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, pg)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	v, err := h.Svc.GetOrder(ctx, principal(r), id)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	e, err := h.Svc.OrderStatus(ctx, principal(r), id)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *OrdersHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "orderId")
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), gatewayTimeout)
	defer cancel()

	v, err := h.Svc.PaymentStatus(ctx, principal(r), id)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	var req cancelReq
	if err := decodeOptional(r, &req); err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), gatewayTimeout)
	defer cancel()

	res, err := h.Svc.Cancel(ctx, principal(r), id, req.Reason)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statusReq struct {
	Status orders.Status `json:"status"`
	Notes  *string       `json:"notes"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	var req statusReq
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, principal(r), id, req.Status, req.Notes)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type refundReq struct {
	Amount int64 `json:"amount"`
}

func (h *OrdersHandler) refund(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "orderId")
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	var req refundReq
	if err := decodeOptional(r, &req); err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), gatewayTimeout)
	defer cancel()

	res, err := h.Svc.Refund(ctx, principal(r), id, req.Amount)
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	s, err := h.Svc.Stats(ctx, principal(r), r.URL.Query().Get("period"))
	if err != nil {
		writeError(r.Context(), w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
