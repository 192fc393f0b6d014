package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the JSON error envelope.
type apiError struct {
	Code    string         `json:"error"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Request string         `json:"request_id,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func respond(ctx context.Context, w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	e := apiError{
		Code:    code,
		Message: sanitize(msg, 512),
		Status:  status,
		Request: middleware.GetReqID(ctx),
		Details: details,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		e.TraceID = sc.TraceID().String()
	}
	writeJSON(w, status, e)
}

// writeError maps the domain error taxonomy onto HTTP. Gateway and
// unexpected errors are logged in full and answered generically.
func writeError(ctx context.Context, w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		ve  *orders.ValidationError
		ise *orders.InsufficientStockError
		nf  *orders.NotFoundError
		gw  *orders.GatewayError
		ce  *orders.ConfigurationError
		te  *orders.TransitionError
	)
	switch {
	case errors.As(err, &ve):
		var d map[string]any
		if len(ve.Fields) > 0 {
			d = map[string]any{"fields": ve.Fields}
		}
		respond(ctx, w, http.StatusBadRequest, "validation_error", ve.Message, d)
	case errors.As(err, &ise):
		respond(ctx, w, http.StatusConflict, "insufficient_stock", ise.Error(), map[string]any{
			"productId": ise.ProductID, "productName": ise.ProductName,
			"available": ise.Available, "requested": ise.Requested,
		})
	case errors.As(err, &nf):
		respond(ctx, w, http.StatusNotFound, "not_found", nf.Error(), nil)
	case errors.As(err, &te):
		respond(ctx, w, http.StatusConflict, "invalid_transition", te.Error(), map[string]any{
			"from": te.From, "to": te.To,
		})
	case errors.As(err, &gw):
		log.Error("payment gateway error", zap.String("op", gw.Op), zap.Error(gw.Err))
		respond(ctx, w, http.StatusBadGateway, "gateway_error", "payment provider request failed", nil)
	case errors.As(err, &ce):
		log.Error("configuration error", zap.String("key", ce.Key), zap.String("detail", ce.Message))
		respond(ctx, w, http.StatusInternalServerError, "configuration_error", "payment is not available right now", nil)
	case errors.Is(err, orders.ErrForbidden):
		respond(ctx, w, http.StatusForbidden, "forbidden", "you do not have access to this resource", nil)
	case errors.Is(err, orders.ErrUnauthenticated):
		respond(ctx, w, http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
	case errors.Is(err, context.DeadlineExceeded):
		respond(ctx, w, http.StatusGatewayTimeout, "timeout", "request timed out", nil)
	default:
		log.Error("unhandled error", zap.Error(err))
		respond(ctx, w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
