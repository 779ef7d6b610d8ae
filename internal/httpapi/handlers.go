package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"swarna/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeFailure(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := a.service.ListRates(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rates": rates})
}

func (a *API) handleSetRate(w http.ResponseWriter, r *http.Request) {
	var req domain.RateUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.service.SetRate(r.Context(), chi.URLParam(r, "metal"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"rate":          resp.Rate,
		"repricedCount": resp.RepricedCount,
	})
}

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req domain.PriceQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := a.service.QuotePrice(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "price": quote.Price})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": product})
}

// orderPayload accepts the totals a till may echo back. They are ignored in
// favour of the server computed values.
type orderPayload struct {
	domain.OrderCreateRequest
	OrderID       string `json:"orderId,omitempty"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	Subtotal      *int64 `json:"subtotal,omitempty"`
	GrandTotal    *int64 `json:"grandTotal,omitempty"`
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := a.service.CreateOrder(r.Context(), payload.OrderCreateRequest)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if payload.GrandTotal != nil && *payload.GrandTotal != order.GrandTotal {
		a.logger.Info("client grand total differs from computed total",
			zap.String("order_id", order.OrderID),
			zap.Int64("client", *payload.GrandTotal),
			zap.Int64("computed", order.GrandTotal),
		)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "order": order})
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListOrders(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

// handleCheckReturn never fails the request; a lookup error reads as no
// return on record.
func (a *API) handleCheckReturn(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	exists, err := a.service.ReturnExists(r.Context(), orderID)
	if err != nil {
		a.logger.Warn("return check failed", zap.String("order_id", orderID), zap.Error(err))
		exists = false
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	ret, err := a.service.CreateReturn(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "return": ret})
}

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := a.service.ListReturns(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "returns": returns})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "auditLogs": logs})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.CreateUser(r.Context(), req, RoleStaff)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": user})
}
