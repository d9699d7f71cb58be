// Package httptransport exposes the storefront core over HTTP. Session
// issuance is external; the authenticated user arrives as the X-User-ID
// header set by the edge.
package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	cartapp "github.com/greengrove/plantshop/internal/application/cart"
	"github.com/greengrove/plantshop/internal/application/checkout"
	orderapp "github.com/greengrove/plantshop/internal/application/order"
	domcart "github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	domorder "github.com/greengrove/plantshop/internal/domain/order"
	"github.com/greengrove/plantshop/internal/infrastructure/vnpay"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const userHeader = "X-User-ID"

type Handler struct {
	checkout *checkout.Service
	orders   *orderapp.Service
	carts    *cartapp.Service
	ipn      *vnpay.IPN
}

func NewHandler(checkoutSvc *checkout.Service, orderSvc *orderapp.Service, cartSvc *cartapp.Service, ipn *vnpay.IPN) *Handler {
	return &Handler{
		checkout: checkoutSvc,
		orders:   orderSvc,
		carts:    cartSvc,
		ipn:      ipn,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout", h.handleCheckout)
	r.Get("/orders/{id}", h.handleOrderStatus)
	r.Get("/payment/vnpay/ipn", h.handleIPN)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.handleGetCart)
		r.Post("/", h.handleAddToCart)
		r.Put("/{productID}", h.handleUpdateCartLine)
		r.Delete("/{productID}", h.handleRemoveCartLine)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

type shippingAddress struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

type checkoutRequest struct {
	ShippingAddress shippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Notes           string          `json:"notes,omitempty"`
}

type orderLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type orderResponse struct {
	OrderID     string              `json:"order_id"`
	Status      string              `json:"status"`
	TotalAmount int64               `json:"total_amount"`
	Lines       []orderLineResponse `json:"lines"`
	PaymentURL  string              `json:"payment_url,omitempty"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	result, err := h.checkout.PlaceOrder(r.Context(), checkout.PlaceOrderInput{
		UserID: userID,
		Address: checkout.ShippingAddress{
			FullName:    req.ShippingAddress.FullName,
			Phone:       req.ShippingAddress.Phone,
			AddressLine: req.ShippingAddress.AddressLine,
			City:        req.ShippingAddress.City,
			Country:     req.ShippingAddress.Country,
		},
		PaymentMethod: domorder.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
		ClientIP:      clientIP(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := orderResponse{
		OrderID:     result.Order.ID,
		Status:      string(result.Order.Status),
		TotalAmount: result.Order.TotalAmount,
		Lines:       make([]orderLineResponse, 0, len(result.Order.Lines)),
		PaymentURL:  result.PaymentURL,
	}
	for _, line := range result.Order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

type orderStatusResponse struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	LastUpdate string `json:"last_update"`
}

func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	o, err := h.orders.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, orderStatusResponse{
		OrderID:    o.ID,
		Status:     string(o.Status),
		LastUpdate: o.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// handleIPN is the provider callback. The transport status is always 200;
// the outcome travels in the body so the gateway never interprets a
// rejection as an undelivered notification.
func (h *Handler) handleIPN(w http.ResponseWriter, r *http.Request) {
	resp := h.ipn.Handle(r.Context(), r.URL.Query())
	writeJSON(w, http.StatusOK, resp)
}

type cartLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartLineResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

type cartResponse struct {
	Lines       []cartLineResponse `json:"lines"`
	TotalAmount int64              `json:"total_amount"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	view, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := cartResponse{
		Lines:       make([]cartLineResponse, 0, len(view.Lines)),
		TotalAmount: view.TotalAmount,
	}
	for _, l := range view.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	var req cartLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := h.carts.Add(r.Context(), userID, req.ProductID, req.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateCartLine(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := h.carts.Update(r.Context(), userID, chi.URLParam(r, "productID"), req.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveCartLine(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	if err := h.carts.Remove(r.Context(), userID, chi.URLParam(r, "productID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Product string `json:"product_id,omitempty"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *checkout.InsufficientStockError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, "empty_cart", "cart is empty")
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    "insufficient_stock",
			Message: stockErr.Error(),
			Product: stockErr.ProductID,
		})
	case errors.Is(err, checkout.ErrUnknownPaymentMethod):
		writeError(w, http.StatusBadRequest, "unknown_payment_method", err.Error())
	case errors.Is(err, domorder.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, domcart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "cart_line_not_found", "cart line not found")
	case errors.Is(err, domcart.ErrInvalidQuantity), errors.Is(err, catalog.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be greater than zero")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response_encode_failed", zap.Error(err))
	}
}
