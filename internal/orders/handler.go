package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
	"github.com/joao-fontenele/marketplace-orderflow/internal/payment"
)

// Error codes returned alongside the message in every error body.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeNotFound           = "not_found"
	CodeSellerMismatch     = "seller_mismatch"
	CodeInsufficientStock  = "insufficient_stock"
	CodePaymentFailed      = "payment_failed"
	CodeInvalidState       = "invalid_state"
	CodeRefundFailed       = "refund_failed"
	CodeStockUpdateFailed  = "stock_update_failed"
	CodeStockRestoreFailed = "stock_restore_failed"
	CodeInternal           = "internal_error"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type createOrderRequest struct {
	UserID         string                `json:"user_id"`
	Items          []domain.LineItem     `json:"items"`
	ShippingInfo   domain.ShippingInfo   `json:"shipping_info"`
	DeliveryMethod string                `json:"delivery_method"`
	PaymentMethod  domain.PaymentMethod  `json:"payment_method"`
	Subtotal       decimal.Decimal       `json:"subtotal"`
	Shipping       decimal.Decimal       `json:"shipping"`
	Tax            decimal.Decimal       `json:"tax"`
	Total          decimal.Decimal       `json:"total"`
	Payment        *payment.Confirmation `json:"payment_result,omitempty"`
}

type createOrderResponse struct {
	Order            *domain.Order `json:"order"`
	PaymentReference string        `json:"payment_reference,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}

	result, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		BuyerID:        req.UserID,
		Items:          req.Items,
		ShippingInfo:   req.ShippingInfo,
		DeliveryMethod: req.DeliveryMethod,
		PaymentMethod:  req.PaymentMethod,
		Subtotal:       req.Subtotal,
		ShippingCost:   req.Shipping,
		Tax:            req.Tax,
		Total:          req.Total,
		Payment:        req.Payment,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, createOrderResponse{
		Order:            result.Order,
		PaymentReference: result.PaymentReference,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get order")
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete order")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted"})
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateSuborderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	suborderID := r.PathValue("suborderId")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}

	order, err := h.service.UpdateSuborderStatus(r.Context(), orderID, suborderID, req.Status)
	if err != nil {
		h.writeServiceError(w, err, "failed to update suborder status")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	orders, err := h.service.ListUserOrders(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list user orders")
		return
	}

	h.logger.Info("user orders listed", "user_id", userID, "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleSellerSuborders(w http.ResponseWriter, r *http.Request) {
	sellerID := r.PathValue("sellerId")

	views, err := h.service.SellerSuborders(r.Context(), sellerID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list seller suborders")
		return
	}

	h.logger.Info("seller suborders listed", "seller_id", sellerID, "count", len(views))
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleSellerStats(w http.ResponseWriter, r *http.Request) {
	sellerID := r.PathValue("sellerId")

	stats, err := h.service.SellerStats(r.Context(), sellerID)
	if err != nil {
		h.writeServiceError(w, err, "failed to compute seller stats")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps an error class to a status code. Client errors
// carry the error text; server errors get a fixed message and are logged.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	// A reservation lost to a concurrent order is reported as a stock
	// shortage, not as a server failure.
	case errors.Is(err, domain.ErrInsufficientStock):
		h.writeError(w, http.StatusBadRequest, CodeInsufficientStock, err.Error())
		return
	case errors.Is(err, domain.ErrStockUpdate):
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeStockUpdateFailed, "failed to update product stock")
		return
	case errors.Is(err, domain.ErrStockRestore):
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeStockRestoreFailed, "failed to restore product stock")
		return
	case errors.Is(err, domain.ErrRefund):
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeRefundFailed, "failed to process refund")
		return
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrSellerMismatch):
		h.writeError(w, http.StatusBadRequest, CodeSellerMismatch, err.Error())
		return
	case errors.Is(err, domain.ErrPayment):
		h.writeError(w, http.StatusBadRequest, CodePaymentFailed, err.Error())
		return
	case errors.Is(err, domain.ErrInvalidState):
		h.writeError(w, http.StatusBadRequest, CodeInvalidState, err.Error())
		return
	}

	h.logger.Error(logMsg, "error", err)
	h.writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: code})
}
