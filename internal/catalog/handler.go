package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

type Handler struct {
	repo   *Repository
	logger *slog.Logger
}

func NewHandler(repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if _, err := uuid.Parse(productID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.repo.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to get product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product retrieved", "product_id", productID)
	h.writeJSON(w, http.StatusOK, product)
}

type stockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	productID, sellerID, req, ok := h.decodeStockRequest(w, r)
	if !ok {
		return
	}

	if err := h.repo.Reserve(r.Context(), productID, sellerID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			h.writeError(w, http.StatusConflict, "insufficient stock")
		case errors.Is(err, domain.ErrSellerMismatch):
			h.writeError(w, http.StatusNotFound, "seller does not offer product")
		default:
			h.logger.Error("failed to reserve stock", "error", err, "product_id", productID, "seller_id", sellerID, "quantity", req.Quantity)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("stock reserved", "product_id", productID, "seller_id", sellerID, "quantity", req.Quantity)
	h.writeProduct(w, r, productID)
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	productID, sellerID, req, ok := h.decodeStockRequest(w, r)
	if !ok {
		return
	}

	if err := h.repo.Release(r.Context(), productID, sellerID, req.Quantity); err != nil {
		if errors.Is(err, domain.ErrSellerMismatch) {
			h.writeError(w, http.StatusNotFound, "seller does not offer product")
			return
		}
		h.logger.Error("failed to release stock", "error", err, "product_id", productID, "seller_id", sellerID, "quantity", req.Quantity)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock released", "product_id", productID, "seller_id", sellerID, "quantity", req.Quantity)
	h.writeProduct(w, r, productID)
}

func (h *Handler) decodeStockRequest(w http.ResponseWriter, r *http.Request) (string, string, stockRequest, bool) {
	var req stockRequest

	productID := r.PathValue("productId")
	sellerID := r.PathValue("sellerId")
	if _, err := uuid.Parse(productID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return "", "", req, false
	}
	if _, err := uuid.Parse(sellerID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid seller id")
		return "", "", req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return "", "", req, false
	}
	if req.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return "", "", req, false
	}

	return productID, sellerID, req, true
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeProduct(w http.ResponseWriter, r *http.Request, productID string) {
	product, err := h.repo.GetProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get updated product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
