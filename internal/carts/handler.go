package carts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/joao-fontenele/marketplace-orderflow/internal/domain"
)

type Store interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, item domain.CartItem) error
	RemoveItems(ctx context.Context, userID string, keys []domain.ItemKey) error
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	cart, err := h.store.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "cart not found")
			return
		}
		h.logger.Error("failed to get cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var item domain.CartItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := uuid.Parse(item.ProductID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if _, err := uuid.Parse(item.SellerID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}
	if item.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	if err := h.store.AddItem(r.Context(), userID, item); err != nil {
		h.logger.Error("failed to add cart item", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "user_id", userID, "product_id", item.ProductID, "seller_id", item.SellerID)
	h.writeCart(w, r, userID)
}

type removeItemsRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		SellerID  string `json:"seller_id"`
	} `json:"items"`
}

func (h *Handler) HandleRemoveItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req removeItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	keys := make([]domain.ItemKey, 0, len(req.Items))
	for _, it := range req.Items {
		keys = append(keys, domain.ItemKey{ProductID: it.ProductID, SellerID: it.SellerID})
	}

	if err := h.store.RemoveItems(r.Context(), userID, keys); err != nil {
		h.logger.Error("failed to remove cart items", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.PathValue("userId")
	if _, err := uuid.Parse(userID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user id")
		return "", false
	}
	return userID, true
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, userID string) {
	cart, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get updated cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, cart)
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
