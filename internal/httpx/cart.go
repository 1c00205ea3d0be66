package httpx

import (
	"net/http"

	"github.com/safar/go-sql-shop/internal/store"
)

type cartItemRequest struct {
	VariantID int64 `json:"variant_id"`
	Qty       int   `json:"qty"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := store.GetCart(r.Context(), h.DB, identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *Handler) countCart(w http.ResponseWriter, r *http.Request) {
	distinct, qty, err := store.CountCart(r.Context(), h.DB, identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]int{"distinct_items": distinct, "total_qty": qty})
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.VariantID <= 0 {
		respondFail(w, http.StatusBadRequest, "variant_id is required")
		return
	}

	cart, err := store.AddCartItem(r.Context(), h.DB, identity(r).UserID, req.VariantID, req.Qty)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, cart)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid cart item id")
		return
	}

	var req struct {
		Qty int `json:"qty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	cart, err := store.UpdateCartItem(r.Context(), h.DB, identity(r).UserID, itemID, req.Qty)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid cart item id")
		return
	}

	cart, err := store.RemoveCartItem(r.Context(), h.DB, identity(r).UserID, itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := store.ClearCart(r.Context(), h.DB, identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}
