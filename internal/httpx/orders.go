package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-sql-shop/internal/store"
)

type checkoutRequest struct {
	ShippingName    string `json:"shipping_name"`
	ShippingPhone   string `json:"shipping_phone"`
	ShippingAddress string `json:"shipping_address"`
}

func (req checkoutRequest) missing() []string {
	var out []string
	if strings.TrimSpace(req.ShippingName) == "" {
		out = append(out, "shipping_name")
	}
	if strings.TrimSpace(req.ShippingPhone) == "" {
		out = append(out, "shipping_phone")
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		out = append(out, "shipping_address")
	}
	return out
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if missing := req.missing(); len(missing) > 0 {
		respondFail(w, http.StatusBadRequest, "missing fields: "+strings.Join(missing, ", "))
		return
	}

	order, err := h.Orders.Checkout(r.Context(), identity(r).UserID, store.ShippingInfo{
		Name:    strings.TrimSpace(req.ShippingName),
		Phone:   strings.TrimSpace(req.ShippingPhone),
		Address: strings.TrimSpace(req.ShippingAddress),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, order)
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondFail(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	page, err := store.ListOrdersCursor(r.Context(), h.DB, identity(r).UserID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, page)
}

func (h *Handler) getMyOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := store.GetUserOrder(r.Context(), h.DB, identity(r).UserID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, order)
}

func (h *Handler) updateShipping(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		ShippingName    *string `json:"shipping_name"`
		ShippingPhone   *string `json:"shipping_phone"`
		ShippingAddress *string `json:"shipping_address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.Orders.UpdateShipping(r.Context(), identity(r).UserID, orderID, store.ShippingPatch{
		Name:    trimmed(req.ShippingName),
		Phone:   trimmed(req.ShippingPhone),
		Address: trimmed(req.ShippingAddress),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, order)
}

func (h *Handler) cancelMyOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.Orders.CancelByUser(r.Context(), identity(r).UserID, orderID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, order)
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	status, err := h.Orders.Status(r.Context(), identity(r).UserID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]any{"order_id": orderID, "status": status})
}

// trimmed drops blank values so they leave the stored field untouched.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
