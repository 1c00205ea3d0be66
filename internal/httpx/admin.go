package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
)

// parseRange reads optional RFC 3339 or YYYY-MM-DD "from" and "to" query
// parameters. A bare "to" date covers the whole day.
func parseRange(r *http.Request) (from, to *time.Time, ok bool) {
	parse := func(key string, endOfDay bool) (*time.Time, bool) {
		v := r.URL.Query().Get(key)
		if v == "" {
			return nil, true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t, true
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, false
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, true
	}

	if from, ok = parse("from", false); !ok {
		return nil, nil, false
	}
	if to, ok = parse("to", true); !ok {
		return nil, nil, false
	}
	return from, to, true
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(r)
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid date range")
		return
	}

	filter := store.OrderFilter{
		Status: models.OrderStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Search: r.URL.Query().Get("search"),
		From:   from,
		To:     to,
	}

	page, pageSize := pageParams(r)
	result, err := store.ListOrders(r.Context(), h.DB, filter, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

func (h *Handler) adminOrderStats(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(r)
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid date range")
		return
	}

	stats, err := store.GetOrderStats(r.Context(), h.DB, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, stats)
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := store.GetOrder(r.Context(), h.DB, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, order)
}

func (h *Handler) adminTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	target, valid := models.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !valid {
		respondFail(w, http.StatusBadRequest, "invalid order status")
		return
	}

	order, err := h.Orders.Transition(r.Context(), id, target, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, order)
}

func (h *Handler) adminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.Orders.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, nil)
}

func (h *Handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	result, err := store.ListUsers(r.Context(), h.DB, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

func (h *Handler) adminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		respondFail(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	role := models.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	switch role {
	case "", models.RoleUser, models.RoleAdmin:
	default:
		respondFail(w, http.StatusBadRequest, "role must be USER or ADMIN")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, email, strings.TrimSpace(req.Name), role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, user)
}

func (h *Handler) adminGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, user)
}
