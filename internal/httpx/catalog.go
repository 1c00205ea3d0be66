package httpx

import (
	"net/http"
	"strings"

	"github.com/safar/go-sql-shop/internal/metrics"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/sirupsen/logrus"
)

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, product)
}

// listVariants is public and only shows active variants unless the caller
// asks otherwise with ?active=false or ?active=all.
func (h *Handler) listVariants(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var active *bool
	switch r.URL.Query().Get("active") {
	case "all":
	case "false":
		v := false
		active = &v
	default:
		v := true
		active = &v
	}

	page, pageSize := pageParams(r)
	result, err := store.ListVariants(r.Context(), h.DB, id, page, pageSize, active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

func (h *Handler) adminListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	result, err := store.ListProducts(r.Context(), h.DB, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

func (h *Handler) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Slug     string `json:"slug"`
		IsActive *bool  `json:"is_active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Slug) == "" {
		respondFail(w, http.StatusBadRequest, "name and slug are required")
		return
	}

	active := req.IsActive == nil || *req.IsActive
	product, err := store.CreateProduct(r.Context(), h.DB, strings.TrimSpace(req.Name), strings.TrimSpace(req.Slug), active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, product)
}

func (h *Handler) adminSetProductActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		respondFail(w, http.StatusBadRequest, "is_active is required")
		return
	}

	if err := store.SetProductActive(r.Context(), h.DB, id, *req.IsActive); err != nil {
		h.writeError(w, r, err)
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, product)
}

type variantRequest struct {
	SizeML        *int    `json:"size_ml"`
	Concentration *string `json:"concentration"`
	SKU           *string `json:"sku"`
	PriceCents    *int64  `json:"price_cents"`
	StockQty      *int    `json:"stock_qty"`
	IsActive      *bool   `json:"is_active"`
}

func (h *Handler) adminCreateVariant(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req variantRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.PriceCents == nil {
		respondFail(w, http.StatusBadRequest, "price_cents is required")
		return
	}

	in := store.VariantInput{
		SizeML:        req.SizeML,
		Concentration: trimmed(req.Concentration),
		SKU:           trimmed(req.SKU),
		PriceCents:    *req.PriceCents,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if req.StockQty != nil {
		in.StockQty = *req.StockQty
	}

	variant, err := store.CreateVariant(r.Context(), h.DB, productID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, variant)
}

func (h *Handler) adminUpdateVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid variant id")
		return
	}

	var req variantRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.StockQty != nil {
		respondFail(w, http.StatusBadRequest, "stock_qty cannot be set directly, use adjust-stock")
		return
	}

	variant, err := store.UpdateVariant(r.Context(), h.DB, id, store.VariantPatch{
		SizeML:        req.SizeML,
		Concentration: trimmed(req.Concentration),
		SKU:           trimmed(req.SKU),
		PriceCents:    req.PriceCents,
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, variant)
}

func (h *Handler) adminDeleteVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid variant id")
		return
	}

	if err := store.DeleteVariant(r.Context(), h.DB, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, nil)
}

func (h *Handler) adminAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondFail(w, http.StatusBadRequest, "invalid variant id")
		return
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	variant, err := store.AdjustStock(r.Context(), h.DB, id, req.Delta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	units := req.Delta
	if units < 0 {
		units = -units
	}
	metrics.RecordStockMovement("adjust", units)
	h.requestLog(r).WithFields(logrus.Fields{
		"variant_id": id,
		"delta":      req.Delta,
		"stock_qty":  variant.StockQty,
	}).Info("Stock adjusted")

	respondSuccess(w, http.StatusOK, variant)
}
