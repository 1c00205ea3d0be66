// Package httpx exposes the shop over HTTP. Handlers are thin: they decode
// the request, call the store or the order service and render the result in
// the {"status": ..., "data": ...} envelope.
package httpx

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/metrics"
	"github.com/safar/go-sql-shop/internal/notify"
	"github.com/safar/go-sql-shop/internal/orders"
	"github.com/sirupsen/logrus"
)

// NotificationSender delivers notifications authored by an admin.
type NotificationSender interface {
	Notify(ctx context.Context, msg notify.Message) (*notify.Outcome, error)
	Broadcast(ctx context.Context, msg notify.Message) (*notify.BroadcastOutcome, error)
}

type Handler struct {
	DB        *sql.DB
	Orders    *orders.Service
	Notifier  NotificationSender
	JWTSecret string
	Log       logrus.FieldLogger
}

func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(h.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/products/{id}", h.getProduct)
		r.Get("/products/{id}/variants", h.listVariants)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Delete("/", h.clearCart)
				r.Get("/count", h.countCart)
				r.Post("/items", h.addCartItem)
				r.Patch("/items/{id}", h.updateCartItem)
				r.Delete("/items/{id}", h.removeCartItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.checkout)
				r.Get("/", h.listMyOrders)
				r.Get("/{id}", h.getMyOrder)
				r.Put("/{id}", h.updateShipping)
				r.Post("/{id}/cancel", h.cancelMyOrder)
				r.Get("/{id}/status", h.orderStatus)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.listNotifications)
				r.Get("/stats", h.notificationStats)
				r.Patch("/read", h.markNotificationsRead)
				r.Patch("/read-all", h.markAllRead)
				r.Post("/devices", h.registerDevice)
				r.Delete("/devices/{token}", h.unregisterDevice)
				r.Get("/{id}", h.getNotification)
				r.Delete("/{id}", h.deleteNotification)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/orders", h.adminListOrders)
				r.Get("/orders/stats", h.adminOrderStats)
				r.Get("/orders/{id}", h.adminGetOrder)
				r.Patch("/orders/{id}/status", h.adminTransition)
				r.Delete("/orders/{id}", h.adminDeleteOrder)

				r.Get("/users", h.adminListUsers)
				r.Post("/users", h.adminCreateUser)
				r.Get("/users/{id}", h.adminGetUser)

				r.Get("/products", h.adminListProducts)
				r.Post("/products", h.adminCreateProduct)
				r.Patch("/products/{id}", h.adminSetProductActive)
				r.Post("/products/{id}/variants", h.adminCreateVariant)
				r.Patch("/variants/{id}", h.adminUpdateVariant)
				r.Delete("/variants/{id}", h.adminDeleteVariant)
				r.Post("/variants/{id}/adjust-stock", h.adminAdjustStock)

				r.Get("/notifications", h.adminListCampaigns)
				r.Post("/notifications", h.adminSendNotification)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := database.Ping(ctx, h.DB); err != nil {
		h.requestLog(r).WithError(err).Warn("Health check failed")
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"database": "ok"})
}
