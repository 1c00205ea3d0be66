// Package orders runs the order lifecycle on top of the store. Every
// committed transition is followed by exactly one notification dispatch and
// a versioned status cache write; neither can undo the transition, and a
// stale cache write loses to a newer one.
package orders

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/safar/go-sql-shop/internal/cache"
	"github.com/safar/go-sql-shop/internal/metrics"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/notify"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) (*notify.Outcome, error)
}

type StatusCache interface {
	Set(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, orderID int64) (entry cache.StatusEntry, ok bool, err error)
	Delete(ctx context.Context, orderID int64) error
}

type Config struct {
	CancelWindow   time.Duration
	NumberAttempts int
	NotifyTimeout  time.Duration
}

type Service struct {
	db       *sql.DB
	notifier Notifier
	cache    StatusCache
	cfg      Config
	log      logrus.FieldLogger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewService wires the lifecycle. A nil cache disables status caching.
func NewService(db *sql.DB, notifier Notifier, statusCache StatusCache, cfg Config, log logrus.FieldLogger) *Service {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if statusCache == nil {
		statusCache = (*cache.StatusCache)(nil)
	}
	return &Service{
		db:       db,
		notifier: notifier,
		cache:    statusCache,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Wait blocks until every in-flight dispatch has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Checkout(ctx context.Context, userID int64, shipping store.ShippingInfo) (*models.Order, error) {
	order, err := store.CreateOrderFromCart(ctx, s.db, store.CheckoutRequest{
		UserID:       userID,
		Shipping:     shipping,
		CancelWindow: s.cfg.CancelWindow,
		MaxAttempts:  s.cfg.NumberAttempts,
	})
	metrics.RecordOrderOperation("checkout", err)
	if err != nil {
		return nil, err
	}

	s.committed(ctx, "checkout", order)
	return order, nil
}

func (s *Service) UpdateShipping(ctx context.Context, userID, orderID int64, patch store.ShippingPatch) (*models.Order, error) {
	order, err := store.UpdateShipping(ctx, s.db, userID, orderID, patch, s.now())
	metrics.RecordOrderOperation("update_shipping", err)
	return order, err
}

func (s *Service) CancelByUser(ctx context.Context, userID, orderID int64, reason string) (*models.Order, error) {
	order, err := store.CancelOrderByUser(ctx, s.db, userID, orderID, reason, s.now())
	metrics.RecordOrderOperation("user_cancel", err)
	if err != nil {
		return nil, err
	}

	metrics.RecordStockMovement("user_cancel", totalQty(order.Items))
	s.committed(ctx, "user_cancel", order)
	return order, nil
}

func (s *Service) Transition(ctx context.Context, orderID int64, target models.OrderStatus, reason string) (*models.Order, error) {
	result, err := store.TransitionOrder(ctx, s.db, orderID, target, reason)
	metrics.RecordOrderOperation("transition_"+string(target), err)
	if err != nil {
		return nil, err
	}

	if result.Effect != models.StockEffectNone {
		metrics.RecordStockMovement(result.Effect.String(), totalQty(result.Order.Items))
	}

	s.log.WithFields(logrus.Fields{
		"order_id": result.Order.ID,
		"from":     result.From,
		"to":       result.Order.Status,
		"stock":    result.Effect.String(),
	}).Info("Order status changed")

	s.committed(ctx, "transition", result.Order)
	return result.Order, nil
}

func (s *Service) Delete(ctx context.Context, orderID int64) error {
	err := store.DeleteOrder(ctx, s.db, orderID)
	metrics.RecordOrderOperation("delete", err)
	if err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, orderID); err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Warn("Failed to evict cached order status")
	}
	return nil
}

// Status answers from the cache when possible and falls back to the
// database. Orders of other users read as not found either way.
func (s *Service) Status(ctx context.Context, userID, orderID int64) (models.OrderStatus, error) {
	entry, ok, err := s.cache.Get(ctx, orderID)
	if err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Warn("Order status cache read failed")
	}
	if ok && entry.UserID == userID {
		return entry.Status, nil
	}

	current, err := store.GetOrderStatus(ctx, s.db, userID, orderID)
	if err != nil {
		return "", err
	}

	s.refreshCache(ctx, current)
	return current.Status, nil
}

// committed runs the post-commit side effects of a transition.
func (s *Service) committed(ctx context.Context, op string, order *models.Order) {
	s.refreshCache(ctx, order)
	s.dispatch(ctx, op, order)
}

func (s *Service) refreshCache(ctx context.Context, order *models.Order) {
	if err := s.cache.Set(ctx, order); err != nil {
		s.log.WithError(err).WithField("order_id", order.ID).Warn("Failed to cache order status")
	}
}

// dispatch sends exactly one notification for the committed transition in
// the background. The context is detached from the request so a client
// disconnect does not abort delivery, and bounded by NotifyTimeout.
func (s *Service) dispatch(ctx context.Context, op string, order *models.Order) {
	if s.notifier == nil {
		return
	}

	msg := notify.OrderStatusMessage(order)
	log := s.log.WithFields(logrus.Fields{
		"op":       op,
		"order_id": order.ID,
		"user_id":  order.UserID,
		"status":   order.Status,
	})

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		outcome, err := s.notifier.Notify(dctx, msg)
		if err != nil {
			log.WithError(err).Error("Notification dispatch failed")
			return
		}

		for channel, cerr := range outcome.Failed {
			log.WithError(cerr).WithField("channel", channel).Warn("Notification channel failed")
		}
		log.WithFields(logrus.Fields{
			"notification_id": outcome.NotificationID,
			"pushed":          outcome.Pushed(),
		}).Debug("Notification dispatched")
	}()
}

func totalQty(items []models.OrderItem) int {
	n := 0
	for _, item := range items {
		n += item.Qty
	}
	return n
}
