package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, order_number, status, total_cents, shipping_name, shipping_phone,
	shipping_address, cancel_deadline, cancelled_at, cancelled_reason, cancelled_by_user, created_at, updated_at, version`

const defaultUserCancelReason = "Cancelled by customer"

type ShippingInfo struct {
	Name    string
	Phone   string
	Address string
}

// ShippingPatch carries the shipping fields a user wants to change. Nil
// fields are left as they are.
type ShippingPatch struct {
	Name    *string
	Phone   *string
	Address *string
}

func (p ShippingPatch) empty() bool {
	return p.Name == nil && p.Phone == nil && p.Address == nil
}

type CheckoutRequest struct {
	UserID       int64
	Shipping     ShippingInfo
	CancelWindow time.Duration
	// MaxAttempts bounds how often checkout is rerun after an order number
	// collision or a serialization failure.
	MaxAttempts int
	// OrderNumber generates the number for each attempt. Nil uses
	// generateOrderNumber.
	OrderNumber func(now time.Time) string
}

// TransitionResult describes a committed admin status change.
type TransitionResult struct {
	Order  *models.Order
	From   models.OrderStatus
	Effect models.StockEffect
}

// TransitionError reports a (from, to) pair missing from the transition
// table. It matches both ErrInvalidTransition and ErrWrongStatus.
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == database.ErrInvalidTransition || target == database.ErrWrongStatus
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalCents,
		&order.ShippingName,
		&order.ShippingPhone,
		&order.ShippingAddress,
		&order.CancelDeadline,
		&order.CancelledAt,
		&order.CancelledReason,
		&order.CancelledByUser,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}
	order.Total = models.Amount(order.TotalCents)
	return order, nil
}

// generateOrderNumber yields "ORD-" followed by the last six digits of the
// unix millisecond clock and three random digits. Uniqueness is enforced by
// orders_order_number_key.
func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%06d%03d", now.UnixMilli()%1_000_000, rand.Intn(1000))
}

// CreateOrderFromCart turns the user's cart into a PENDING order. The cart
// read, availability and stock checks, order and line inserts and the cart
// clear run in one transaction; any failure leaves no trace. Stock is checked
// but not decremented.
func CreateOrderFromCart(ctx context.Context, db *sql.DB, req CheckoutRequest) (*models.Order, error) {
	attempts := req.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	opts := database.DefaultTxOptions()
	opts.MaxRetries = attempts - 1

	orderNumber := req.OrderNumber
	if orderNumber == nil {
		orderNumber = generateOrderNumber
	}

	var order *models.Order
	err := database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
		cart, err := LoadCartForCheckout(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		if len(cart.Items) == 0 {
			return database.ErrCartEmpty
		}

		var totalCents int64
		for _, item := range cart.Items {
			if !item.Available() {
				return fmt.Errorf("%w: %s is not available", database.ErrItemUnavailable, item.Product.Name)
			}
			if item.Qty > item.Variant.StockQty {
				return fmt.Errorf("%w: requested %d of %s, %d available",
					database.ErrInsufficientStock, item.Qty, item.Product.Name, item.Variant.StockQty)
			}
			totalCents += item.Variant.PriceCents * int64(item.Qty)
		}

		now := time.Now().UTC()
		query := `
			INSERT INTO orders
				(user_id, order_number, status, total_cents, shipping_name, shipping_phone,
				 shipping_address, cancel_deadline, cancelled_by_user, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)
			RETURNING ` + orderColumns

		created, err := scanOrder(tx.QueryRowContext(ctx, query,
			req.UserID, orderNumber(now), models.OrderStatusPending, totalCents,
			req.Shipping.Name, req.Shipping.Phone, req.Shipping.Address,
			now.Add(req.CancelWindow), now))
		if err != nil {
			if database.IsUniqueViolation(err, "orders_order_number_key") {
				return database.ErrOrderNumberTaken
			}
			return fmt.Errorf("create order: %w", err)
		}

		created.Items = make([]models.OrderItem, 0, len(cart.Items))
		for _, item := range cart.Items {
			line := models.OrderItem{
				OrderID:        created.ID,
				VariantID:      item.VariantID,
				UnitPriceCents: item.Variant.PriceCents,
				Qty:            item.Qty,
			}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, variant_id, unit_price_cents, qty, created_at)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id, created_at`,
				line.OrderID, line.VariantID, line.UnitPriceCents, line.Qty, now).Scan(&line.ID, &line.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			line.Subtotal = models.Amount(line.UnitPriceCents * int64(line.Qty))
			created.Items = append(created.Items, line)
		}

		if err := clearCartItems(ctx, tx, cart.ID); err != nil {
			return err
		}

		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// lockOrder reads an order row with FOR UPDATE. A non-zero userID restricts
// the lookup to that owner; someone else's order reads as not found.
func lockOrder(ctx context.Context, tx *sql.Tx, orderID, userID int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if userID != 0 && order.UserID != userID {
		return nil, database.ErrOrderNotFound
	}

	return order, nil
}

func loadOrderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, variant_id, unit_price_cents, qty, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY variant_id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.VariantID,
			&item.UnitPriceCents,
			&item.Qty,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Subtotal = models.Amount(item.UnitPriceCents * int64(item.Qty))
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// checkEditable enforces the user edit window: PENDING and not past the
// cancellation deadline.
func checkEditable(order *models.Order, now time.Time) error {
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("%w: order is %s", database.ErrWrongStatus, order.Status)
	}
	if now.After(order.CancelDeadline) {
		return database.ErrDeadlinePassed
	}
	return nil
}

// UpdateShipping changes shipping fields of the user's own order while it is
// PENDING and inside the cancellation window.
func UpdateShipping(ctx context.Context, db *sql.DB, userID, orderID int64, patch ShippingPatch, now time.Time) (*models.Order, error) {
	if patch.empty() {
		return nil, database.ErrNothingToUpdate
	}

	var order *models.Order
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}

		if err := checkEditable(current, now); err != nil {
			return err
		}

		query := `
			UPDATE orders
			SET shipping_name = COALESCE($1, shipping_name),
			    shipping_phone = COALESCE($2, shipping_phone),
			    shipping_address = COALESCE($3, shipping_address),
			    updated_at = NOW(),
			    version = version + 1
			WHERE id = $4
			RETURNING ` + orderColumns

		updated, err := scanOrder(tx.QueryRowContext(ctx, query, patch.Name, patch.Phone, patch.Address, orderID))
		if err != nil {
			return fmt.Errorf("update shipping: %w", err)
		}

		if updated.Items, err = loadOrderItems(ctx, tx, orderID); err != nil {
			return err
		}

		order = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// CancelOrderByUser cancels the user's own PENDING order inside the window
// and returns every line's quantity to stock.
func CancelOrderByUser(ctx context.Context, db *sql.DB, userID, orderID int64, reason string, now time.Time) (*models.Order, error) {
	if strings.TrimSpace(reason) == "" {
		reason = defaultUserCancelReason
	}

	var order *models.Order
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}

		if err := checkEditable(current, now); err != nil {
			return err
		}

		items, err := loadOrderItems(ctx, tx, orderID)
		if err != nil {
			return err
		}

		for _, item := range items {
			if err := IncrementStock(ctx, tx, item.VariantID, item.Qty); err != nil {
				return fmt.Errorf("restock variant %d: %w", item.VariantID, err)
			}
		}

		updated, err := writeStatus(ctx, tx, orderID, models.OrderStatusCancelled, &reason, true)
		if err != nil {
			return err
		}

		updated.Items = items
		order = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// TransitionOrder moves an order to target on behalf of an admin. The current
// status is re-read under a row lock, the pair is looked up in the transition
// table and its stock effect is applied in the same transaction as the status
// write. A repeated confirmation or cancellation therefore fails instead of
// moving stock twice.
func TransitionOrder(ctx context.Context, db *sql.DB, orderID int64, target models.OrderStatus, reason string) (*TransitionResult, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", database.ErrInvalidStatus, target)
	}

	var result *TransitionResult
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, orderID, 0)
		if err != nil {
			return err
		}

		effect, ok := models.Transition(current.Status, target)
		if !ok {
			return &TransitionError{From: current.Status, To: target}
		}

		items, err := loadOrderItems(ctx, tx, orderID)
		if err != nil {
			return err
		}

		for _, item := range items {
			switch effect {
			case models.StockEffectDecrement:
				err = DecrementStock(ctx, tx, item.VariantID, item.Qty)
			case models.StockEffectRestock:
				err = IncrementStock(ctx, tx, item.VariantID, item.Qty)
			}
			if err != nil {
				return fmt.Errorf("%s variant %d: %w", effect, item.VariantID, err)
			}
		}

		var cancelReason *string
		if target == models.OrderStatusCancelled && strings.TrimSpace(reason) != "" {
			cancelReason = &reason
		}

		updated, err := writeStatus(ctx, tx, orderID, target, cancelReason, false)
		if err != nil {
			return err
		}

		updated.Items = items
		result = &TransitionResult{Order: updated, From: current.Status, Effect: effect}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func writeStatus(ctx context.Context, tx *sql.Tx, orderID int64, status models.OrderStatus, reason *string, byUser bool) (*models.Order, error) {
	var query string
	args := []any{status, orderID}

	if status == models.OrderStatusCancelled {
		query = `
			UPDATE orders
			SET status = $1,
			    cancelled_at = NOW(),
			    cancelled_reason = $3,
			    cancelled_by_user = $4,
			    updated_at = NOW(),
			    version = version + 1
			WHERE id = $2
			RETURNING ` + orderColumns
		args = append(args, reason, byUser)
	} else {
		query = `
			UPDATE orders
			SET status = $1, updated_at = NOW(), version = version + 1
			WHERE id = $2
			RETURNING ` + orderColumns
	}

	order, err := scanOrder(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}

// DeleteOrder removes a CANCELLED order; its lines go with it.
func DeleteOrder(ctx context.Context, db *sql.DB, orderID int64) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, orderID, 0)
		if err != nil {
			return err
		}

		if order.Status != models.OrderStatusCancelled {
			return fmt.Errorf("%w: order is %s", database.ErrOrderNotCancelled, order.Status)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}

		return nil
	})
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	return getOrder(ctx, db, id, 0)
}

// GetUserOrder returns the order only if userID owns it.
func GetUserOrder(ctx context.Context, db *sql.DB, userID, id int64) (*models.Order, error) {
	return getOrder(ctx, db, id, userID)
}

func getOrder(ctx context.Context, db *sql.DB, id, userID int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	args := []any{id}
	if userID != 0 {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}

	order, err := scanOrder(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Items, err = loadOrderItems(ctx, db, id); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrderStatus reads the status columns for the status endpoint's cache
// miss path. Only ID, UserID, Status, UpdatedAt and Version are set.
func GetOrderStatus(ctx context.Context, db *sql.DB, userID, id int64) (*models.Order, error) {
	order := &models.Order{ID: id, UserID: userID}
	err := db.QueryRowContext(ctx,
		`SELECT status, updated_at, version FROM orders WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&order.Status, &order.UpdatedAt, &order.Version)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order status: %w", err)
	}
	return order, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	if limit < 1 || limit > MaxPageSize {
		return nil, fmt.Errorf("%w: limit must be in [1, %d]", database.ErrInvalidPageRequest, MaxPageSize)
	}

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// OrderFilter narrows the admin order listing. Zero values mean no filter.
type OrderFilter struct {
	Status models.OrderStatus
	Search string
	From   *time.Time
	To     *time.Time
}

func (f OrderFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(order_number ILIKE $%[1]d OR shipping_name ILIKE $%[1]d OR shipping_phone ILIKE $%[1]d OR shipping_address ILIKE $%[1]d)", n))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ListOrders is the admin listing across all users, newest first.
func ListOrders(ctx context.Context, db *sql.DB, filter OrderFilter, page, pageSize int) (*OffsetPage, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", database.ErrInvalidStatus, filter.Status)
	}

	where, args := filter.where()

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, orderColumns, where, len(args)+1, len(args)+2)

	rows, err := db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}

type OrderStats struct {
	TotalOrders       int64                        `json:"total_orders"`
	OrdersByStatus    map[models.OrderStatus]int64 `json:"orders_by_status"`
	RevenueCents      int64                        `json:"revenue_cents"`
	Revenue           decimal.Decimal              `json:"revenue"`
	AverageOrderValue decimal.Decimal              `json:"average_order_value"`
	TodayOrders       int64                        `json:"today_orders"`
}

// GetOrderStats aggregates orders created in [from, to]. Revenue and the
// average exclude cancelled orders. TodayOrders ignores the range.
func GetOrderStats(ctx context.Context, db *sql.DB, from, to *time.Time) (*OrderStats, error) {
	where, args := OrderFilter{From: from, To: to}.where()

	stats := &OrderStats{OrdersByStatus: map[models.OrderStatus]int64{}}

	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM orders `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.OrdersByStatus[status] = count
		stats.TotalOrders += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	revenueWhere := "WHERE status <> 'CANCELLED'"
	if where != "" {
		revenueWhere = where + " AND status <> 'CANCELLED'"
	}

	var paidOrders int64
	err = db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_cents), 0), COUNT(*) FROM orders `+revenueWhere, args...).
		Scan(&stats.RevenueCents, &paidOrders)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}

	stats.Revenue = models.Amount(stats.RevenueCents)
	stats.AverageOrderValue = decimal.Zero
	if paidOrders > 0 {
		stats.AverageOrderValue = stats.Revenue.Div(decimal.NewFromInt(paidOrders)).Round(2)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE created_at >= date_trunc('day', NOW())`).Scan(&stats.TodayOrders)
	if err != nil {
		return nil, fmt.Errorf("count today's orders: %w", err)
	}

	return stats, nil
}
