package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
)

const cartItemQuery = `
	SELECT ci.id, ci.cart_id, ci.variant_id, ci.qty, ci.created_at,
	       v.id, v.product_id, v.size_ml, v.concentration, v.sku, v.price_cents, v.stock_qty,
	       v.is_active, v.created_at, v.updated_at, v.version,
	       p.id, p.name, p.slug, p.is_active, p.created_at, p.updated_at
	FROM cart_items ci
	JOIN product_variants v ON v.id = ci.variant_id
	JOIN products p ON p.id = v.product_id
	WHERE ci.cart_id = $1`

func scanCartItem(row rowScanner) (models.CartItem, error) {
	var item models.CartItem
	v := &item.Variant
	p := &item.Product
	err := row.Scan(
		&item.ID, &item.CartID, &item.VariantID, &item.Qty, &item.CreatedAt,
		&v.ID, &v.ProductID, &v.SizeML, &v.Concentration, &v.SKU, &v.PriceCents, &v.StockQty,
		&v.IsActive, &v.CreatedAt, &v.UpdatedAt, &v.Version,
		&p.ID, &p.Name, &p.Slug, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return item, err
	}
	v.Price = models.Amount(v.PriceCents)
	return item, nil
}

func cartTotals(items []models.CartItem) models.CartTotals {
	totals := models.CartTotals{DistinctItems: len(items)}
	for _, item := range items {
		totals.TotalQty += item.Qty
		totals.SubtotalCents += item.Variant.PriceCents * int64(item.Qty)
	}
	totals.Subtotal = models.Amount(totals.SubtotalCents)
	return totals
}

// ensureCart returns the user's cart id, creating the cart on first use.
func ensureCart(ctx context.Context, q database.Querier, userID int64) (int64, error) {
	var cartID int64
	err := q.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&cartID)
	if err == nil {
		return cartID, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("get cart: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return 0, database.ErrUserNotFound
		}
		return 0, fmt.Errorf("create cart: %w", err)
	}

	err = q.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("get cart: %w", err)
	}

	return cartID, nil
}

func loadCart(ctx context.Context, q database.Querier, cartID, userID int64, suffix string) (*models.Cart, error) {
	rows, err := q.QueryContext(ctx, cartItemQuery+suffix, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &models.Cart{
		ID:     cartID,
		UserID: userID,
		Items:  items,
		Totals: cartTotals(items),
	}, nil
}

// GetCart returns a point-in-time snapshot of the user's cart with nested
// variant and product data.
func GetCart(ctx context.Context, db *sql.DB, userID int64) (*models.Cart, error) {
	cartID, err := ensureCart(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	return loadCart(ctx, db, cartID, userID, ` ORDER BY ci.created_at DESC, ci.id DESC`)
}

// LoadCartForCheckout reads the cart inside tx and locks the cart row and
// every referenced variant row, in variant id order, until tx ends. A user
// without a cart gets an empty snapshot.
func LoadCartForCheckout(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
		}
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	return loadCart(ctx, tx, cartID, userID, ` ORDER BY v.id FOR UPDATE OF ci, v`)
}

// AddCartItem adds qty of a variant to the cart, merging with an existing
// line. The merged quantity must not exceed the variant's live stock; this is
// a soft check and reserves nothing.
func AddCartItem(ctx context.Context, db *sql.DB, userID, variantID int64, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var (
			stock         int
			variantActive bool
			productActive bool
			productName   string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT v.stock_qty, v.is_active, p.is_active, p.name
			 FROM product_variants v
			 JOIN products p ON p.id = v.product_id
			 WHERE v.id = $1`,
			variantID).Scan(&stock, &variantActive, &productActive, &productName)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrVariantNotFound
			}
			return fmt.Errorf("get variant: %w", err)
		}

		if !variantActive || !productActive {
			return fmt.Errorf("%w: %s is not available", database.ErrItemUnavailable, productName)
		}

		cartID, err := ensureCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		var merged int
		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_items (cart_id, variant_id, qty, created_at, updated_at)
			 VALUES ($1, $2, $3, NOW(), NOW())
			 ON CONFLICT (cart_id, variant_id)
			 DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty, updated_at = NOW()
			 RETURNING qty`,
			cartID, variantID, qty).Scan(&merged)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}

		if merged > stock {
			return fmt.Errorf("%w: requested %d of %s, %d available", database.ErrInsufficientStock, merged, productName, stock)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return GetCart(ctx, db, userID)
}

// UpdateCartItem replaces the quantity of one line in the user's cart.
func UpdateCartItem(ctx context.Context, db *sql.DB, userID, itemID int64, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	cartID, err := ensureCart(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	var stock int
	err = db.QueryRowContext(ctx,
		`SELECT v.stock_qty
		 FROM cart_items ci
		 JOIN product_variants v ON v.id = ci.variant_id
		 WHERE ci.id = $1 AND ci.cart_id = $2`,
		itemID, cartID).Scan(&stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}

	if qty > stock {
		return nil, fmt.Errorf("%w: requested %d, %d available", database.ErrInsufficientStock, qty, stock)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE cart_items SET qty = $1, updated_at = NOW() WHERE id = $2 AND cart_id = $3`,
		qty, itemID, cartID)
	if err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return GetCart(ctx, db, userID)
}

func RemoveCartItem(ctx context.Context, db *sql.DB, userID, itemID int64) (*models.Cart, error) {
	cartID, err := ensureCart(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, database.ErrCartItemNotFound
	}

	return GetCart(ctx, db, userID)
}

func ClearCart(ctx context.Context, db *sql.DB, userID int64) (*models.Cart, error) {
	cartID, err := ensureCart(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	if err := clearCartItems(ctx, db, cartID); err != nil {
		return nil, err
	}

	return &models.Cart{ID: cartID, UserID: userID, Items: []models.CartItem{}}, nil
}

func clearCartItems(ctx context.Context, q database.Querier, cartID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// CountCart returns the number of distinct lines and the summed quantity.
func CountCart(ctx context.Context, db *sql.DB, userID int64) (distinct int, totalQty int, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(ci.id), COALESCE(SUM(ci.qty), 0)
		 FROM carts c
		 LEFT JOIN cart_items ci ON ci.cart_id = c.id
		 WHERE c.user_id = $1`,
		userID).Scan(&distinct, &totalQty)
	if err != nil {
		return 0, 0, fmt.Errorf("count cart: %w", err)
	}
	return distinct, totalQty, nil
}
