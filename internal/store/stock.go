package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
)

// Stock is only ever changed through relative deltas applied by a single
// guarded UPDATE, so concurrent writers cannot lose updates and the
// quantity cannot go below zero.

func DecrementStock(ctx context.Context, tx *sql.Tx, variantID int64, qty int) error {
	if qty <= 0 {
		return database.ErrInvalidQuantity
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_qty = stock_qty - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_qty >= $1`,
		qty, variantID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return stockMiss(ctx, tx, variantID)
	}

	return nil
}

func IncrementStock(ctx context.Context, tx *sql.Tx, variantID int64, qty int) error {
	if qty <= 0 {
		return database.ErrInvalidQuantity
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_qty = stock_qty + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		qty, variantID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrVariantNotFound
	}

	return nil
}

// AdjustStock applies a manual delta in its own transaction. A delta that
// would leave the variant below zero is rejected and nothing changes.
func AdjustStock(ctx context.Context, db *sql.DB, variantID int64, delta int) (*models.ProductVariant, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", database.ErrInvalidQuantity)
	}

	var variant *models.ProductVariant
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		query := `
			UPDATE product_variants
			SET stock_qty = stock_qty + $1,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $2
			  AND stock_qty + $1 >= 0
			RETURNING ` + variantColumns

		v, err := scanVariant(tx.QueryRowContext(ctx, query, delta, variantID))
		if err != nil {
			if err == sql.ErrNoRows {
				return stockMiss(ctx, tx, variantID)
			}
			return fmt.Errorf("adjust stock: %w", err)
		}

		variant = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	return variant, nil
}

// stockMiss explains why a guarded update matched no row.
func stockMiss(ctx context.Context, q database.Querier, variantID int64) error {
	var stock int
	err := q.QueryRowContext(ctx,
		`SELECT stock_qty FROM product_variants WHERE id = $1`, variantID).Scan(&stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return database.ErrVariantNotFound
		}
		return fmt.Errorf("read stock: %w", err)
	}

	return fmt.Errorf("%w: variant %d has %d left", database.ErrInsufficientStock, variantID, stock)
}
