package store_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/safar/go-sql-shop/internal/testutil"
)

func TestConcurrentStockMovementsNeverNegative(t *testing.T) {
	db := testutil.SetupDB(t)
	ctx := context.Background()

	variant := testutil.CreateVariant(t, db, 1000, 10)

	concurrency := 12
	var wg sync.WaitGroup
	results := make(chan error, concurrency*2)

	for i := 0; i < concurrency; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			results <- database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
				return store.DecrementStock(ctx, tx, variant.ID, 2)
			})
		}()
		go func() {
			defer wg.Done()
			_, err := store.AdjustStock(ctx, db, variant.ID, -1)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	for err := range results {
		if err != nil && !errors.Is(err, database.ErrInsufficientStock) {
			t.Errorf("Unexpected error: %v", err)
		}
	}

	final := testutil.StockOf(t, db, variant.ID)
	if final < 0 {
		t.Fatalf("Stock went negative: %d", final)
	}
	if final > 1 {
		t.Errorf("Expected stock to be drained to 0 or 1, got %d", final)
	}
}

func TestAdjustStock(t *testing.T) {
	db := testutil.SetupDB(t)
	ctx := context.Background()

	variant := testutil.CreateVariant(t, db, 500, 3)

	updated, err := store.AdjustStock(ctx, db, variant.ID, 4)
	if err != nil {
		t.Fatalf("Adjust stock +4: %v", err)
	}
	if updated.StockQty != 7 {
		t.Errorf("Expected stock 7, got %d", updated.StockQty)
	}
	if updated.Version != variant.Version+1 {
		t.Errorf("Expected version %d, got %d", variant.Version+1, updated.Version)
	}

	_, err = store.AdjustStock(ctx, db, variant.ID, -8)
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock, got: %v", err)
	}
	if stock := testutil.StockOf(t, db, variant.ID); stock != 7 {
		t.Errorf("Stock should remain 7 after rejected adjust, got %d", stock)
	}

	updated, err = store.AdjustStock(ctx, db, variant.ID, -7)
	if err != nil {
		t.Fatalf("Adjust stock -7: %v", err)
	}
	if updated.StockQty != 0 {
		t.Errorf("Expected stock 0, got %d", updated.StockQty)
	}

	if _, err := store.AdjustStock(ctx, db, variant.ID, 0); !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity for zero delta, got: %v", err)
	}

	if _, err := store.AdjustStock(ctx, db, 999999, 1); !errors.Is(err, database.ErrVariantNotFound) {
		t.Errorf("Expected variant not found, got: %v", err)
	}
}

func TestStockDeltasRejectBadInput(t *testing.T) {
	db := testutil.SetupDB(t)
	ctx := context.Background()

	variant := testutil.CreateVariant(t, db, 500, 1)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.DecrementStock(ctx, tx, variant.ID, 0)
	})
	if !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity, got: %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.IncrementStock(ctx, tx, 999999, 1)
	})
	if !errors.Is(err, database.ErrVariantNotFound) {
		t.Errorf("Expected variant not found, got: %v", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.IncrementStock(ctx, tx, variant.ID, 5); err != nil {
			return err
		}
		return store.DecrementStock(ctx, tx, variant.ID, 10)
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock, got: %v", err)
	}
	if stock := testutil.StockOf(t, db, variant.ID); stock != 1 {
		t.Errorf("Rolled back transaction must not change stock, got %d", stock)
	}
}
