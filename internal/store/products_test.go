package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/safar/go-sql-shop/internal/testutil"
)

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func TestVariantLifecycle(t *testing.T) {
	db := testutil.SetupDB(t)
	ctx := context.Background()

	product := testutil.CreateProduct(t, db)

	edp, err := store.CreateVariant(ctx, db, product.ID, store.VariantInput{
		SizeML:        intPtr(50),
		Concentration: strPtr("EDP"),
		SKU:           strPtr("SKU-50-EDP"),
		PriceCents:    8900,
		StockQty:      12,
		IsActive:      true,
	})
	if err != nil {
		t.Fatalf("Create variant: %v", err)
	}
	if !edp.Price.Equal(models.Amount(8900)) {
		t.Errorf("Expected price 89, got %s", edp.Price)
	}

	_, err = store.CreateVariant(ctx, db, product.ID, store.VariantInput{
		SizeML:        intPtr(50),
		Concentration: strPtr("EDP"),
		PriceCents:    9900,
	})
	if !errors.Is(err, database.ErrDuplicateVariant) {
		t.Errorf("Expected duplicate variant, got: %v", err)
	}

	edt, err := store.CreateVariant(ctx, db, product.ID, store.VariantInput{
		SizeML:        intPtr(50),
		Concentration: strPtr("EDT"),
		PriceCents:    6900,
		StockQty:      3,
		IsActive:      false,
	})
	if err != nil {
		t.Fatalf("Create second variant: %v", err)
	}

	if _, err := store.CreateVariant(ctx, db, 999999, store.VariantInput{PriceCents: 100}); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found, got: %v", err)
	}

	active := true
	page, err := store.ListVariants(ctx, db, product.ID, 1, 10, &active)
	if err != nil {
		t.Fatalf("List variants: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("Expected 1 active variant, got %d", page.Total)
	}
	page, err = store.ListVariants(ctx, db, product.ID, 1, 10, nil)
	if err != nil {
		t.Fatalf("List variants: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("Expected 2 variants, got %d", page.Total)
	}

	price := int64(7500)
	updated, err := store.UpdateVariant(ctx, db, edt.ID, store.VariantPatch{PriceCents: &price, IsActive: &active})
	if err != nil {
		t.Fatalf("Update variant: %v", err)
	}
	if updated.PriceCents != 7500 || !updated.IsActive {
		t.Errorf("Unexpected variant after update: %+v", updated)
	}
	if updated.StockQty != 3 {
		t.Errorf("Update must not touch stock, got %d", updated.StockQty)
	}

	if _, err := store.UpdateVariant(ctx, db, edt.ID, store.VariantPatch{Concentration: strPtr("EDP")}); !errors.Is(err, database.ErrDuplicateVariant) {
		t.Errorf("Expected duplicate variant on update, got: %v", err)
	}
	if _, err := store.UpdateVariant(ctx, db, edt.ID, store.VariantPatch{}); !errors.Is(err, database.ErrNothingToUpdate) {
		t.Errorf("Expected nothing to update, got: %v", err)
	}

	if err := store.DeleteVariant(ctx, db, edt.ID); err != nil {
		t.Fatalf("Delete variant: %v", err)
	}
	if _, err := store.GetVariant(ctx, db, edt.ID); !errors.Is(err, database.ErrVariantNotFound) {
		t.Errorf("Expected variant not found after delete, got: %v", err)
	}
}

func TestDeleteVariantReferencedByOrder(t *testing.T) {
	db := testutil.SetupDB(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, models.RoleUser)
	variant := testutil.CreateVariant(t, db, 500, 5)
	testutil.AddToCart(t, db, user.ID, variant.ID, 1)
	checkout(t, db, user.ID)

	if err := store.DeleteVariant(ctx, db, variant.ID); !errors.Is(err, database.ErrVariantInUse) {
		t.Errorf("Expected variant in use, got: %v", err)
	}
	if err := store.DeleteVariant(ctx, db, 999999); !errors.Is(err, database.ErrVariantNotFound) {
		t.Errorf("Expected variant not found, got: %v", err)
	}
}

func TestProducts(t *testing.T) {
	db := testutil.SetupDB(t)
	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, "Santal Noir", "santal-noir", true)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if _, err := store.CreateProduct(ctx, db, "Santal Noir II", "santal-noir", true); !errors.Is(err, database.ErrDuplicateSlug) {
		t.Errorf("Expected duplicate slug, got: %v", err)
	}

	if err := store.SetProductActive(ctx, db, product.ID, false); err != nil {
		t.Fatalf("Deactivate product: %v", err)
	}
	got, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if got.IsActive {
		t.Error("Expected product to be inactive")
	}

	if err := store.SetProductActive(ctx, db, 999999, true); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found, got: %v", err)
	}

	page, err := store.ListProducts(ctx, db, 1, 10)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("Expected 1 product, got %d", page.Total)
	}
	if _, err := store.ListProducts(ctx, db, 0, 10); !errors.Is(err, database.ErrInvalidPageRequest) {
		t.Errorf("Expected invalid page request, got: %v", err)
	}
}
