package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
)

const productColumns = `id, name, slug, is_active, created_at, updated_at`

const variantColumns = `id, product_id, size_ml, concentration, sku, price_cents, stock_qty, is_active, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Slug,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func scanVariant(row rowScanner) (*models.ProductVariant, error) {
	variant := &models.ProductVariant{}
	err := row.Scan(
		&variant.ID,
		&variant.ProductID,
		&variant.SizeML,
		&variant.Concentration,
		&variant.SKU,
		&variant.PriceCents,
		&variant.StockQty,
		&variant.IsActive,
		&variant.CreatedAt,
		&variant.UpdatedAt,
		&variant.Version,
	)
	if err != nil {
		return nil, err
	}
	variant.Price = models.Amount(variant.PriceCents)
	return variant, nil
}

func CreateProduct(ctx context.Context, db *sql.DB, name, slug string, active bool) (*models.Product, error) {
	query := `
		INSERT INTO products (name, slug, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query, name, slug, active))
	if err != nil {
		if database.IsUniqueViolation(err, "products_slug_key") {
			return nil, database.ErrDuplicateSlug
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func SetProductActive(ctx context.Context, db *sql.DB, id int64, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("set product active: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

type VariantInput struct {
	SizeML        *int
	Concentration *string
	SKU           *string
	PriceCents    int64
	StockQty      int
	IsActive      bool
}

// VariantPatch holds the fields an admin may change. Stock is absent on
// purpose: it only moves through AdjustStock and order transitions.
type VariantPatch struct {
	SizeML        *int
	Concentration *string
	SKU           *string
	PriceCents    *int64
	IsActive      *bool
}

func (p VariantPatch) empty() bool {
	return p.SizeML == nil && p.Concentration == nil && p.SKU == nil &&
		p.PriceCents == nil && p.IsActive == nil
}

func CreateVariant(ctx context.Context, db *sql.DB, productID int64, in VariantInput) (*models.ProductVariant, error) {
	if in.PriceCents < 0 || in.StockQty < 0 {
		return nil, database.ErrInvalidQuantity
	}

	query := `
		INSERT INTO product_variants
			(product_id, size_ml, concentration, sku, price_cents, stock_qty, is_active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + variantColumns

	variant, err := scanVariant(db.QueryRowContext(ctx, query,
		productID, in.SizeML, in.Concentration, in.SKU, in.PriceCents, in.StockQty, in.IsActive))
	if err != nil {
		return nil, variantWriteError("create variant", err)
	}

	return variant, nil
}

func GetVariant(ctx context.Context, q database.Querier, id int64) (*models.ProductVariant, error) {
	query := `SELECT ` + variantColumns + ` FROM product_variants WHERE id = $1`

	variant, err := scanVariant(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}

	return variant, nil
}

// ListVariants pages through a product's variants. active filters on the
// variant flag when non-nil.
func ListVariants(ctx context.Context, db *sql.DB, productID int64, page, pageSize int, active *bool) (*OffsetPage, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}

	if _, err := GetProduct(ctx, db, productID); err != nil {
		return nil, err
	}

	where := `WHERE product_id = $1`
	args := []any{productID}
	if active != nil {
		where += ` AND is_active = $2`
		args = append(args, *active)
	}

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_variants `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count variants: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM product_variants
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, variantColumns, where, len(args)+1, len(args)+2)

	rows, err := db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := []models.ProductVariant{}
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, *variant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(variants, total, page, pageSize), nil
}

func UpdateVariant(ctx context.Context, db *sql.DB, id int64, patch VariantPatch) (*models.ProductVariant, error) {
	if patch.empty() {
		return nil, database.ErrNothingToUpdate
	}
	if patch.PriceCents != nil && *patch.PriceCents < 0 {
		return nil, database.ErrInvalidQuantity
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.SizeML != nil {
		set("size_ml", *patch.SizeML)
	}
	if patch.Concentration != nil {
		set("concentration", *patch.Concentration)
	}
	if patch.SKU != nil {
		set("sku", *patch.SKU)
	}
	if patch.PriceCents != nil {
		set("price_cents", *patch.PriceCents)
	}
	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE product_variants
		SET %s, version = version + 1, updated_at = NOW()
		WHERE id = $%d
		RETURNING %s`, strings.Join(sets, ", "), len(args), variantColumns)

	variant, err := scanVariant(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrVariantNotFound
		}
		return nil, variantWriteError("update variant", err)
	}

	return variant, nil
}

func DeleteVariant(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM product_variants WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return database.ErrVariantInUse
		}
		return fmt.Errorf("delete variant: %w", err)
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

func variantWriteError(op string, err error) error {
	switch {
	case database.IsUniqueViolation(err, ""):
		return database.ErrDuplicateVariant
	case database.IsForeignKeyViolation(err):
		return database.ErrProductNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
