package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductVariant is the unit of stock accounting. StockQty never drops below
// zero; every change goes through a guarded relative update.
type ProductVariant struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	SizeML        *int            `json:"size_ml,omitempty"`
	Concentration *string         `json:"concentration,omitempty"`
	SKU           *string         `json:"sku,omitempty"`
	PriceCents    int64           `json:"price_cents"`
	Price         decimal.Decimal `json:"price"`
	StockQty      int             `json:"stock_qty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Cart struct {
	ID     int64      `json:"id"`
	UserID int64      `json:"user_id"`
	Items  []CartItem `json:"items"`
	Totals CartTotals `json:"totals"`
}

type CartItem struct {
	ID        int64          `json:"id"`
	CartID    int64          `json:"cart_id"`
	VariantID int64          `json:"variant_id"`
	Qty       int            `json:"qty"`
	Variant   ProductVariant `json:"variant"`
	Product   Product        `json:"product"`
	CreatedAt time.Time      `json:"created_at"`
}

// Available reports whether both the variant and its product can be sold.
func (i CartItem) Available() bool {
	return i.Variant.IsActive && i.Product.IsActive
}

type CartTotals struct {
	DistinctItems int             `json:"distinct_items"`
	TotalQty      int             `json:"total_qty"`
	SubtotalCents int64           `json:"subtotal_cents"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	Status          OrderStatus     `json:"status"`
	TotalCents      int64           `json:"total_cents"`
	Total           decimal.Decimal `json:"total"`
	ShippingName    string          `json:"shipping_name"`
	ShippingPhone   string          `json:"shipping_phone"`
	ShippingAddress string          `json:"shipping_address"`
	CancelDeadline  time.Time       `json:"cancel_deadline"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CancelledReason *string         `json:"cancelled_reason,omitempty"`
	CancelledByUser bool            `json:"cancelled_by_user"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// Editable reports whether the owner may still change or cancel the order.
func (o *Order) Editable(now time.Time) bool {
	return o.Status == OrderStatusPending && !now.After(o.CancelDeadline)
}

// OrderItem is frozen at checkout: UnitPriceCents is decoupled from the
// variant's live price.
type OrderItem struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	VariantID      int64           `json:"variant_id"`
	UnitPriceCents int64           `json:"unit_price_cents"`
	Qty            int             `json:"qty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Data      json.RawMessage  `json:"data,omitempty"`
	IsRead    bool             `json:"is_read"`
	IsPush    bool             `json:"is_push"`
	SentAt    time.Time        `json:"sent_at"`
	CreatedAt time.Time        `json:"created_at"`
}

type DeviceToken struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    *int64    `json:"user_id,omitempty"`
	Platform  *string   `json:"platform,omitempty"`
	Lang      *string   `json:"lang,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Amount converts minor currency units to a decimal in major units.
func Amount(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
