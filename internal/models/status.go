package models

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipping  OrderStatus = "SHIPPING"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// StockEffect is the ledger side effect bound to a status transition.
type StockEffect int

const (
	StockEffectNone StockEffect = iota
	StockEffectDecrement
	StockEffectRestock
)

func (e StockEffect) String() string {
	switch e {
	case StockEffectDecrement:
		return "decrement"
	case StockEffectRestock:
		return "restock"
	default:
		return "none"
	}
}

// orderTransitions lists every legal (from, to) pair. Pairs not present are
// rejected; DELIVERED and CANCELLED have no outgoing edges.
var orderTransitions = map[OrderStatus]map[OrderStatus]StockEffect{
	OrderStatusPending: {
		OrderStatusConfirmed: StockEffectDecrement,
		OrderStatusCancelled: StockEffectRestock,
	},
	OrderStatusConfirmed: {
		OrderStatusShipping:  StockEffectNone,
		OrderStatusCancelled: StockEffectRestock,
	},
	OrderStatusShipping: {
		OrderStatusDelivered: StockEffectNone,
		OrderStatusCancelled: StockEffectRestock,
	},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	return status, status.Valid()
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// Transition looks up the stock effect for moving from one status to another.
// ok is false when the pair is not a legal transition.
func Transition(from, to OrderStatus) (effect StockEffect, ok bool) {
	effect, ok = orderTransitions[from][to]
	return effect, ok
}

type NotificationType string

const (
	NotificationOrderCreated   NotificationType = "ORDER_CREATED"
	NotificationOrderConfirmed NotificationType = "ORDER_CONFIRMED"
	NotificationOrderShipped   NotificationType = "ORDER_SHIPPED"
	NotificationOrderDelivered NotificationType = "ORDER_DELIVERED"
	NotificationOrderCancelled NotificationType = "ORDER_CANCELLED"
	NotificationLowStock       NotificationType = "LOW_STOCK"
	NotificationPromotional    NotificationType = "PROMOTIONAL"
	NotificationSystem         NotificationType = "SYSTEM"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationOrderCreated, NotificationOrderConfirmed, NotificationOrderShipped,
		NotificationOrderDelivered, NotificationOrderCancelled, NotificationLowStock,
		NotificationPromotional, NotificationSystem:
		return true
	}
	return false
}

var statusNotificationTypes = map[OrderStatus]NotificationType{
	OrderStatusPending:   NotificationOrderCreated,
	OrderStatusConfirmed: NotificationOrderConfirmed,
	OrderStatusShipping:  NotificationOrderShipped,
	OrderStatusDelivered: NotificationOrderDelivered,
	OrderStatusCancelled: NotificationOrderCancelled,
}

func NotificationTypeFor(status OrderStatus) NotificationType {
	if t, ok := statusNotificationTypes[status]; ok {
		return t
	}
	return NotificationSystem
}
