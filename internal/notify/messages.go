package notify

import (
	"fmt"

	"github.com/safar/go-sql-shop/internal/models"
)

// OrderStatusMessage builds the notification sent after an order enters its
// current status.
func OrderStatusMessage(order *models.Order) Message {
	var title, body string
	switch order.Status {
	case models.OrderStatusPending:
		title = "We received your order"
		body = fmt.Sprintf("Order %s is under review. We will contact you to confirm it shortly.", order.OrderNumber)
	case models.OrderStatusConfirmed:
		title = "Your order is confirmed"
		body = fmt.Sprintf("Order %s is confirmed. We will start preparing the shipment soon.", order.OrderNumber)
	case models.OrderStatusShipping:
		title = "Your order is on its way"
		body = fmt.Sprintf("Order %s has shipped. Track delivery from your account.", order.OrderNumber)
	case models.OrderStatusDelivered:
		title = "Order delivered"
		body = fmt.Sprintf("Order %s was delivered. Enjoy!", order.OrderNumber)
	case models.OrderStatusCancelled:
		title = "Order cancelled"
		body = fmt.Sprintf("Order %s was cancelled. If this was unexpected, contact support.", order.OrderNumber)
	default:
		title = "Order update"
		body = fmt.Sprintf("There is an update on order %s.", order.OrderNumber)
	}

	return Message{
		UserID: order.UserID,
		Type:   models.NotificationTypeFor(order.Status),
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"order_id":     idString(order.ID),
			"order_number": order.OrderNumber,
			"status":       string(order.Status),
		},
	}
}
