package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const EventChannelName = "event"

// Publisher is the subset of *amqp.Channel the event channel uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EventChannel publishes every notification to a topic exchange so other
// services can react to order status changes. Routing keys look like
// "notification.order_confirmed".
type EventChannel struct {
	pub      Publisher
	exchange string
	producer string
}

type notificationEvent struct {
	NotificationID int64             `json:"notification_id"`
	UserID         int64             `json:"user_id"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data"`
	SentAt         time.Time         `json:"sent_at"`
}

// DialRabbitMQ connects and declares the durable topic exchange.
func DialRabbitMQ(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return conn, ch, nil
}

func NewEventChannel(pub Publisher, exchange, producer string) *EventChannel {
	return &EventChannel{pub: pub, exchange: exchange, producer: producer}
}

func (c *EventChannel) Name() string { return EventChannelName }

func routingKey(t string) string {
	return "notification." + strings.ToLower(t)
}

func (c *EventChannel) Send(ctx context.Context, d Delivery) (int, error) {
	body, err := newEnvelope(routingKey(string(d.Message.Type)), c.producer, idString(d.NotificationID), notificationEvent{
		NotificationID: d.NotificationID,
		UserID:         d.Message.UserID,
		Type:           string(d.Message.Type),
		Title:          d.Message.Title,
		Body:           d.Message.Body,
		Data:           d.Message.Data,
		SentAt:         d.SentAt,
	})
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	err = c.pub.PublishWithContext(ctx,
		c.exchange,
		routingKey(string(d.Message.Type)),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		return 0, fmt.Errorf("publish event: %w", err)
	}

	return 1, nil
}
