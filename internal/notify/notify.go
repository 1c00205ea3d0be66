// Package notify persists user notifications and fans them out to the
// configured delivery channels after an order transition has committed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-sql-shop/internal/models"
)

// ErrNoRecipient is returned by a channel that has nobody to deliver to,
// e.g. push without registered devices. It is neither retried nor counted
// as a failure.
var ErrNoRecipient = errors.New("no recipient for channel")

type Message struct {
	UserID int64
	Type   models.NotificationType
	Title  string
	Body   string
	Data   map[string]string
}

type Recipient struct {
	UserID int64
	Email  string
	Tokens []string
}

// Delivery is what a channel receives: the persisted notification plus the
// resolved recipient.
type Delivery struct {
	NotificationID int64
	Message        Message
	Recipient      Recipient
	SentAt         time.Time
}

// Channel delivers a notification over one transport. Send returns how many
// endpoints (tokens, addresses, events) were reached.
type Channel interface {
	Name() string
	Send(ctx context.Context, d Delivery) (int, error)
}

// Store is the persistence the dispatcher needs.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error)
	CreateBroadcast(ctx context.Context, n *models.Notification) ([]models.Notification, error)
	Recipient(ctx context.Context, userID int64) (Recipient, error)
	MarkPushed(ctx context.Context, notificationID int64) error
}

// Outcome reports per-channel results of one Notify call. A channel that
// skipped appears in neither map.
type Outcome struct {
	NotificationID int64
	Delivered      map[string]int
	Failed         map[string]error
}

// Pushed reports whether the push channel reached at least one device.
func (o *Outcome) Pushed() bool {
	return o.Delivered[PushChannelName] > 0
}

// Envelope wraps every message written to Kafka or RabbitMQ.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func newEnvelope(eventType, producer, correlationID string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       body,
	})
}

// payloadData merges the message data with the notification's identity so
// clients can link back to the in-app copy.
func payloadData(d Delivery) map[string]string {
	data := make(map[string]string, len(d.Message.Data)+2)
	for k, v := range d.Message.Data {
		data[k] = v
	}
	data["type"] = string(d.Message.Type)
	data["notification_id"] = idString(d.NotificationID)
	return data
}
