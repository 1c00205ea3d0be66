package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const PushChannelName = "push"

// MessageWriter is the subset of *kafka.Writer the push channel uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PushChannel hands push requests to the push gateway through a Kafka topic.
// One message carries every active token of the user.
type PushChannel struct {
	w        MessageWriter
	producer string
}

type pushRequest struct {
	UserID int64             `json:"user_id"`
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewPushChannel(w MessageWriter, producer string) *PushChannel {
	return &PushChannel{w: w, producer: producer}
}

func (c *PushChannel) Name() string { return PushChannelName }

func (c *PushChannel) Send(ctx context.Context, d Delivery) (int, error) {
	if len(d.Recipient.Tokens) == 0 {
		return 0, ErrNoRecipient
	}

	value, err := newEnvelope("notification.push", c.producer, idString(d.NotificationID), pushRequest{
		UserID: d.Message.UserID,
		Tokens: d.Recipient.Tokens,
		Title:  d.Message.Title,
		Body:   d.Message.Body,
		Data:   payloadData(d),
	})
	if err != nil {
		return 0, fmt.Errorf("encode push request: %w", err)
	}

	err = c.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(idString(d.Message.UserID)),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte("notification.push")},
			{Key: "x-event-version", Value: []byte("1")},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("write push request: %w", err)
	}

	return len(d.Recipient.Tokens), nil
}
