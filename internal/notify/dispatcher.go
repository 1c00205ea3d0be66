package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/safar/go-sql-shop/internal/metrics"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/sirupsen/logrus"
)

type Dispatcher struct {
	store       Store
	channels    []Channel
	maxAttempts int
	log         logrus.FieldLogger
}

func NewDispatcher(store Store, maxAttempts int, log logrus.FieldLogger, channels ...Channel) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		store:       store,
		channels:    channels,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Notify stores the notification, then tries every channel at most
// maxAttempts times in a row without backoff. Channel failures end up in the
// Outcome and are never returned as an error; only failing to persist or to
// resolve the recipient is.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) (*Outcome, error) {
	data, err := encodeData(msg.Data)
	if err != nil {
		return nil, err
	}

	saved, err := d.store.CreateNotification(ctx, &models.Notification{
		UserID: msg.UserID,
		Type:   msg.Type,
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   data,
	})
	if err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}

	recipient, err := d.store.Recipient(ctx, msg.UserID)
	if err != nil {
		return newOutcome(saved.ID), fmt.Errorf("resolve recipient: %w", err)
	}

	return d.deliver(ctx, saved, msg, recipient), nil
}

// BroadcastOutcome sums up a broadcast. Delivered and Failed count users per
// channel; Unresolved counts users whose recipient lookup failed.
type BroadcastOutcome struct {
	Recipients int            `json:"recipients"`
	Pushed     int            `json:"pushed"`
	Delivered  map[string]int `json:"delivered"`
	Failed     map[string]int `json:"failed"`
	Unresolved int            `json:"unresolved"`
}

// Broadcast stores one copy of msg per user, then delivers each copy the way
// Notify does. msg.UserID is ignored. Delivery stops early when ctx ends; the
// stored copies stay.
func (d *Dispatcher) Broadcast(ctx context.Context, msg Message) (*BroadcastOutcome, error) {
	data, err := encodeData(msg.Data)
	if err != nil {
		return nil, err
	}

	saved, err := d.store.CreateBroadcast(ctx, &models.Notification{
		Type:  msg.Type,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("save broadcast: %w", err)
	}

	result := &BroadcastOutcome{
		Recipients: len(saved),
		Delivered:  map[string]int{},
		Failed:     map[string]int{},
	}

	for i := range saved {
		if ctx.Err() != nil {
			d.log.WithError(ctx.Err()).WithField("remaining", len(saved)-i).Warn("Broadcast delivery stopped")
			break
		}

		row := &saved[i]
		recipient, err := d.store.Recipient(ctx, row.UserID)
		if err != nil {
			result.Unresolved++
			d.log.WithError(err).WithField("user_id", row.UserID).Warn("Failed to resolve broadcast recipient")
			continue
		}

		userMsg := msg
		userMsg.UserID = row.UserID
		outcome := d.deliver(ctx, row, userMsg, recipient)

		for name := range outcome.Delivered {
			result.Delivered[name]++
		}
		for name := range outcome.Failed {
			result.Failed[name]++
		}
		if outcome.Pushed() {
			result.Pushed++
		}
	}

	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, saved *models.Notification, msg Message, recipient Recipient) *Outcome {
	outcome := newOutcome(saved.ID)
	delivery := Delivery{
		NotificationID: saved.ID,
		Message:        msg,
		Recipient:      recipient,
		SentAt:         saved.SentAt,
	}

	for _, ch := range d.channels {
		d.send(ctx, ch, delivery, outcome)
	}

	if outcome.Pushed() {
		if err := d.store.MarkPushed(ctx, saved.ID); err != nil {
			d.log.WithError(err).WithField("notification_id", saved.ID).Warn("Failed to mark notification as pushed")
		}
	}

	return outcome
}

func newOutcome(notificationID int64) *Outcome {
	return &Outcome{
		NotificationID: notificationID,
		Delivered:      map[string]int{},
		Failed:         map[string]error{},
	}
}

func encodeData(data map[string]string) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode notification data: %w", err)
	}
	return raw, nil
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, delivery Delivery, outcome *Outcome) {
	log := d.log.WithFields(logrus.Fields{
		"channel":         ch.Name(),
		"notification_id": delivery.NotificationID,
		"user_id":         delivery.Message.UserID,
	})

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		start := time.Now()
		n, err := ch.Send(ctx, delivery)
		if err == nil {
			metrics.RecordNotificationAttempt(ch.Name(), "delivered")
			outcome.Delivered[ch.Name()] = n
			log.WithFields(logrus.Fields{"reached": n, "elapsed": time.Since(start)}).Debug("Notification delivered")
			return
		}
		if errors.Is(err, ErrNoRecipient) {
			metrics.RecordNotificationAttempt(ch.Name(), "skipped")
			return
		}

		metrics.RecordNotificationAttempt(ch.Name(), "failed")
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("Notification delivery attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	outcome.Failed[ch.Name()] = lastErr
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
