package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/safar/go-sql-shop/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved     []*models.Notification
	recipient Recipient
	recipErr  error
	saveErr   error
	pushed    []int64

	// users and recipients back broadcasts; a user missing from recipients
	// fails to resolve.
	users      []int64
	recipients map[int64]Recipient
}

func (s *fakeStore) CreateNotification(_ context.Context, n *models.Notification) (*models.Notification, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	row := *n
	row.ID = int64(len(s.saved) + 1)
	row.SentAt = time.Now()
	s.saved = append(s.saved, &row)
	return &row, nil
}

func (s *fakeStore) CreateBroadcast(ctx context.Context, n *models.Notification) ([]models.Notification, error) {
	var rows []models.Notification
	for _, userID := range s.users {
		perUser := *n
		perUser.UserID = userID
		row, err := s.CreateNotification(ctx, &perUser)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

func (s *fakeStore) Recipient(_ context.Context, userID int64) (Recipient, error) {
	if s.recipErr != nil {
		return Recipient{}, s.recipErr
	}
	if s.recipients != nil {
		r, ok := s.recipients[userID]
		if !ok {
			return Recipient{}, errors.New("user gone")
		}
		r.UserID = userID
		return r, nil
	}
	r := s.recipient
	r.UserID = userID
	return r, nil
}

func (s *fakeStore) MarkPushed(_ context.Context, id int64) error {
	s.pushed = append(s.pushed, id)
	return nil
}

// fakeChannel fails the first failures calls, then succeeds.
type fakeChannel struct {
	name     string
	failures int
	calls    int
	reached  int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, d Delivery) (int, error) {
	c.calls++
	if c.calls <= c.failures {
		return 0, errors.New("transport down")
	}
	if c.name == PushChannelName && len(d.Recipient.Tokens) == 0 {
		return 0, ErrNoRecipient
	}
	return c.reached, nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNotifyPersistsAndMarksPushed(t *testing.T) {
	st := &fakeStore{recipient: Recipient{Email: "a@example.com", Tokens: []string{"t1", "t2"}}}
	push := &fakeChannel{name: PushChannelName, reached: 2}
	email := &fakeChannel{name: EmailChannelName, reached: 1}

	d := NewDispatcher(st, 2, quietLogger(), push, email)
	outcome, err := d.Notify(context.Background(), Message{
		UserID: 7,
		Type:   models.NotificationOrderConfirmed,
		Title:  "Your order is confirmed",
		Body:   "Order ORD-1 is confirmed.",
		Data:   map[string]string{"order_id": "1"},
	})
	require.NoError(t, err)

	require.Len(t, st.saved, 1)
	assert.Equal(t, int64(7), st.saved[0].UserID)
	assert.JSONEq(t, `{"order_id":"1"}`, string(st.saved[0].Data))

	assert.Equal(t, map[string]int{PushChannelName: 2, EmailChannelName: 1}, outcome.Delivered)
	assert.Empty(t, outcome.Failed)
	assert.True(t, outcome.Pushed())
	assert.Equal(t, []int64{outcome.NotificationID}, st.pushed)
}

func TestNotifyRetriesUpToMaxAttempts(t *testing.T) {
	st := &fakeStore{recipient: Recipient{Tokens: []string{"t1"}}}
	flaky := &fakeChannel{name: PushChannelName, failures: 1, reached: 1}
	broken := &fakeChannel{name: EventChannelName, failures: 10}

	d := NewDispatcher(st, 2, quietLogger(), flaky, broken)
	outcome, err := d.Notify(context.Background(), Message{UserID: 1, Type: models.NotificationSystem})
	require.NoError(t, err)

	assert.Equal(t, 2, flaky.calls)
	assert.Equal(t, 1, outcome.Delivered[PushChannelName])

	assert.Equal(t, 2, broken.calls)
	assert.Error(t, outcome.Failed[EventChannelName])
	assert.NotContains(t, outcome.Delivered, EventChannelName)
}

func TestNotifyWithoutDevicesDoesNotMarkPushed(t *testing.T) {
	st := &fakeStore{recipient: Recipient{Email: "a@example.com"}}
	push := &fakeChannel{name: PushChannelName, reached: 1}

	d := NewDispatcher(st, 3, quietLogger(), push)
	outcome, err := d.Notify(context.Background(), Message{UserID: 1, Type: models.NotificationSystem})
	require.NoError(t, err)

	assert.Equal(t, 1, push.calls)
	assert.False(t, outcome.Pushed())
	assert.Empty(t, outcome.Failed)
	assert.Empty(t, st.pushed)
	assert.Nil(t, st.saved[0].Data)
}

func TestNotifySaveFailure(t *testing.T) {
	st := &fakeStore{saveErr: errors.New("db down")}
	push := &fakeChannel{name: PushChannelName, reached: 1}

	d := NewDispatcher(st, 1, quietLogger(), push)
	outcome, err := d.Notify(context.Background(), Message{UserID: 1})
	assert.Error(t, err)
	assert.Nil(t, outcome)
	assert.Zero(t, push.calls)
}

func TestNotifyRecipientFailureKeepsRow(t *testing.T) {
	st := &fakeStore{recipErr: errors.New("user gone")}
	push := &fakeChannel{name: PushChannelName, reached: 1}

	d := NewDispatcher(st, 1, quietLogger(), push)
	outcome, err := d.Notify(context.Background(), Message{UserID: 1})
	assert.Error(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, int64(1), outcome.NotificationID)
	assert.Len(t, st.saved, 1)
	assert.Zero(t, push.calls)
}

func TestBroadcastDeliversEveryCopy(t *testing.T) {
	st := &fakeStore{
		users: []int64{1, 2, 3},
		recipients: map[int64]Recipient{
			1: {Email: "one@example.com", Tokens: []string{"t1"}},
			2: {Email: "two@example.com"},
		},
	}
	push := &fakeChannel{name: PushChannelName, reached: 1}
	email := &fakeChannel{name: EmailChannelName, reached: 1}

	d := NewDispatcher(st, 1, quietLogger(), push, email)
	result, err := d.Broadcast(context.Background(), Message{
		UserID: 99,
		Type:   models.NotificationPromotional,
		Title:  "Spring sale",
		Body:   "Everything is 20% off.",
		Data:   map[string]string{"campaign": "spring"},
	})
	require.NoError(t, err)

	require.Len(t, st.saved, 3)
	for i, row := range st.saved {
		assert.Equal(t, int64(i+1), row.UserID)
		assert.Equal(t, models.NotificationPromotional, row.Type)
		assert.JSONEq(t, `{"campaign":"spring"}`, string(row.Data))
	}

	assert.Equal(t, 3, result.Recipients)
	assert.Equal(t, 1, result.Unresolved)
	assert.Equal(t, 1, result.Pushed)
	assert.Equal(t, map[string]int{PushChannelName: 1, EmailChannelName: 2}, result.Delivered)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []int64{st.saved[0].ID}, st.pushed)
}

func TestBroadcastStopsWhenContextEnds(t *testing.T) {
	st := &fakeStore{users: []int64{1, 2}, recipient: Recipient{Tokens: []string{"t"}}}
	push := &fakeChannel{name: PushChannelName, reached: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(st, 1, quietLogger(), push)
	result, err := d.Broadcast(ctx, Message{Type: models.NotificationSystem, Title: "Maintenance"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Recipients)
	assert.Len(t, st.saved, 2)
	assert.Zero(t, push.calls)
}

func TestOrderStatusMessage(t *testing.T) {
	order := &models.Order{ID: 12, UserID: 3, OrderNumber: "ORD-123456789", Status: models.OrderStatusShipping}

	msg := OrderStatusMessage(order)
	assert.Equal(t, int64(3), msg.UserID)
	assert.Equal(t, models.NotificationOrderShipped, msg.Type)
	assert.Contains(t, msg.Body, "ORD-123456789")
	assert.Equal(t, "12", msg.Data["order_id"])
	assert.Equal(t, "SHIPPING", msg.Data["status"])
}
