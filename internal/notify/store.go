package notify

import (
	"context"
	"database/sql"

	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
)

// DBStore backs the dispatcher with the notifications, users and
// device_tokens tables.
type DBStore struct {
	DB *sql.DB
}

func (s DBStore) CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	return store.CreateNotification(ctx, s.DB, n)
}

func (s DBStore) CreateBroadcast(ctx context.Context, n *models.Notification) ([]models.Notification, error) {
	return store.CreateBroadcast(ctx, s.DB, n)
}

func (s DBStore) Recipient(ctx context.Context, userID int64) (Recipient, error) {
	user, err := store.GetUser(ctx, s.DB, userID)
	if err != nil {
		return Recipient{}, err
	}

	tokens, err := store.ActiveDeviceTokens(ctx, s.DB, userID)
	if err != nil {
		return Recipient{}, err
	}

	return Recipient{UserID: userID, Email: user.Email, Tokens: tokens}, nil
}

func (s DBStore) MarkPushed(ctx context.Context, notificationID int64) error {
	return store.MarkNotificationPushed(ctx, s.DB, notificationID)
}
