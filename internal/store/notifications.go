package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
)

const notificationColumns = `id, user_id, type, title, body, data, is_read, is_push, sent_at, created_at`

const deviceColumns = `id, token, user_id, platform, lang, is_active, created_at, updated_at`

func scanNotification(row rowScanner) (*models.Notification, error) {
	n := &models.Notification{}
	var data []byte
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Body,
		&data,
		&n.IsRead,
		&n.IsPush,
		&n.SentAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		n.Data = data
	}
	return n, nil
}

// CreateNotification persists the in-app copy of a notification before any
// delivery is attempted.
func CreateNotification(ctx context.Context, db *sql.DB, n *models.Notification) (*models.Notification, error) {
	var data *string
	if len(n.Data) > 0 {
		raw := string(n.Data)
		data = &raw
	}

	query := `
		INSERT INTO notifications (user_id, type, title, body, data, is_read, is_push, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, NOW(), NOW())
		RETURNING ` + notificationColumns

	created, err := scanNotification(db.QueryRowContext(ctx, query, n.UserID, n.Type, n.Title, n.Body, data))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("create notification: %w", err)
	}

	return created, nil
}

func MarkNotificationPushed(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE notifications SET is_push = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification pushed: %w", err)
	}
	return nil
}

// ListNotifications pages through a user's notifications, newest first, and
// reports the unread count alongside.
func ListNotifications(ctx context.Context, db *sql.DB, userID int64, page, pageSize int, unreadOnly bool) (*OffsetPage, int64, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, 0, err
	}

	var total, unread int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE NOT $2 OR NOT is_read), COUNT(*) FILTER (WHERE NOT is_read)
		 FROM notifications
		 WHERE user_id = $1`,
		userID, unreadOnly).Scan(&total, &unread)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		  AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := db.QueryContext(ctx, query, userID, unreadOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(notifications, total, page, pageSize), unread, nil
}

// MarkNotificationsRead marks the given notifications of userID as read.
// Ids belonging to other users are ignored; if none match the call fails.
func MarkNotificationsRead(ctx context.Context, db *sql.DB, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, database.ErrNothingToUpdate
	}

	var matched, marked int64
	err := db.QueryRowContext(ctx,
		`WITH owned AS (
			SELECT id, is_read FROM notifications WHERE user_id = $1 AND id = ANY($2)
		 ), updated AS (
			UPDATE notifications SET is_read = TRUE
			WHERE id IN (SELECT id FROM owned WHERE NOT is_read)
			RETURNING id
		 )
		 SELECT (SELECT COUNT(*) FROM owned), (SELECT COUNT(*) FROM updated)`,
		userID, pq.Array(ids)).Scan(&matched, &marked)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}

	if matched == 0 {
		return 0, database.ErrNotificationNotFound
	}

	return marked, nil
}

func MarkAllRead(ctx context.Context, db *sql.DB, userID int64) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}

type NotificationStats struct {
	Total              int64      `json:"total_notifications"`
	Unread             int64      `json:"unread_count"`
	LastNotificationAt *time.Time `json:"last_notification_at"`
}

func GetNotificationStats(ctx context.Context, db *sql.DB, userID int64) (*NotificationStats, error) {
	stats := &NotificationStats{}
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read), MAX(created_at)
		 FROM notifications
		 WHERE user_id = $1`,
		userID).Scan(&stats.Total, &stats.Unread, &stats.LastNotificationAt)
	if err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	return stats, nil
}

// ReadNotification returns one of the user's notifications and marks it read
// in the same statement.
func ReadNotification(ctx context.Context, db *sql.DB, userID, id int64) (*models.Notification, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns

	n, err := scanNotification(db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("read notification: %w", err)
	}
	return n, nil
}

func DeleteNotification(ctx context.Context, db *sql.DB, userID, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrNotificationNotFound
	}

	return nil
}

// CreateBroadcast stores one copy of n for every user in a single statement
// so each recipient keeps their own read state. UserID on n is ignored.
func CreateBroadcast(ctx context.Context, db *sql.DB, n *models.Notification) ([]models.Notification, error) {
	var data *string
	if len(n.Data) > 0 {
		raw := string(n.Data)
		data = &raw
	}

	query := `
		INSERT INTO notifications (user_id, type, title, body, data, is_read, is_push, sent_at, created_at)
		SELECT id, $1::varchar, $2::varchar, $3::text, $4::jsonb, FALSE, FALSE, NOW(), NOW()
		FROM users
		ORDER BY id
		RETURNING ` + notificationColumns

	rows, err := db.QueryContext(ctx, query, n.Type, n.Title, n.Body, data)
	if err != nil {
		return nil, fmt.Errorf("create broadcast: %w", err)
	}
	defer rows.Close()

	created := []models.Notification{}
	for rows.Next() {
		row, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		created = append(created, *row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return created, nil
}

// NotificationCampaign groups identical notifications sent to many users.
type NotificationCampaign struct {
	Type       models.NotificationType `json:"type"`
	Title      string                  `json:"title"`
	Body       string                  `json:"body"`
	LastSentAt time.Time               `json:"last_sent_at"`
	Recipients int64                   `json:"recipients"`
}

type CampaignFilter struct {
	Type   models.NotificationType
	Search string
	Limit  int
}

const defaultCampaignLimit = 50

// ListNotificationCampaigns is the admin overview of everything sent,
// grouped by (type, title, body), most recent first.
func ListNotificationCampaigns(ctx context.Context, db *sql.DB, filter CampaignFilter) ([]NotificationCampaign, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = defaultCampaignLimit
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, fmt.Errorf("%w: limit must be in [1, %d]", database.ErrInvalidPageRequest, MaxPageSize)
	}

	var conds []string
	var args []any
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%[1]d OR body ILIKE $%[1]d)", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT type, title, body, MAX(sent_at), COUNT(*)
		FROM notifications
		%s
		GROUP BY type, title, body
		ORDER BY MAX(created_at) DESC
		LIMIT $%d`, where, len(args)+1)

	rows, err := db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []NotificationCampaign{}
	for rows.Next() {
		var c NotificationCampaign
		if err := rows.Scan(&c.Type, &c.Title, &c.Body, &c.LastSentAt, &c.Recipients); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return campaigns, nil
}

func scanDevice(row rowScanner) (*models.DeviceToken, error) {
	d := &models.DeviceToken{}
	err := row.Scan(
		&d.ID,
		&d.Token,
		&d.UserID,
		&d.Platform,
		&d.Lang,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RegisterDevice upserts a push token. Re-registering an existing token
// moves it to the given user and reactivates it.
func RegisterDevice(ctx context.Context, db *sql.DB, token string, userID *int64, platform, lang *string) (*models.DeviceToken, error) {
	query := `
		INSERT INTO device_tokens (token, user_id, platform, lang, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    platform = COALESCE(EXCLUDED.platform, device_tokens.platform),
		    lang = COALESCE(EXCLUDED.lang, device_tokens.lang),
		    is_active = TRUE,
		    updated_at = NOW()
		RETURNING ` + deviceColumns

	device, err := scanDevice(db.QueryRowContext(ctx, query, token, userID, platform, lang))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("register device: %w", err)
	}

	return device, nil
}

// UnregisterDevice deactivates a token so it no longer receives pushes.
func UnregisterDevice(ctx context.Context, db *sql.DB, token string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE device_tokens SET is_active = FALSE, updated_at = NOW() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("unregister device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrDeviceNotFound
	}

	return nil
}

func ActiveDeviceTokens(ctx context.Context, db *sql.DB, userID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT token FROM device_tokens WHERE user_id = $1 AND is_active ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tokens, nil
}
