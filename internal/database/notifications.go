package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

const notificationColumns = `id, title, message, type, data, status, sent_count, success_count, retry_count,
    COALESCE(last_error, ''), created_at, sent_at, next_retry_at`

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.DeliveryPending
	}
	now := time.Now().UTC()

	var data any
	if len(n.Data) > 0 {
		data = string(n.Data)
	}

	query := `INSERT INTO notifications (title, message, type, data, status, sent_count, success_count, retry_count, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		n.Title,
		n.Message,
		n.Type,
		data,
		n.Status,
		n.SentCount,
		n.SuccessCount,
		n.RetryCount,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	row := db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification %d: %w", id, err)
	}
	return n, nil
}

// GetPendingNotifications returns queued and due-for-retry notifications, oldest first.
func (db *DB) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY id ASC LIMIT ?`
	return db.queryNotifications(ctx, query, time.Now().UTC(), limit)
}

// ListNotifications returns the latest notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = models.NotificationHistoryLimit
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications
              ORDER BY id DESC LIMIT ?`
	return db.queryNotifications(ctx, query, limit)
}

func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}

	switch status {
	case models.DeliveryRetry:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, utcPtr(nextRetryAt), id}
	default:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, utcPtr(nextRetryAt), id}
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return expectOne(res)
}

// MarkDelivered records the provider counts and completes the notification.
func (db *DB) MarkDelivered(ctx context.Context, id int64, sent, success int) error {
	query := `UPDATE notifications SET status = ?, sent_count = ?, success_count = ?, last_error = NULL,
              next_retry_at = NULL, sent_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, models.DeliveryCompleted, sent, success, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return expectOne(res)
}

func (db *DB) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(s scanner) (*models.Notification, error) {
	var n models.Notification
	var data sql.NullString
	err := s.Scan(
		&n.ID, &n.Title, &n.Message, &n.Type, &data, &n.Status,
		&n.SentCount, &n.SuccessCount, &n.RetryCount, &n.LastError,
		&n.CreatedAt, &n.SentAt, &n.NextRetryAt,
	)
	if err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		n.Data = json.RawMessage(data.String)
	}
	return &n, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
