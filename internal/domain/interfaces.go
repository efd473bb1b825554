package domain

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is a single row change delivered by a table subscription.
// New carries the full row for insert/update, Old carries at least the id for delete.
type Change struct {
	Table string
	Kind  ChangeKind
	New   json.RawMessage
	Old   json.RawMessage
}

type ChangeHandler func(Change)

type Filter struct {
	Column string
	Value  string
}

// Query narrows a Select. Results are always newest first unless Unordered is set.
type Query struct {
	Filters   []Filter
	Limit     int
	Unordered bool
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

type Subscription interface {
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, table string, handler ChangeHandler) (Subscription, error)
}

// Source is the remote collection store.
type Source interface {
	Subscriber
	Select(ctx context.Context, table string, q Query, out any) error
	Insert(ctx context.Context, table string, record any, out any) error
	Update(ctx context.Context, table, id string, patch any, out any) error
	Delete(ctx context.Context, table, id string) error
}

type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type DeliveryQueue interface {
	Enqueue(ctx context.Context, n *models.Notification) error
}

type NotificationHistory interface {
	ListNotifications(ctx context.Context, limit int) ([]models.Notification, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Deliverer pushes a notification to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, n models.Notification) (models.Delivery, error)
}
