package models

import (
	"encoding/json"
	"time"
)

const (
	NotificationGeneral     = "general"
	NotificationNewItem     = "new_item"
	NotificationPriceUpdate = "price_update"
	NotificationReservation = "reservation"
)

const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryCompleted = "completed"
	DeliveryFailed    = "failed"
)

// Notification is an outbound message together with its delivery bookkeeping.
type Notification struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
	Status       string          `json:"status"`
	SentCount    int             `json:"sent_count"`
	SuccessCount int             `json:"success_count"`
	RetryCount   int             `json:"retry_count"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
}

func ValidNotificationType(t string) bool {
	switch t {
	case NotificationGeneral, NotificationNewItem, NotificationPriceUpdate, NotificationReservation:
		return true
	}
	return false
}

// Delivery is what a provider reports back for one notification.
type Delivery struct {
	Sent    int
	Success int
}

func (d Delivery) Add(o Delivery) Delivery {
	return Delivery{Sent: d.Sent + o.Sent, Success: d.Success + o.Success}
}
