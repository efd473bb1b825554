package models

import (
	"encoding/json"
	"time"
)

type Booking struct {
	ID           string    `json:"id"`
	ItemID       *string   `json:"item_id,omitempty"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Email        *string   `json:"email,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	Status       string    `json:"status"` // pending, confirmed, cancelled
	CreatedAt    time.Time `json:"created_at"`
}

func (b Booking) Key() string { return b.ID }

func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	if err := json.Unmarshal(data, (*plain)(b)); err != nil {
		return err
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	return nil
}

// IsTerminal reports whether the booking already left the pending state.
func (b Booking) IsTerminal() bool {
	return b.Status != StatusPending
}

type BookingInput struct {
	ItemID       *string `json:"item_id,omitempty"`
	CustomerName string  `json:"customer_name"`
	Phone        string  `json:"phone"`
	Email        *string `json:"email,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Status       string  `json:"status"`
}
