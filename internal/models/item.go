package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Prices is the price triple every catalog item carries.
type Prices struct {
	JOD decimal.Decimal `json:"price_jod" yaml:"price_jod"`
	USD decimal.Decimal `json:"price_usd" yaml:"price_usd"`
	ILS decimal.Decimal `json:"price_ils" yaml:"price_ils"`
}

type CatalogItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
	Prices
	Reserved     bool      `json:"reserved"`
	IsFavorite   bool      `json:"is_favorite"`
	Category     *string   `json:"category,omitempty"`
	AllowBooking bool      `json:"allow_booking"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (i CatalogItem) Key() string { return i.ID }

// UnmarshalJSON applies the column defaults for flags the row may omit.
func (i *CatalogItem) UnmarshalJSON(data []byte) error {
	type plain CatalogItem
	aux := struct {
		*plain
		Reserved     *bool `json:"reserved"`
		IsFavorite   *bool `json:"is_favorite"`
		AllowBooking *bool `json:"allow_booking"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.Reserved = aux.Reserved != nil && *aux.Reserved
	i.IsFavorite = aux.IsFavorite != nil && *aux.IsFavorite
	i.AllowBooking = aux.AllowBooking == nil || *aux.AllowBooking
	return nil
}

// ItemPatch is used for both inserts and partial updates; nil fields are not sent.
type ItemPatch struct {
	Title        *string          `json:"title,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Image        *string          `json:"image,omitempty"`
	PriceJOD     *decimal.Decimal `json:"price_jod,omitempty"`
	PriceUSD     *decimal.Decimal `json:"price_usd,omitempty"`
	PriceILS     *decimal.Decimal `json:"price_ils,omitempty"`
	Reserved     *bool            `json:"reserved,omitempty"`
	IsFavorite   *bool            `json:"is_favorite,omitempty"`
	Category     *string          `json:"category,omitempty"`
	AllowBooking *bool            `json:"allow_booking,omitempty"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
}
