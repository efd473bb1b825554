package models

import (
	"encoding/json"
	"time"
)

type Review struct {
	ID           string    `json:"id"`
	ItemID       *string   `json:"item_id,omitempty"`
	CustomerName string    `json:"customer_name"`
	Rating       int       `json:"rating"`
	Comment      *string   `json:"comment,omitempty"`
	Approved     bool      `json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r Review) Key() string { return r.ID }

func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	aux := struct {
		*plain
		Approved *bool `json:"approved"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Approved = aux.Approved != nil && *aux.Approved
	return nil
}

type ReviewInput struct {
	ItemID       *string `json:"item_id,omitempty"`
	CustomerName string  `json:"customer_name"`
	Rating       int     `json:"rating"`
	Comment      *string `json:"comment,omitempty"`
	Approved     bool    `json:"approved"`
}
