package models

import "time"

type AboutInfo struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Phone     string    `json:"phone"`
	WhatsApp  string    `json:"whatsapp"`
	Facebook  string    `json:"facebook"`
	Instagram string    `json:"instagram"`
	Address   string    `json:"address"`
	Hours     string    `json:"hours"`
	Image     string    `json:"image"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AboutPatch struct {
	Content   *string `json:"content,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	WhatsApp  *string `json:"whatsapp,omitempty"`
	Facebook  *string `json:"facebook,omitempty"`
	Instagram *string `json:"instagram,omitempty"`
	Address   *string `json:"address,omitempty"`
	Hours     *string `json:"hours,omitempty"`
	Image     *string `json:"image,omitempty"`

	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type AppInfo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Vision      string    `json:"vision"`
	Mission     string    `json:"mission"`
	History     string    `json:"history"`
	Features    string    `json:"features"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AppInfoPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Vision      *string `json:"vision,omitempty"`
	Mission     *string `json:"mission,omitempty"`
	History     *string `json:"history,omitempty"`
	Features    *string `json:"features,omitempty"`

	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
