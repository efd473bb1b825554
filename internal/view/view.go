// Package view turns synced records into display shapes. Joins happen at
// read time, so a booking always shows the current price of its item.
package view

import (
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

const CategoryAll = "all"

type BookingView struct {
	ID           string        `json:"id"`
	ItemID       string        `json:"item_id"`
	ItemTitle    string        `json:"item_title"`
	Prices       models.Prices `json:"prices"`
	CustomerName string        `json:"customer_name"`
	Phone        string        `json:"phone"`
	Email        string        `json:"email,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

type ItemView struct {
	models.CatalogItem
	CategoryName  string  `json:"category_name,omitempty"`
	CategoryColor string  `json:"category_color,omitempty"`
	ReviewCount   int     `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
}

type ReviewView struct {
	models.Review
	ItemTitle string `json:"item_title"`
}

func indexItems(items []models.CatalogItem) map[string]models.CatalogItem {
	byID := make(map[string]models.CatalogItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return byID
}

// Bookings joins each booking with its item. A missing or deleted item gives
// an empty title and zero prices.
func Bookings(bookings []models.Booking, items []models.CatalogItem) []BookingView {
	byID := indexItems(items)
	out := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		v := BookingView{
			ID:           b.ID,
			ItemID:       deref(b.ItemID),
			CustomerName: b.CustomerName,
			Phone:        b.Phone,
			Email:        deref(b.Email),
			Notes:        deref(b.Notes),
			Status:       b.Status,
			CreatedAt:    b.CreatedAt,
			Prices:       models.Prices{JOD: decimal.Zero, USD: decimal.Zero, ILS: decimal.Zero},
		}
		if it, ok := byID[v.ItemID]; ok && v.ItemID != "" {
			v.ItemTitle = it.Title
			v.Prices = it.Prices
		}
		out = append(out, v)
	}
	return out
}

func Items(items []models.CatalogItem, categories []models.Category, reviews []models.Review) []ItemView {
	cats := make(map[string]models.Category, len(categories))
	for _, c := range categories {
		cats[c.ID] = c
	}

	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		v := ItemView{CatalogItem: it}
		if c, ok := cats[deref(it.Category)]; ok {
			v.CategoryName = c.Name
			v.CategoryColor = c.Color
		}
		v.ReviewCount = countFor(reviews, it.ID)
		v.AverageRating = AverageRating(reviews, it.ID)
		out = append(out, v)
	}
	return out
}

func Reviews(reviews []models.Review, items []models.CatalogItem) []ReviewView {
	byID := indexItems(items)
	out := make([]ReviewView, 0, len(reviews))
	for _, r := range reviews {
		v := ReviewView{Review: r}
		if it, ok := byID[deref(r.ItemID)]; ok {
			v.ItemTitle = it.Title
		}
		out = append(out, v)
	}
	return out
}

// FilterItems keeps items whose title contains search (case-insensitive) and
// whose category matches. An empty category or "all" matches everything.
func FilterItems(items []models.CatalogItem, search, category string) []models.CatalogItem {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]models.CatalogItem, 0, len(items))
	for _, it := range items {
		if needle != "" && !strings.Contains(strings.ToLower(it.Title), needle) {
			continue
		}
		if category != "" && category != CategoryAll && deref(it.Category) != category {
			continue
		}
		out = append(out, it)
	}
	return out
}

// AverageRating is the mean rating of the item's reviews rounded to one
// decimal, or 0 without reviews.
func AverageRating(reviews []models.Review, itemID string) float64 {
	var sum, n int64
	for _, r := range reviews {
		if deref(r.ItemID) == itemID {
			sum += int64(r.Rating)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	avg, _ := decimal.NewFromInt(sum).Div(decimal.NewFromInt(n)).Round(1).Float64()
	return avg
}

func countFor(reviews []models.Review, itemID string) int {
	n := 0
	for _, r := range reviews {
		if deref(r.ItemID) == itemID {
			n++
		}
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
