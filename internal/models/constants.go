package models

// Remote table names.
const (
	TableItems      = "gold_items"
	TableBookings   = "reservations"
	TableCategories = "categories"
	TableReviews    = "reviews"
	TableAbout      = "about_info"
	TableAppInfo    = "app_info"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	DefaultCategoryColor = "#d97706"
	DefaultAppTitle      = "Abu Rumeileh Jewelry"
	DefaultAboutContent  = "About the shop"

	// NotificationHistoryLimit caps the history listing.
	NotificationHistoryLimit = 50
)

func ValidBookingStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}
