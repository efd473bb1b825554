package notify

import (
	"encoding/json"
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

func NewItem(itemName string, price decimal.Decimal) models.Notification {
	return models.Notification{
		Title:   "New gold piece!",
		Message: fmt.Sprintf("%s was added at %s JOD", itemName, price.String()),
		Type:    models.NotificationNewItem,
		Data:    encodeData(map[string]any{"itemName": itemName, "price": price}),
	}
}

func PriceUpdate(itemName string, newPrice decimal.Decimal) models.Notification {
	return models.Notification{
		Title:   "Price update",
		Message: fmt.Sprintf("The price of %s is now %s JOD", itemName, newPrice.String()),
		Type:    models.NotificationPriceUpdate,
		Data:    encodeData(map[string]any{"itemName": itemName, "newPrice": newPrice}),
	}
}

// Reservation announces a new booking. itemName may be empty when the booking
// has no item or the item could not be resolved.
func Reservation(itemName, customerName string) models.Notification {
	msg := fmt.Sprintf("%s booked %s", customerName, itemName)
	if itemName == "" {
		msg = fmt.Sprintf("New booking from %s", customerName)
	}
	return models.Notification{
		Title:   "New booking",
		Message: msg,
		Type:    models.NotificationReservation,
		Data:    encodeData(map[string]any{"itemName": itemName, "customerName": customerName}),
	}
}

func General(title, message string, data json.RawMessage) models.Notification {
	return models.Notification{
		Title:   title,
		Message: message,
		Type:    models.NotificationGeneral,
		Data:    data,
	}
}

func encodeData(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
