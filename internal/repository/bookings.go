package repository

import (
	"context"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/notify"

	"github.com/rs/zerolog"
)

type BookingRepository struct {
	source   domain.Source
	notifier domain.Notifier
	logger   *zerolog.Logger
}

func NewBookingRepository(source domain.Source, notifier domain.Notifier, logger *zerolog.Logger) *BookingRepository {
	return &BookingRepository{source: source, notifier: notifier, logger: nopIfNil(logger)}
}

func (r *BookingRepository) GetAll(ctx context.Context) ([]models.Booking, error) {
	return fetchAll[models.Booking](ctx, r.source, models.TableBookings)
}

func (r *BookingRepository) Get(ctx context.Context, id string) (*models.Booking, error) {
	b, err := fetchOne[models.Booking](ctx, r.source, models.TableBookings, domain.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NotFound(models.TableBookings, id)
	}
	return b, nil
}

// Create stores a pending booking and sends a reservation notification.
func (r *BookingRepository) Create(ctx context.Context, in models.BookingInput) (*models.Booking, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.CustomerName == "" {
		return nil, domain.Invalid("booking", "customer_name", "is required")
	}
	if in.Phone == "" {
		return nil, domain.Invalid("booking", "phone", "is required")
	}
	if in.ItemID != nil && *in.ItemID == "" {
		in.ItemID = nil
	}
	in.Status = models.StatusPending

	var created models.Booking
	if err := r.source.Insert(ctx, models.TableBookings, in, &created); err != nil {
		return nil, err
	}
	r.logger.Info().Str("booking_id", created.ID).Msg("Booking created")

	itemName := ""
	if created.ItemID != nil {
		item, err := fetchOne[models.CatalogItem](ctx, r.source, models.TableItems, domain.Eq("id", *created.ItemID))
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Str("item_id", *created.ItemID).Msg("Failed to resolve booked item")
		case item != nil:
			itemName = item.Title
		}
	}
	sendNotification(ctx, r.notifier, r.logger, notify.Reservation(itemName, created.CustomerName))

	return &created, nil
}

// UpdateStatus moves a pending booking to confirmed or cancelled.
// Bookings that already left pending cannot change again.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id, status string) (*models.Booking, error) {
	if status != models.StatusConfirmed && status != models.StatusCancelled {
		return nil, domain.Invalid("booking", "status", "must be confirmed or cancelled")
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return nil, domain.Invalid("booking", "status", "is already "+current.Status)
	}

	var updated models.Booking
	if err := r.source.Update(ctx, models.TableBookings, id, map[string]string{"status": status}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	return r.source.Delete(ctx, models.TableBookings, id)
}
