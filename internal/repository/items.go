package repository

import (
	"context"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/notify"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type ItemRepository struct {
	source   domain.Source
	notifier domain.Notifier
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewItemRepository(source domain.Source, notifier domain.Notifier, logger *zerolog.Logger) *ItemRepository {
	return &ItemRepository{
		source:   source,
		notifier: notifier,
		logger:   nopIfNil(logger),
		now:      time.Now,
	}
}

func (r *ItemRepository) GetAll(ctx context.Context) ([]models.CatalogItem, error) {
	return fetchAll[models.CatalogItem](ctx, r.source, models.TableItems)
}

func (r *ItemRepository) Get(ctx context.Context, id string) (*models.CatalogItem, error) {
	item, err := fetchOne[models.CatalogItem](ctx, r.source, models.TableItems, domain.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.NotFound(models.TableItems, id)
	}
	return item, nil
}

// Create stores a new item and announces it.
func (r *ItemRepository) Create(ctx context.Context, in models.ItemPatch) (*models.CatalogItem, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, domain.Invalid("item", "title", "is required")
	}
	if in.PriceJOD == nil {
		return nil, domain.Invalid("item", "price_jod", "is required")
	}
	for field, p := range map[string]*decimal.Decimal{"price_jod": in.PriceJOD, "price_usd": in.PriceUSD, "price_ils": in.PriceILS} {
		if p != nil && p.IsNegative() {
			return nil, domain.Invalid("item", field, "must not be negative")
		}
	}

	zero := decimal.Zero
	if in.PriceUSD == nil {
		in.PriceUSD = &zero
	}
	if in.PriceILS == nil {
		in.PriceILS = &zero
	}
	if in.AllowBooking == nil {
		allow := true
		in.AllowBooking = &allow
	}

	var created models.CatalogItem
	if err := r.source.Insert(ctx, models.TableItems, in, &created); err != nil {
		return nil, err
	}

	r.logger.Info().Str("item_id", created.ID).Str("title", created.Title).Msg("Item created")
	sendNotification(ctx, r.notifier, r.logger, notify.NewItem(created.Title, created.JOD))
	return &created, nil
}

// Update applies a partial patch. The stored record is read first so a change
// of the JOD price can be announced.
func (r *ItemRepository) Update(ctx context.Context, id string, patch models.ItemPatch) (*models.CatalogItem, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, domain.Invalid("item", "title", "must not be empty")
	}

	prior, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	patch.UpdatedAt = &now

	var updated models.CatalogItem
	if err := r.source.Update(ctx, models.TableItems, id, patch, &updated); err != nil {
		return nil, err
	}

	if !prior.JOD.Equal(updated.JOD) {
		r.logger.Info().
			Str("item_id", id).
			Str("old_price", prior.JOD.String()).
			Str("new_price", updated.JOD.String()).
			Msg("Item price changed")
		sendNotification(ctx, r.notifier, r.logger, notify.PriceUpdate(updated.Title, updated.JOD))
	}
	return &updated, nil
}

func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	return r.source.Delete(ctx, models.TableItems, id)
}
