package repository

import (
	"context"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/models"
)

type ReviewRepository struct {
	source domain.Source
}

func NewReviewRepository(source domain.Source) *ReviewRepository {
	return &ReviewRepository{source: source}
}

// GetApproved returns only the reviews visible to customers.
func (r *ReviewRepository) GetApproved(ctx context.Context) ([]models.Review, error) {
	return fetchAll[models.Review](ctx, r.source, models.TableReviews, domain.Eq("approved", "true"))
}

func (r *ReviewRepository) GetAll(ctx context.Context) ([]models.Review, error) {
	return fetchAll[models.Review](ctx, r.source, models.TableReviews)
}

// Create always stores the review unapproved.
func (r *ReviewRepository) Create(ctx context.Context, in models.ReviewInput) (*models.Review, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	if in.CustomerName == "" {
		return nil, domain.Invalid("review", "customer_name", "is required")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, domain.Invalid("review", "rating", "must be between 1 and 5")
	}
	in.Approved = false

	var created models.Review
	if err := r.source.Insert(ctx, models.TableReviews, in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *ReviewRepository) Approve(ctx context.Context, id string) (*models.Review, error) {
	var updated models.Review
	if err := r.source.Update(ctx, models.TableReviews, id, map[string]bool{"approved": true}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	return r.source.Delete(ctx, models.TableReviews, id)
}
