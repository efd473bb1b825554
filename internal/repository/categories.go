package repository

import (
	"context"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/models"
)

type CategoryRepository struct {
	source domain.Source
}

func NewCategoryRepository(source domain.Source) *CategoryRepository {
	return &CategoryRepository{source: source}
}

func (r *CategoryRepository) GetAll(ctx context.Context) ([]models.Category, error) {
	return fetchAll[models.Category](ctx, r.source, models.TableCategories)
}

func (r *CategoryRepository) Create(ctx context.Context, in models.CategoryPatch) (*models.Category, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, domain.Invalid("category", "name", "is required")
	}
	if in.Color == nil || *in.Color == "" {
		color := models.DefaultCategoryColor
		in.Color = &color
	}

	var created models.Category
	if err := r.source.Insert(ctx, models.TableCategories, in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *CategoryRepository) Update(ctx context.Context, id string, patch models.CategoryPatch) (*models.Category, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, domain.Invalid("category", "name", "must not be empty")
	}
	var updated models.Category
	if err := r.source.Update(ctx, models.TableCategories, id, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	return r.source.Delete(ctx, models.TableCategories, id)
}
