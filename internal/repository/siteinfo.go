package repository

import (
	"context"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"
)

// AboutRepository manages the single about_info row.
type AboutRepository struct {
	source domain.Source
	now    func() time.Time
}

func NewAboutRepository(source domain.Source) *AboutRepository {
	return &AboutRepository{source: source, now: time.Now}
}

// Get returns nil without error when the row does not exist yet.
func (r *AboutRepository) Get(ctx context.Context) (*models.AboutInfo, error) {
	return fetchOne[models.AboutInfo](ctx, r.source, models.TableAbout)
}

// Update patches the row, creating it first when absent.
func (r *AboutRepository) Update(ctx context.Context, patch models.AboutPatch) (*models.AboutInfo, error) {
	current, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}

	var out models.AboutInfo
	if current == nil {
		if patch.Content == nil {
			content := models.DefaultAboutContent
			patch.Content = &content
		}
		if err := r.source.Insert(ctx, models.TableAbout, patch, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	now := r.now().UTC()
	patch.UpdatedAt = &now
	if err := r.source.Update(ctx, models.TableAbout, current.ID, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppInfoRepository manages the single app_info row.
type AppInfoRepository struct {
	source domain.Source
	now    func() time.Time
}

func NewAppInfoRepository(source domain.Source) *AppInfoRepository {
	return &AppInfoRepository{source: source, now: time.Now}
}

func (r *AppInfoRepository) Get(ctx context.Context) (*models.AppInfo, error) {
	return fetchOne[models.AppInfo](ctx, r.source, models.TableAppInfo)
}

func (r *AppInfoRepository) Update(ctx context.Context, patch models.AppInfoPatch) (*models.AppInfo, error) {
	current, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}

	var out models.AppInfo
	if current == nil {
		if patch.Title == nil {
			title := models.DefaultAppTitle
			patch.Title = &title
		}
		if err := r.source.Insert(ctx, models.TableAppInfo, patch, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	now := r.now().UTC()
	patch.UpdatedAt = &now
	if err := r.source.Update(ctx, models.TableAppInfo, current.ID, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
