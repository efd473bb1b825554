package repository

import (
	"context"

	"storefront/internal/domain"
	"storefront/internal/models"

	"github.com/rs/zerolog"
)

func nopIfNil(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return logger
}

// fetchOne returns the newest row matching filters, or nil when there is none.
func fetchOne[T any](ctx context.Context, source domain.Source, table string, filters ...domain.Filter) (*T, error) {
	var rows []T
	if err := source.Select(ctx, table, domain.Query{Filters: filters, Limit: 1}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func fetchAll[T any](ctx context.Context, source domain.Source, table string, filters ...domain.Filter) ([]T, error) {
	var rows []T
	if err := source.Select(ctx, table, domain.Query{Filters: filters}, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// sendNotification never fails the caller; delivery problems are only logged.
func sendNotification(ctx context.Context, notifier domain.Notifier, logger *zerolog.Logger, n models.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Send(ctx, n); err != nil {
		logger.Error().Err(err).Str("type", n.Type).Str("title", n.Title).Msg("Failed to send notification")
	}
}
