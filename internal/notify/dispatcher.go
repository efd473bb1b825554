package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/rs/zerolog"
)

var ErrRateLimited = errors.New("notification rate limit exceeded")

// Dispatcher is the Notifier the repositories talk to. It caps the volume per
// notification type and hands accepted notifications to the delivery queue.
type Dispatcher struct {
	queue   domain.DeliveryQueue
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
	logger  *zerolog.Logger
}

// NewDispatcher builds a dispatcher. limiter may be nil to disable limiting.
func NewDispatcher(queue domain.DeliveryQueue, limiter domain.RateLimiter, cfg config.NotificationLimitConfig, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "notify").Logger()
	return &Dispatcher{
		queue:   queue,
		limiter: limiter,
		limit:   cfg.Limit,
		window:  cfg.Window,
		logger:  &l,
	}
}

func (d *Dispatcher) Send(ctx context.Context, n models.Notification) error {
	if !models.ValidNotificationType(n.Type) {
		return domain.Invalid("notification", "type", fmt.Sprintf("%q is not supported", n.Type))
	}
	if n.Title == "" {
		return domain.Invalid("notification", "title", "is required")
	}
	if n.Message == "" {
		return domain.Invalid("notification", "message", "is required")
	}

	if d.limiter != nil && d.limit > 0 {
		allowed, err := d.limiter.Allow(ctx, "notify:"+n.Type, d.limit, d.window)
		if err != nil {
			// limiter errors fail open
			d.logger.Warn().Err(err).Str("type", n.Type).Msg("Rate limiter unavailable")
		} else if !allowed {
			metrics.IncNotification(n.Type, "limited")
			return ErrRateLimited
		}
	}

	if err := d.queue.Enqueue(ctx, &n); err != nil {
		metrics.IncNotification(n.Type, "enqueue_error")
		return fmt.Errorf("enqueue notification: %w", err)
	}
	metrics.IncNotification(n.Type, "queued")
	d.logger.Debug().Int64("id", n.ID).Str("type", n.Type).Msg("Notification queued")
	return nil
}
