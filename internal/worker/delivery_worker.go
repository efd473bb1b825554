package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NotificationStore persists notifications and their delivery state.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	MarkDelivered(ctx context.Context, id int64, sent, success int) error
}

// DeliveryWorker consumes queued notifications and hands them to the deliverer.
type DeliveryWorker struct {
	store         NotificationStore
	deliverer     domain.Deliverer
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.Notification
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
	now           func() time.Time
}

// NewDeliveryWorker builds a worker with sane defaults. redisClient may be nil.
func NewDeliveryWorker(store NotificationStore, deliverer domain.Deliverer, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *DeliveryWorker {
	retry = retry.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "delivery_worker").Logger()

	return &DeliveryWorker{
		store:         store,
		deliverer:     deliverer,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.Notification, 128),
		redisQueueKey: "notifications:queue",
		deadLetterKey: "notifications:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        &l,
		now:           time.Now,
	}
}

// Enqueue persists n and schedules it via redis or the in-memory queue.
// n.ID and n.CreatedAt are set on success.
func (w *DeliveryWorker) Enqueue(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}
	if n.Title == "" || n.Message == "" {
		return errors.New("title and message are required")
	}
	if !models.ValidNotificationType(n.Type) {
		return fmt.Errorf("unknown notification type %q", n.Type)
	}

	n.Status = models.DeliveryPending
	if err := w.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, *n); err != nil {
			w.logger.Warn().Err(err).Int64("id", n.ID).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- *n:
	default:
		w.logger.Warn().Int64("id", n.ID).Msg("memory queue full, notification left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Delivery worker started")
	defer w.logger.Info().Msg("Delivery worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if n, ok := w.tryLocalQueue(); ok {
			w.process(ctx, &n)
			continue
		}

		if n, ok := w.tryRedis(ctx); ok {
			w.process(ctx, &n)
			continue
		}

		pending, err := w.store.GetPendingNotifications(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("Failed to fetch pending notifications")
			}
			w.sleep(ctx)
			continue
		}
		if len(pending) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range pending {
			w.process(ctx, &pending[i])
		}
	}
}

func (w *DeliveryWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case n := <-w.queue:
		w.process(ctx, &n)
	}
}

func (w *DeliveryWorker) tryLocalQueue() (models.Notification, bool) {
	select {
	case n := <-w.queue:
		return n, true
	default:
		return models.Notification{}, false
	}
}

func (w *DeliveryWorker) tryRedis(ctx context.Context) (models.Notification, bool) {
	if w.redis == nil {
		return models.Notification{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.Notification{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP failed")
		return models.Notification{}, false
	}
	if len(res) != 2 {
		return models.Notification{}, false
	}
	var n models.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode queued notification")
		return models.Notification{}, false
	}
	return n, true
}

// process delivers one notification. Queue entries can be stale once the
// polling path handled the same row, so the stored state decides.
func (w *DeliveryWorker) process(ctx context.Context, n *models.Notification) {
	current, err := w.store.GetNotification(ctx, n.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("id", n.ID).Msg("Failed to load notification")
		return
	}
	if !w.due(current) {
		return
	}

	delivery, err := w.deliverer.Deliver(ctx, *current)
	if err != nil {
		w.retryOrFail(ctx, current, err)
		return
	}

	if err := w.store.MarkDelivered(ctx, current.ID, delivery.Sent, delivery.Success); err != nil {
		w.logger.Error().Err(err).Int64("id", current.ID).Msg("Failed to mark notification delivered")
		return
	}
	metrics.IncNotification(current.Type, models.DeliveryCompleted)
	w.logger.Debug().
		Int64("id", current.ID).
		Str("type", current.Type).
		Int("sent", delivery.Sent).
		Int("success", delivery.Success).
		Msg("Notification delivered")
}

func (w *DeliveryWorker) due(n *models.Notification) bool {
	switch n.Status {
	case models.DeliveryPending:
		return true
	case models.DeliveryRetry:
		return n.NextRetryAt == nil || !n.NextRetryAt.After(w.now())
	}
	return false
}

func (w *DeliveryWorker) retryOrFail(ctx context.Context, n *models.Notification, cause error) {
	nextTime, ok := w.retryPolicy.Schedule(n.RetryCount, w.now())
	if !ok {
		w.fail(ctx, n, cause)
		return
	}
	attempt := n.RetryCount + 1
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.DeliveryRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("id", n.ID).Msg("Failed to schedule retry")
		return
	}
	metrics.IncNotification(n.Type, models.DeliveryRetry)
	w.logger.Warn().Err(cause).Int64("id", n.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("Notification delivery failed, retrying")
}

func (w *DeliveryWorker) fail(ctx context.Context, n *models.Notification, cause error) {
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.DeliveryFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("id", n.ID).Msg("Failed to mark notification failed")
	}
	metrics.IncNotification(n.Type, models.DeliveryFailed)
	w.logger.Error().Err(cause).Int64("id", n.ID).Msg("Notification delivery failed permanently")
	w.pushDeadLetter(ctx, n)
}

func (w *DeliveryWorker) pushRedis(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *DeliveryWorker) pushDeadLetter(ctx context.Context, n *models.Notification) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		w.logger.Error().Err(err).Int64("id", n.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("id", n.ID).Msg("Failed to push dead letter")
	}
}
