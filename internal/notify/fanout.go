package notify

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/models"

	"github.com/rs/zerolog"
)

type namedDeliverer struct {
	name string
	d    domain.Deliverer
}

// Fanout delivers to every configured channel and sums their counts. A channel
// failure is logged; the delivery fails only when every channel failed.
type Fanout struct {
	channels []namedDeliverer
	logger   *zerolog.Logger
}

func NewFanout(logger *zerolog.Logger) *Fanout {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fanout{logger: logger}
}

func (f *Fanout) Add(name string, d domain.Deliverer) *Fanout {
	f.channels = append(f.channels, namedDeliverer{name: name, d: d})
	return f
}

func (f *Fanout) Len() int { return len(f.channels) }

func (f *Fanout) Deliver(ctx context.Context, n models.Notification) (models.Delivery, error) {
	if len(f.channels) == 0 {
		return models.Delivery{}, nil
	}

	var total models.Delivery
	var errs []error
	for _, ch := range f.channels {
		d, err := ch.d.Deliver(ctx, n)
		if err != nil {
			f.logger.Warn().Err(err).Str("channel", ch.name).Int64("id", n.ID).Msg("Channel delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		total = total.Add(d)
	}
	if len(errs) == len(f.channels) {
		return total, errors.Join(errs...)
	}
	return total, nil
}
