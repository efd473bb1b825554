package livesync

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"storefront/internal/domain"

	"github.com/rs/zerolog"
)

var ErrClosed = errors.New("livesync: closed")

// SubscriptionManager owns the open table subscriptions. CloseAll is
// terminal: subscriptions added afterwards are closed immediately.
type SubscriptionManager struct {
	mu     sync.Mutex
	subs   map[string]domain.Subscription
	closed bool
	logger *zerolog.Logger
}

func NewSubscriptionManager(logger *zerolog.Logger) *SubscriptionManager {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SubscriptionManager{subs: make(map[string]domain.Subscription), logger: logger}
}

// Add registers the subscription for table, replacing and closing a previous one.
func (m *SubscriptionManager) Add(table string, sub domain.Subscription) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if err := sub.Close(); err != nil {
			m.logger.Warn().Err(err).Str("table", table).Msg("close late subscription")
		}
		return ErrClosed
	}
	prev := m.subs[table]
	m.subs[table] = sub
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			m.logger.Warn().Err(err).Str("table", table).Msg("close replaced subscription")
		}
	}
	return nil
}

func (m *SubscriptionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Tables returns the subscribed tables, sorted.
func (m *SubscriptionManager) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subs))
	for t := range m.subs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// CloseAll releases every subscription and returns the joined close errors.
func (m *SubscriptionManager) CloseAll() error {
	m.mu.Lock()
	m.closed = true
	subs := m.subs
	m.subs = make(map[string]domain.Subscription)
	m.mu.Unlock()

	var errs []error
	for table, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", table, err))
		}
	}
	if len(subs) > 0 {
		m.logger.Debug().Int("count", len(subs)).Msg("subscriptions closed")
	}
	return errors.Join(errs...)
}
