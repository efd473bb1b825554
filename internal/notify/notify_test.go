package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestMessages(t *testing.T) {
	n := NewItem("Ring", decimal.RequireFromString("250.5"))
	assert.Equal(t, models.NotificationNewItem, n.Type)
	assert.Equal(t, "Ring was added at 250.5 JOD", n.Message)
	assert.JSONEq(t, `{"itemName":"Ring","price":"250.5"}`, string(n.Data))

	n = PriceUpdate("Ring", decimal.NewFromInt(300))
	assert.Equal(t, models.NotificationPriceUpdate, n.Type)
	assert.Equal(t, "The price of Ring is now 300 JOD", n.Message)

	assert.Equal(t, "Omar booked Ring", Reservation("Ring", "Omar").Message)
	assert.Equal(t, "New booking from Omar", Reservation("", "Omar").Message)

	g := General("Eid sale", "Everything 10% off", nil)
	assert.Equal(t, models.NotificationGeneral, g.Type)
	assert.Nil(t, g.Data)
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	limits := config.NotificationLimitConfig{Limit: 3, Window: time.Minute}

	t.Run("Queues", func(t *testing.T) {
		queue := new(mockQueue)
		limiter := new(mockLimiter)
		limiter.On("Allow", ctx, "notify:new_item", 3, time.Minute).Return(true, nil)
		queue.On("Enqueue", ctx, mock.MatchedBy(func(n *models.Notification) bool {
			return n.Type == models.NotificationNewItem && n.Title == "New gold piece!"
		})).Return(nil)

		d := NewDispatcher(queue, limiter, limits, nil)
		require.NoError(t, d.Send(ctx, NewItem("Ring", decimal.NewFromInt(100))))
		queue.AssertExpectations(t)
		limiter.AssertExpectations(t)
	})

	t.Run("RateLimited", func(t *testing.T) {
		queue := new(mockQueue)
		limiter := new(mockLimiter)
		limiter.On("Allow", ctx, "notify:price_update", 3, time.Minute).Return(false, nil)

		d := NewDispatcher(queue, limiter, limits, nil)
		err := d.Send(ctx, PriceUpdate("Ring", decimal.NewFromInt(1)))
		assert.ErrorIs(t, err, ErrRateLimited)
		queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("LimiterErrorFailsOpen", func(t *testing.T) {
		queue := new(mockQueue)
		limiter := new(mockLimiter)
		limiter.On("Allow", ctx, "notify:reservation", 3, time.Minute).Return(false, errors.New("redis down"))
		queue.On("Enqueue", ctx, mock.Anything).Return(nil)

		d := NewDispatcher(queue, limiter, limits, nil)
		require.NoError(t, d.Send(ctx, Reservation("Ring", "Omar")))
		queue.AssertNumberOfCalls(t, "Enqueue", 1)
	})

	t.Run("Validation", func(t *testing.T) {
		d := NewDispatcher(new(mockQueue), nil, limits, nil)
		err := d.Send(ctx, models.Notification{Title: "x", Message: "y", Type: "promo"})
		assert.ErrorIs(t, err, domain.ErrValidation)

		err = d.Send(ctx, General("", "y", nil))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("QueueError", func(t *testing.T) {
		queue := new(mockQueue)
		queue.On("Enqueue", ctx, mock.Anything).Return(errors.New("disk full"))

		d := NewDispatcher(queue, nil, limits, nil)
		err := d.Send(ctx, General("t", "m", nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestPushClient(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","recipients":42}`))
	}))
	defer srv.Close()

	client := NewPushClient(config.PushConfig{URL: srv.URL, AppID: "app-1", APIKey: "secret"}, srv.Client())
	d, err := client.Deliver(context.Background(), NewItem("Ring", decimal.NewFromInt(250)))
	require.NoError(t, err)
	assert.Equal(t, models.Delivery{Sent: 42, Success: 42}, d)

	assert.Equal(t, "Basic secret", auth)
	assert.Equal(t, "app-1", got["app_id"])
	assert.Equal(t, []any{"All"}, got["included_segments"])
	assert.Equal(t, "New gold piece!", got["headings"].(map[string]any)["en"])
	assert.Equal(t, "Ring was added at 250 JOD", got["contents"].(map[string]any)["en"])
	assert.Equal(t, "Ring", got["data"].(map[string]any)["itemName"])

	t.Run("EmptyDataIsObject", func(t *testing.T) {
		_, err := client.Deliver(context.Background(), General("t", "m", nil))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, got["data"])
	})

	t.Run("HTTPError", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":["app_id not found"]}`))
		}))
		defer bad.Close()

		c := NewPushClient(config.PushConfig{URL: bad.URL}, bad.Client())
		_, err := c.Deliver(context.Background(), General("t", "m", nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http 400")
		assert.Contains(t, err.Error(), "app_id not found")
	})
}

type fakeBot struct {
	failFor map[int64]bool
	sent    []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if b.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{}, nil
}

func TestTelegramChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("PartialSuccess", func(t *testing.T) {
		bot := &fakeBot{failFor: map[int64]bool{2: true}}
		d, err := NewTelegramChannel(bot, []int64{1, 2, 3}).Deliver(ctx, Reservation("Ring", "Omar"))
		require.NoError(t, err)
		assert.Equal(t, models.Delivery{Sent: 3, Success: 2}, d)
		require.Len(t, bot.sent, 2)
		assert.Equal(t, "New booking\nOmar booked Ring", bot.sent[0].Text)
	})

	t.Run("AllFailed", func(t *testing.T) {
		bot := &fakeBot{failFor: map[int64]bool{1: true}}
		_, err := NewTelegramChannel(bot, []int64{1}).Deliver(ctx, Reservation("Ring", "Omar"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat 1: chat not found")
	})

	t.Run("NoChats", func(t *testing.T) {
		d, err := NewTelegramChannel(&fakeBot{}, nil).Deliver(ctx, Reservation("Ring", "Omar"))
		require.NoError(t, err)
		assert.Zero(t, d.Sent)
	})
}

type stubDeliverer struct {
	d   models.Delivery
	err error
}

func (s stubDeliverer) Deliver(context.Context, models.Notification) (models.Delivery, error) {
	return s.d, s.err
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	n := General("t", "m", nil)

	f := NewFanout(nil).
		Add("push", stubDeliverer{d: models.Delivery{Sent: 10, Success: 9}}).
		Add("telegram", stubDeliverer{err: errors.New("blocked")}).
		Add("telegram2", stubDeliverer{d: models.Delivery{Sent: 1, Success: 1}})
	assert.Equal(t, 3, f.Len())

	d, err := f.Deliver(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, models.Delivery{Sent: 11, Success: 10}, d)

	allDown := NewFanout(nil).
		Add("push", stubDeliverer{err: errors.New("503")}).
		Add("telegram", stubDeliverer{err: errors.New("blocked")})
	_, err = allDown.Deliver(ctx, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push: 503")
	assert.Contains(t, err.Error(), "telegram: blocked")

	d, err = NewFanout(nil).Deliver(ctx, n)
	require.NoError(t, err)
	assert.Zero(t, d)
}
