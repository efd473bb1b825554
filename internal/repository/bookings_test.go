package repository

import (
	"context"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/models"
	"storefront/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBookingRepository(t *testing.T) {
	ctx := context.Background()

	newRepo := func(t *testing.T) (*BookingRepository, *mockNotifier, *remote.Memory) {
		t.Helper()
		source := remote.NewMemory()
		notifier := new(mockNotifier)
		return NewBookingRepository(source, notifier, nil), notifier, source
	}

	t.Run("CreateResolvesItemTitle", func(t *testing.T) {
		repo, notifier, source := newRepo(t)
		require.NoError(t, source.Seed(models.TableItems, map[string]any{"id": "item-1", "title": "Gold ring", "price_jod": 100}))

		notifier.On("Send", ctx, mock.MatchedBy(func(n models.Notification) bool {
			return n.Type == models.NotificationReservation && n.Message == "Omar booked Gold ring"
		})).Return(nil).Once()

		b, err := repo.Create(ctx, models.BookingInput{
			ItemID:       strPtr("item-1"),
			CustomerName: " Omar ",
			Phone:        "0791234567",
			Status:       models.StatusConfirmed,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, b.Status)
		assert.Equal(t, "Omar", b.CustomerName)
		notifier.AssertExpectations(t)
	})

	t.Run("CreateWithoutItem", func(t *testing.T) {
		repo, notifier, _ := newRepo(t)
		notifier.On("Send", ctx, mock.MatchedBy(func(n models.Notification) bool {
			return n.Message == "New booking from Sara"
		})).Return(nil).Once()

		b, err := repo.Create(ctx, models.BookingInput{CustomerName: "Sara", Phone: "0790000000"})
		require.NoError(t, err)
		assert.Nil(t, b.ItemID)
		notifier.AssertExpectations(t)
	})

	t.Run("CreateValidation", func(t *testing.T) {
		repo, notifier, _ := newRepo(t)

		_, err := repo.Create(ctx, models.BookingInput{Phone: "079"})
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = repo.Create(ctx, models.BookingInput{CustomerName: "Sara"})
		assert.ErrorIs(t, err, domain.ErrValidation)
		notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("StatusTransitions", func(t *testing.T) {
		repo, notifier, _ := newRepo(t)
		notifier.On("Send", ctx, mock.Anything).Return(nil)

		b, err := repo.Create(ctx, models.BookingInput{CustomerName: "Lina", Phone: "079"})
		require.NoError(t, err)

		_, err = repo.UpdateStatus(ctx, b.ID, models.StatusPending)
		assert.ErrorIs(t, err, domain.ErrValidation)

		confirmed, err := repo.UpdateStatus(ctx, b.ID, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, confirmed.Status)

		_, err = repo.UpdateStatus(ctx, b.ID, models.StatusCancelled)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = repo.UpdateStatus(ctx, "missing", models.StatusCancelled)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("GetAllAndDelete", func(t *testing.T) {
		repo, notifier, _ := newRepo(t)
		notifier.On("Send", ctx, mock.Anything).Return(nil)

		first, err := repo.Create(ctx, models.BookingInput{CustomerName: "A", Phone: "1"})
		require.NoError(t, err)
		second, err := repo.Create(ctx, models.BookingInput{CustomerName: "B", Phone: "2"})
		require.NoError(t, err)

		all, err := repo.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID, all[0].ID)

		require.NoError(t, repo.Delete(ctx, first.ID))
		all, err = repo.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}
