package export

import (
	"bytes"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/view"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBookingsWorkbook(t *testing.T) {
	created := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	bookings := []view.BookingView{
		{
			ID:           "b1",
			ItemTitle:    "Gold Ring",
			Prices:       models.Prices{JOD: decimal.RequireFromString("250.5"), USD: decimal.NewFromInt(353), ILS: decimal.NewFromInt(1300)},
			CustomerName: "Omar",
			Phone:        "0790000000",
			Email:        "omar@example.com",
			Status:       models.StatusConfirmed,
			CreatedAt:    created,
		},
		{
			ID:           "b2",
			CustomerName: "Sara",
			Phone:        "0780000000",
			Notes:        "call after 5",
			Status:       models.StatusPending,
			CreatedAt:    created,
			Prices:       models.Prices{JOD: decimal.Zero, USD: decimal.Zero, ILS: decimal.Zero},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, BookingsWorkbook(&buf, bookings, created))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{BookingsSheet}, f.GetSheetList())

	rows, err := f.GetRows(BookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "Bookings export 2026-03-14 10:30", rows[0][0])
	assert.Equal(t, bookingHeaders, rows[1])

	assert.Equal(t, []string{"2026-03-14 10:30", "Omar", "0790000000", "omar@example.com", "Gold Ring", "250.5", "353", "1300", "confirmed"}, rows[2][:9])
	assert.Equal(t, "Sara", rows[3][1])
	assert.Equal(t, "", rows[3][4])
	assert.Equal(t, "0", rows[3][5])
	assert.Equal(t, "call after 5", rows[3][9])
}

func TestBookingsWorkbookEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BookingsWorkbook(&buf, nil, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(BookingsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
