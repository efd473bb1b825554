package export

import (
	"fmt"
	"io"
	"time"

	"storefront/internal/models"
	"storefront/internal/view"

	"github.com/xuri/excelize/v2"
)

const BookingsSheet = "Bookings"

var bookingHeaders = []string{
	"Created", "Customer", "Phone", "Email", "Item",
	"Price JOD", "Price USD", "Price ILS", "Status", "Notes",
}

var statusColors = map[string]string{
	models.StatusPending:   "#FFF2CC",
	models.StatusConfirmed: "#E2EFDA",
	models.StatusCancelled: "#F8CBAD",
}

// BookingsWorkbook writes the bookings as an XLSX workbook to w.
func BookingsWorkbook(w io.Writer, bookings []view.BookingView, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(BookingsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(BookingsSheet, "A1", fmt.Sprintf("Bookings export %s", generatedAt.Format("2006-01-02 15:04")))
	lastCol, _ := excelize.ColumnNumberToName(len(bookingHeaders))
	_ = f.MergeCell(BookingsSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(BookingsSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(BookingsSheet, cell, h)
		_ = f.SetCellStyle(BookingsSheet, cell, cell, headerStyle)
	}

	styles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err == nil {
			styles[status] = id
		}
	}

	for i, b := range bookings {
		row := i + 3
		values := []any{
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.CustomerName,
			b.Phone,
			b.Email,
			b.ItemTitle,
			b.Prices.JOD.InexactFloat64(),
			b.Prices.USD.InexactFloat64(),
			b.Prices.ILS.InexactFloat64(),
			b.Status,
			b.Notes,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(BookingsSheet, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if style, ok := styles[b.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(9, row)
			_ = f.SetCellStyle(BookingsSheet, cell, cell, style)
		}
	}

	_ = f.SetColWidth(BookingsSheet, "A", "A", 18)
	_ = f.SetColWidth(BookingsSheet, "B", "E", 22)
	_ = f.SetColWidth(BookingsSheet, "F", "I", 12)
	_ = f.SetColWidth(BookingsSheet, "J", "J", 40)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
