package export

import (
	"bytes"
	"testing"
	"time"

	"fieldbill/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteWorkbook(t *testing.T) {
	p := Preview{
		CustomerID: "42",
		Items: []models.LineItem{
			{
				Date: "2025-01-06", JobNumber: "1001", Title: "LCT Labor-1001", Service: "LCT Labor",
				Category: "Labor", RateType: models.RateWeekdayRegular, WorkerName: "Ana", Position: "LCT",
				ShiftTime: "08:00-18:00", Quantity: 8, UnitPrice: 50, Total: 400, TaxCodeID: "T1",
			},
			{
				Date: "2025-01-06", JobNumber: "1001", Title: "LCT Labor-1001 (OT)", Service: "LCT Labor",
				RateType: models.RateWeekdayOvertime, WorkerName: "Ana", Position: "LCT", Quantity: 2, UnitPrice: 75, Total: 150,
			},
		},
		Gaps: []models.CoverageGap{
			{Position: "FIELD_SUPERVISOR", RateType: models.RateMobilization},
		},
		Subtotal: 550,
	}

	w := NewExcelizeWriter()
	defer w.Close()

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(w, p, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetLineItems, SheetMissingRates}, f.GetSheetList())

	rows, err := f.GetRows(SheetLineItems)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, LineItemColumns, rows[0])
	assert.Equal(t, "LCT Labor-1001", rows[1][2])
	assert.Equal(t, "weekday_regular", rows[1][5])
	assert.Equal(t, "8", rows[1][9])
	assert.Equal(t, "400", rows[1][11])
	assert.Equal(t, "Subtotal", rows[3][len(LineItemColumns)-3])
	assert.Equal(t, "550", rows[3][len(LineItemColumns)-2])

	gaps, err := f.GetRows(SheetMissingRates)
	require.NoError(t, err)
	require.Len(t, gaps, 2)
	assert.Equal(t, []string{"Field Supervisor", "mobilization"}, gaps[1])
}

func TestWriteWorkbook_NoGaps(t *testing.T) {
	w := NewExcelizeWriter()
	defer w.Close()

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(w, Preview{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	gaps, err := f.GetRows(SheetMissingRates)
	require.NoError(t, err)
	assert.Len(t, gaps, 1, "header only")
}

func TestExcelizeWriter_NoActiveSheet(t *testing.T) {
	w := NewExcelizeWriter()
	defer w.Close()

	assert.Error(t, w.WriteHeader([]string{"a"}))
	assert.Error(t, w.WriteRow([]any{1}))
}

func TestExcelizeWriter_LongSheetName(t *testing.T) {
	w := NewExcelizeWriter()
	defer w.Close()

	require.NoError(t, w.AddSheet("A sheet name that is far longer than Excel allows"))
	assert.Len(t, w.currentSheet, 31)
}

func TestFilename(t *testing.T) {
	at := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "invoice_preview_42_20250106.xlsx", Filename("42", at))
}
