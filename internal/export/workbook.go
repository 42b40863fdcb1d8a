package export

import (
	"fmt"
	"io"
	"time"

	"fieldbill/internal/models"
)

const (
	SheetLineItems    = "Line Items"
	SheetMissingRates = "Missing Rates"
)

var LineItemColumns = []string{
	"Date", "Job", "Title", "Service", "Category", "Rate Type", "Worker", "Position",
	"Shift", "Quantity", "Unit Price", "Total", "Tax Code",
}

var gapColumns = []string{"Position", "Missing Rate"}

// Preview is the content of a workbook.
type Preview struct {
	CustomerID string
	RunID      string
	Items      []models.LineItem
	Gaps       []models.CoverageGap
	Subtotal   float64
}

// WriteWorkbook renders the preview with w and saves the workbook to out.
// Missing Rates is always present so an empty sheet confirms full coverage.
func WriteWorkbook(w Writer, p Preview, out io.Writer) error {
	if err := w.AddSheet(SheetLineItems); err != nil {
		return err
	}
	if err := w.WriteHeader(LineItemColumns); err != nil {
		return err
	}
	for i := range p.Items {
		if err := w.WriteRow(LineItemRow(&p.Items[i])); err != nil {
			return fmt.Errorf("write line item %d: %w", i, err)
		}
	}
	subtotal := make([]any, len(LineItemColumns))
	subtotal[len(subtotal)-3] = "Subtotal"
	subtotal[len(subtotal)-2] = p.Subtotal
	if err := w.WriteRow(subtotal); err != nil {
		return err
	}

	if err := w.AddSheet(SheetMissingRates); err != nil {
		return err
	}
	if err := w.WriteHeader(gapColumns); err != nil {
		return err
	}
	for _, g := range p.Gaps {
		if err := w.WriteRow([]any{models.PositionLabel(g.Position), string(g.RateType)}); err != nil {
			return err
		}
	}

	return w.Save(out)
}

// LineItemRow is the cell values of one line item, in column order.
func LineItemRow(it *models.LineItem) []any {
	return []any{
		it.Date,
		it.JobNumber,
		it.Title,
		it.Service,
		it.Category,
		string(it.RateType),
		it.WorkerName,
		it.Position,
		it.ShiftTime,
		it.Quantity,
		it.UnitPrice,
		it.Total,
		it.TaxCodeID,
	}
}

// Filename creates a filename like "invoice_preview_42_20250106.xlsx".
func Filename(customerID string, at time.Time) string {
	return fmt.Sprintf("invoice_preview_%s_%s.xlsx", customerID, at.Format("20060102"))
}
