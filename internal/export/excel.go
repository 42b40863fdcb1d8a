// Package export renders invoice previews as Excel workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Writer writes tabular data to a workbook, one sheet at a time.
type Writer interface {
	// AddSheet adds a new sheet and makes it current.
	AddSheet(name string) error

	// WriteHeader writes column headers to the current sheet.
	WriteHeader(columns []string) error

	// WriteRow writes a data row to the current sheet.
	WriteRow(row []any) error

	// Save writes the workbook to w.
	Save(w io.Writer) error

	Close() error
}

// ExcelizeWriter implements Writer using excelize library.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	widths       map[string][]int
}

// NewExcelizeWriter creates a new Excel writer.
func NewExcelizeWriter() *ExcelizeWriter {
	return &ExcelizeWriter{
		file:   excelize.NewFile(),
		widths: make(map[string][]int),
	}
}

// AddSheet adds a new sheet with the given name.
func (w *ExcelizeWriter) AddSheet(name string) error {
	// Truncate sheet name to 31 chars (Excel limit)
	if len(name) > 31 {
		name = name[:31]
	}

	// Check if it's the first sheet (Sheet1 exists by default)
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes column headers to current sheet.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, col); err != nil {
			return err
		}
		w.track(i, len(col))
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	if len(columns) > 0 {
		_ = w.file.SetPanes(w.currentSheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      w.currentRow,
			TopLeftCell: fmt.Sprintf("A%d", w.currentRow+1),
			ActivePane:  "bottomLeft",
		})
	}

	w.currentRow++
	return nil
}

// WriteRow writes a data row to current sheet.
func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
		w.track(i, len(fmt.Sprint(val)))
	}

	w.currentRow++
	return nil
}

// track records the widest value per column so Save can size columns.
func (w *ExcelizeWriter) track(col, width int) {
	cols := w.widths[w.currentSheet]
	for len(cols) <= col {
		cols = append(cols, 0)
	}
	if width > cols[col] {
		cols[col] = width
	}
	w.widths[w.currentSheet] = cols
}

func (w *ExcelizeWriter) applyWidths() {
	for sheet, cols := range w.widths {
		for i, width := range cols {
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				continue
			}
			_ = w.file.SetColWidth(sheet, name, name, float64(min(width+2, 60)))
		}
	}
}

// Save writes the Excel file to the writer.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	w.applyWidths()
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
