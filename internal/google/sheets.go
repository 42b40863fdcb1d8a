// Package google publishes invoice previews to a Google Sheets spreadsheet.
package google

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fieldbill/internal/events"
	"fieldbill/internal/export"
	"fieldbill/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService replaces a sheet's contents with the latest preview of a customer.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        zerolog.Logger

	mu         sync.Mutex
	lastDigest map[string]string // customer -> digest already on the sheet
}

// NewSheetsService connects with a service-account credentials file.
// Extra options are appended, which lets tests point the client at a fake endpoint.
func NewSheetsService(
	ctx context.Context,
	credentialsFile, spreadsheetID, sheetName string,
	logger zerolog.Logger,
	opts ...option.ClientOption,
) (*SheetsService, error) {
	base := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		base = append(base, option.WithCredentialsFile(credentialsFile))
	}
	srv, err := sheets.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if sheetName == "" {
		sheetName = export.SheetLineItems
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.With().Str("component", "sheets").Logger(),
		lastDigest:    make(map[string]string),
	}, nil
}

// ReplaceLineItems clears the sheet and writes a header, the items and a subtotal row.
func (s *SheetsService) ReplaceLineItems(ctx context.Context, customerID string, items []models.LineItem, subtotal float64) error {
	clearRange := fmt.Sprintf("'%s'!A:%s", s.sheetName, lastColumn())
	if _, err := s.srv.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	values := make([][]interface{}, 0, len(items)+3)
	values = append(values, []interface{}{"Customer", customerID, "Updated", time.Now().UTC().Format("2006-01-02 15:04:05")})
	values = append(values, headerValues())
	for i := range items {
		values = append(values, lineItemRowValues(&items[i]))
	}
	values = append(values, subtotalRowValues(subtotal))

	writeRange := fmt.Sprintf("'%s'!A1", s.sheetName)
	_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, writeRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", writeRange, err)
	}
	return nil
}

// HandlePreviewGenerated is an events.EventHandler for events.PreviewGenerated.
// Identical consecutive previews of a customer are not rewritten.
func (s *SheetsService) HandlePreviewGenerated(event events.Event) error {
	var p events.PreviewPayload
	if err := event.Decode(&p); err != nil {
		return err
	}

	digest := p.Digest
	s.mu.Lock()
	unchanged := digest != "" && s.lastDigest[p.CustomerID] == digest
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug().Str("customer", p.CustomerID).Msg("preview unchanged, sheet not rewritten")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.ReplaceLineItems(ctx, p.CustomerID, p.Items, p.Subtotal); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastDigest[p.CustomerID] = digest
	s.mu.Unlock()
	s.logger.Info().Str("customer", p.CustomerID).Str("run_id", p.RunID).Int("items", len(p.Items)).Msg("sheet updated")
	return nil
}

// ClearCache forgets which previews are already on the sheet.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDigest = make(map[string]string)
}

func headerValues() []interface{} {
	out := make([]interface{}, len(export.LineItemColumns))
	for i, c := range export.LineItemColumns {
		out[i] = c
	}
	return out
}

func lineItemRowValues(it *models.LineItem) []interface{} {
	return export.LineItemRow(it)
}

func subtotalRowValues(subtotal float64) []interface{} {
	row := make([]interface{}, len(export.LineItemColumns))
	for i := range row {
		row[i] = ""
	}
	row[len(row)-3] = "Subtotal"
	row[len(row)-2] = subtotal
	return row
}

func lastColumn() string {
	return string(rune('A' + len(export.LineItemColumns) - 1))
}
