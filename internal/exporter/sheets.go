package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"hestonlab/internal/config"
	apperrors "hestonlab/internal/errors"
)

// Publisher pushes a table to a remote spreadsheet.
type Publisher interface {
	Publish(ctx context.Context, t Table) error
}

// SheetsPublisher replaces the contents of one Google Sheets tab with a
// table.
type SheetsPublisher struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger
}

// NewSheetsPublisher authenticates with the service-account credentials file
// named in cfg.
func NewSheetsPublisher(ctx context.Context, cfg config.SheetsConfig, logger *slog.Logger) (*SheetsPublisher, error) {
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read sheets credentials", err).
			WithContext("path", cfg.CredentialsFile)
	}
	return NewSheetsPublisherWithOptions(ctx, cfg, logger, option.WithCredentialsJSON(credentialsJSON))
}

// NewSheetsPublisherWithOptions builds the sheets client from explicit
// client options.
func NewSheetsPublisherWithOptions(ctx context.Context, cfg config.SheetsConfig, logger *slog.Logger, opts ...option.ClientOption) (*SheetsPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewSourceError("failed to create sheets service", err)
	}
	name := cfg.SheetName
	if name == "" {
		name = "comparison"
	}
	return &SheetsPublisher{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     name,
		logger:        logger,
	}, nil
}

// Publish clears the tab and writes the header row followed by the records.
func (p *SheetsPublisher) Publish(ctx context.Context, t Table) error {
	values := make([][]interface{}, 0, len(t.Records)+1)
	values = append(values, row(t.Headers))
	for _, rec := range t.Records {
		values = append(values, row(rec))
	}

	if _, err := p.service.Spreadsheets.Values.Clear(p.spreadsheetID, p.sheetName, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return apperrors.NewSourceError("failed to clear sheet", err).WithContext("sheet", p.sheetName)
	}

	rangeStr := fmt.Sprintf("%s!A1", p.sheetName)
	_, err := p.service.Spreadsheets.Values.Update(p.spreadsheetID, rangeStr, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return apperrors.NewSourceError("failed to update sheet", err).WithContext("sheet", p.sheetName)
	}

	p.logger.InfoContext(ctx, "Published table to Google Sheets",
		slog.String("spreadsheet_id", p.spreadsheetID),
		slog.String("sheet", p.sheetName),
		slog.Int("rows", len(t.Records)))
	return nil
}

func row(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = cellValue(c)
		if out[i] == nil {
			out[i] = ""
		}
	}
	return out
}
