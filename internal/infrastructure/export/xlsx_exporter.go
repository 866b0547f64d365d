package export

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the worksheet holding the approved invoices
const SheetName = "Approved Invoices"

var headers = []string{
	"Approval ID", "Vendor", "Invoice #", "Invoice Date", "Total", "Currency",
	"Confidence", "Approval Type", "Approved By", "Approved At", "Created At",
}

// XLSXExporter renders approved invoices as an Excel workbook
type XLSXExporter struct {
	fontName string
	logger   *zap.Logger
}

// NewXLSXExporter creates a new exporter. fontName is an optional font family.
func NewXLSXExporter(fontName string, logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{fontName: fontName, logger: logger}
}

// ExportApproved writes one header row and one row per invoice, followed by a total per currency
func (e *XLSXExporter) ExportApproved(ctx context.Context, rows []entity.ApprovedInvoice) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if e.fontName != "" {
		if err := file.SetDefaultFont(e.fontName); err != nil {
			e.logger.Warn("Failed to set default font", zap.String("font", e.fontName), zap.Error(err))
		}
	}

	if err := file.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := file.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		e.setStyle(file, "A1", last, style)
	}

	totals := make(map[string]decimal.Decimal)
	var currencies []string

	for i, row := range rows {
		total, err := decimal.NewFromString(row.Total)
		if err != nil {
			total = decimal.Zero
		}
		if _, ok := totals[row.Currency]; !ok {
			currencies = append(currencies, row.Currency)
		}
		totals[row.Currency] = totals[row.Currency].Add(total)

		values := []interface{}{
			row.ApprovalID,
			row.Vendor,
			row.InvoiceNumber,
			row.InvoiceDate,
			total.InexactFloat64(),
			row.Currency,
			row.Confidence,
			row.ApprovalType,
			row.ApprovedBy,
			formatTime(row.ApprovedAt),
			row.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := file.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	next := len(rows) + 3
	for _, currency := range currencies {
		cell, _ := excelize.CoordinatesToCellName(4, next)
		summary := []interface{}{"Total", totals[currency].InexactFloat64(), currency}
		if err := file.SetSheetRow(SheetName, cell, &summary); err != nil {
			return nil, fmt.Errorf("failed to write totals: %w", err)
		}
		next++
	}

	if err := file.SetColWidth(SheetName, "A", "A", 38); err != nil {
		e.logger.Warn("Failed to set column width", zap.Error(err))
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Approved invoices exported", zap.Int("rows", len(rows)))
	return buf.Bytes(), nil
}

func (e *XLSXExporter) setStyle(file *excelize.File, from, to string, style int) {
	if err := file.SetCellStyle(SheetName, from, to, style); err != nil {
		e.logger.Warn("Failed to set cell style",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var _ port.ReportExporter = (*XLSXExporter)(nil)
