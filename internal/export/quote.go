// Package export renders order quotes as XLSX workbooks.
package export

import (
	"errors"
	"fmt"

	"github.com/jonathan/print-estimator/internal/types"
	"github.com/xuri/excelize/v2"
)

// Sheet names in a quote workbook
const (
	QuoteSheet = "Quote"
	AuditSheet = "Audit"
)

const timeLayout = "2006-01-02 15:04:05"

// QuoteWorkbook builds a workbook with the specification and price breakdown on
// the Quote sheet and the audit trail on the Audit sheet. estimate may be nil for
// orders that were never priced.
func QuoteWorkbook(order *types.Order, estimate *types.Estimate, audit []types.AuditEntry) (*excelize.File, error) {
	if order == nil {
		return nil, errors.New("order is required")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", QuoteSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(AuditSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create audit sheet: %w", err)
	}

	writeQuote(f, order, estimate)
	writeAudit(f, audit)

	idx, _ := f.GetSheetIndex(QuoteSheet)
	f.SetActiveSheet(idx)
	return f, nil
}

// QuoteXLSX returns QuoteWorkbook as bytes
func QuoteXLSX(order *types.Order, estimate *types.Estimate, audit []types.AuditEntry) ([]byte, error) {
	f, err := QuoteWorkbook(order, estimate, audit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeQuote(f *excelize.File, order *types.Order, estimate *types.Estimate) {
	row := 1
	write := func(label string, v any) {
		_ = f.SetCellValue(QuoteSheet, cell(1, row), label)
		_ = f.SetCellValue(QuoteSheet, cell(2, row), v)
		row++
	}

	write("Order ID", order.ID.String())
	write("Status", string(order.Status))
	write("Input Type", string(order.InputType))
	write("Created", order.CreatedAt.UTC().Format(timeLayout))
	row++

	if spec := order.Specification; spec != nil {
		_ = f.SetCellValue(QuoteSheet, cell(1, row), "Specification")
		row++
		write("Quantity", spec.Quantity)
		write("Size (mm)", fmt.Sprintf("%g x %g", spec.WidthMM, spec.HeightMM))
		write("Material (GSM)", spec.MaterialGSM)
		write("Sides", string(spec.Sides))
		write("Finishing", string(spec.Finishing))
		write("Print Method", string(spec.PrintMethod))
		write("Turnaround (days)", spec.TurnaroundDays)
		if spec.ArtworkReference != "" {
			write("Artwork", spec.ArtworkReference)
		}
		row++
	}

	if estimate != nil {
		b := estimate.Pricing.Breakdown
		_ = f.SetCellValue(QuoteSheet, cell(1, row), fmt.Sprintf("Estimate v%d", estimate.Version))
		row++
		write("Paper", b.PaperCost)
		write("Printing", b.PrintingCost)
		write("Setup", b.SetupCost)
		write("Finishing", b.FinishingCost)
		write("Rush Fee", b.RushFee)
		write("Margin", b.Margin)
		write("Total", estimate.TotalPrice)
		if src := estimate.Pricing.Source; src != "" {
			write("Source", string(src))
		}
		if note := estimate.Pricing.CorrectionNote; note != "" {
			write("Note", note)
		}
		row++
	}

	if v := order.Validation; v != nil {
		status := "OK"
		if !v.IsValid {
			status = "Needs review"
		}
		write("Validation", status)
		for _, flag := range v.Flags {
			write(string(flag), flag.Message())
		}
	}

	_ = f.SetColWidth(QuoteSheet, "A", "A", 22)
	_ = f.SetColWidth(QuoteSheet, "B", "B", 48)
}

func writeAudit(f *excelize.File, audit []types.AuditEntry) {
	headers := []string{"Time", "Action", "Actor", "Notes"}
	for i, h := range headers {
		_ = f.SetCellValue(AuditSheet, cell(i+1, 1), h)
	}
	for i, e := range audit {
		row := i + 2
		_ = f.SetCellValue(AuditSheet, cell(1, row), e.CreatedAt.UTC().Format(timeLayout))
		_ = f.SetCellValue(AuditSheet, cell(2, row), e.Action)
		_ = f.SetCellValue(AuditSheet, cell(3, row), e.Actor)
		_ = f.SetCellValue(AuditSheet, cell(4, row), e.Notes)
	}
	_ = f.SetColWidth(AuditSheet, "A", "A", 20)
	_ = f.SetColWidth(AuditSheet, "B", "C", 22)
	_ = f.SetColWidth(AuditSheet, "D", "D", 60)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
