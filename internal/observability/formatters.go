// Package observability provides logging setup and formatted output for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/print-estimator/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintSpecification outputs the normalized print specification.
func (p *Printer) PrintSpecification(spec *types.Specification) {
	if spec == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Quantity:    %d\n", spec.Quantity))
	sb.WriteString(fmt.Sprintf("Size:        %.0f x %.0f mm\n", spec.WidthMM, spec.HeightMM))
	sb.WriteString(fmt.Sprintf("Material:    %d gsm\n", spec.MaterialGSM))
	sb.WriteString(fmt.Sprintf("Sides:       %s\n", spec.Sides))
	sb.WriteString(fmt.Sprintf("Finishing:   %s\n", spec.Finishing))
	sb.WriteString(fmt.Sprintf("Method:      %s\n", spec.PrintMethod))
	sb.WriteString(fmt.Sprintf("Turnaround:  %d days", spec.TurnaroundDays))
	if spec.HasArtwork() {
		sb.WriteString(fmt.Sprintf("\nArtwork:     %s", spec.ArtworkReference))
	}

	p.printBox("PRINT SPECIFICATION", sb.String())
}

// PrintPrice outputs the price breakdown and competitor comparison.
func (p *Printer) PrintPrice(price *types.PriceBreakdown) {
	if price == nil {
		return
	}

	b := price.Breakdown
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Paper:       ₹%10.2f\n", b.PaperCost))
	sb.WriteString(fmt.Sprintf("Printing:    ₹%10.2f\n", b.PrintingCost))
	sb.WriteString(fmt.Sprintf("Setup:       ₹%10.2f\n", b.SetupCost))
	sb.WriteString(fmt.Sprintf("Finishing:   ₹%10.2f\n", b.FinishingCost))
	sb.WriteString(fmt.Sprintf("Rush:        ₹%10.2f\n", b.RushFee))
	sb.WriteString(fmt.Sprintf("Margin:      ₹%10.2f\n", b.Margin))
	sb.WriteString(fmt.Sprintf("TOTAL:       ₹%10.2f  (%s)\n", price.TotalPrice, price.Source))

	if len(price.Competitors) > 0 {
		sb.WriteString("\nCompetitors:\n")
		count := min(len(price.Competitors), maxItemsToShow)
		for i := 0; i < count; i++ {
			c := price.Competitors[i]
			sb.WriteString(fmt.Sprintf("  • %s: ₹%.2f\n", c.Name, c.Price))
		}
	}
	if price.CorrectionNote != "" {
		sb.WriteString(fmt.Sprintf("\nNote: %s\n", price.CorrectionNote))
	}

	p.printBox("PRICE BREAKDOWN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintValidation outputs any feasibility flags found.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintValidation(result *types.ValidationResult) {
	if result == nil {
		return
	}
	if len(result.Flags) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO ISSUES FOUND")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	advisory := make(map[types.Flag]bool, len(result.Advisory))
	for _, f := range result.Advisory {
		advisory[f] = true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d issues:\n\n", len(result.Flags)))
	for i, f := range result.Flags {
		sb.WriteString(fmt.Sprintf("⚠ %s", f))
		if advisory[f] {
			sb.WriteString(" (advisory)")
		}
		sb.WriteString(fmt.Sprintf("\n  %s\n", f.Message()))
		if i < len(result.Flags)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("VALIDATION FLAGS", strings.TrimSuffix(sb.String(), "\n"))
}
