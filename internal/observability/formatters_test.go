package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/print-estimator/internal/config"
	"github.com/jonathan/print-estimator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestPrintSpecification(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSpecification(&types.Specification{
		Quantity:         500,
		WidthMM:          210,
		HeightMM:         297,
		MaterialGSM:      130,
		Sides:            types.SidesDouble,
		Finishing:        types.FinishingFold,
		PrintMethod:      types.PrintMethodDigital,
		TurnaroundDays:   5,
		ArtworkReference: types.ArtworkUploadedPDF,
	})
	output := buf.String()

	assert.Contains(t, output, "PRINT SPECIFICATION")
	assert.Contains(t, output, "500")
	assert.Contains(t, output, "210 x 297 mm")
	assert.Contains(t, output, "130 gsm")
	assert.Contains(t, output, "fold")
	assert.Contains(t, output, "uploaded_pdf")
}

func TestPrintSpecification_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSpecification(nil)
	assert.Empty(t, buf.String())
}

func TestPrintPrice(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPrice(&types.PriceBreakdown{
		TotalPrice:     1234.5,
		Breakdown:      types.Components{PaperCost: 100, PrintingCost: 900, SetupCost: 234.5},
		Competitors:    []types.Competitor{{Name: "PrintMaster Pro", Price: 1357.95}},
		CorrectionNote: "generative pricing corrected (was 99.00)",
		Source:         types.SourceDeterministic,
	})
	output := buf.String()

	assert.Contains(t, output, "PRICE BREAKDOWN")
	assert.Contains(t, output, "1234.50")
	assert.Contains(t, output, "deterministic")
	assert.Contains(t, output, "PrintMaster Pro")
	assert.Contains(t, output, "corrected")
}

func TestPrintValidation(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	result := types.NewValidationResult(types.FlagRushConflict, types.FlagLowResArt)
	result.Advisory = []types.Flag{types.FlagLowResArt}
	p.PrintValidation(&result)
	output := buf.String()

	assert.Contains(t, output, "VALIDATION FLAGS")
	assert.Contains(t, output, "Found 2 issues")
	assert.Contains(t, output, "rush_conflict")
	assert.Contains(t, output, "(advisory)")
}

func TestPrintValidation_Clean(t *testing.T) {
	var buf bytes.Buffer
	result := types.NewValidationResult()
	NewPrinter(&buf).PrintValidation(&result)
	assert.Contains(t, buf.String(), "NO ISSUES FOUND")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSpecification(&types.Specification{
		Quantity:         1,
		ArtworkReference: "https://example.com/a/very/long/path/that/does/not/fit/in/the/box.pdf",
	})
	assert.Contains(t, buf.String(), "...")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "warning", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "console"}, "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger(config.LoggingConfig{Level: "warn"}, "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "override wins")

	_, err = NewLogger(config.LoggingConfig{Format: "xml"}, "")
	assert.Error(t, err)
}

func TestNewLogger_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "estimator.log")
	logger, err := NewLogger(config.LoggingConfig{OutputFile: path}, "")
	require.NoError(t, err)

	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
