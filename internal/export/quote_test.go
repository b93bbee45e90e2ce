package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/print-estimator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testOrder() *types.Order {
	validation := types.NewValidationResult(types.FlagRushConflict)
	return &types.Order{
		ID:        uuid.MustParse("6f1c2f7e-5d43-4f7a-9e0c-2b3a4c5d6e7f"),
		InputType: types.InputEmail,
		Status:    types.StatusReview,
		Specification: &types.Specification{
			Quantity:       500,
			WidthMM:        210,
			HeightMM:       297,
			MaterialGSM:    300,
			Sides:          types.SidesDouble,
			Finishing:      types.FinishingLaminate,
			PrintMethod:    types.PrintMethodDigital,
			TurnaroundDays: 1,
		},
		Validation: &validation,
		CreatedAt:  time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

// findValue returns column B of the first row whose column A equals label
func findValue(t *testing.T, f *excelize.File, sheet, label string) string {
	t.Helper()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	for _, r := range rows {
		if len(r) >= 2 && r[0] == label {
			return r[1]
		}
	}
	t.Fatalf("label %q not found on sheet %s", label, sheet)
	return ""
}

func TestQuoteWorkbook(t *testing.T) {
	order := testOrder()
	estimate := &types.Estimate{
		Version: 2,
		Pricing: types.PriceBreakdown{
			Breakdown: types.Components{
				PaperCost: 100, PrintingCost: 200, SetupCost: 300,
				FinishingCost: 50, RushFee: 75, Margin: 145,
			},
			Source: types.SourceDeterministic,
		},
		TotalPrice: 870,
	}
	audit := []types.AuditEntry{
		{Action: types.AuditOrderCreated, Actor: types.ActorSystem, CreatedAt: order.CreatedAt},
		{Action: types.AuditEstimateCreated, Actor: types.ActorSystem, Notes: "Estimate v2 created: ₹870.00", CreatedAt: order.CreatedAt},
	}

	f, err := QuoteWorkbook(order, estimate, audit)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{QuoteSheet, AuditSheet}, f.GetSheetList())
	assert.Equal(t, order.ID.String(), findValue(t, f, QuoteSheet, "Order ID"))
	assert.Equal(t, "review", findValue(t, f, QuoteSheet, "Status"))
	assert.Equal(t, "500", findValue(t, f, QuoteSheet, "Quantity"))
	assert.Equal(t, "210 x 297", findValue(t, f, QuoteSheet, "Size (mm)"))
	assert.Equal(t, "870", findValue(t, f, QuoteSheet, "Total"))
	assert.Equal(t, "deterministic", findValue(t, f, QuoteSheet, "Source"))
	assert.Equal(t, "Needs review", findValue(t, f, QuoteSheet, "Validation"))
	assert.Equal(t, types.FlagRushConflict.Message(), findValue(t, f, QuoteSheet, "rush_conflict"))

	rows, err := f.GetRows(AuditSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Time", "Action", "Actor", "Notes"}, rows[0])
	assert.Equal(t, "2024-03-01 09:30:00", rows[1][0])
	assert.Equal(t, types.AuditEstimateCreated, rows[2][1])
	assert.Equal(t, "Estimate v2 created: ₹870.00", rows[2][3])
}

func TestQuoteWorkbook_NoEstimate(t *testing.T) {
	order := testOrder()
	order.Specification = nil
	order.Validation = nil

	f, err := QuoteWorkbook(order, nil, nil)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(QuoteSheet)
	require.NoError(t, err)
	for _, r := range rows {
		if len(r) > 0 {
			assert.NotEqual(t, "Total", r[0])
		}
	}
}

func TestQuoteWorkbook_NilOrder(t *testing.T) {
	_, err := QuoteWorkbook(nil, nil, nil)
	assert.Error(t, err)
}

func TestQuoteXLSX_RoundTrip(t *testing.T) {
	data, err := QuoteXLSX(testOrder(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, "email", findValue(t, f, QuoteSheet, "Input Type"))
}
