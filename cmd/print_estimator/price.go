package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jonathan/print-estimator/internal/config"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/parsing"
	"github.com/jonathan/print-estimator/internal/pricing"
	"github.com/jonathan/print-estimator/internal/types"
	"github.com/jonathan/print-estimator/internal/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var priceCmd = &cobra.Command{
	Use:   "price [spec.json]",
	Short: "Price a JSON specification with the deterministic model",
	Long: `Normalize a JSON specification (from a file or stdin), price it with the deterministic
model and run the feasibility rules. Nothing is stored and no generative model is called.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPriceCmd,
}

var priceJSON bool

func init() {
	priceCmd.Flags().BoolVar(&priceJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(priceCmd)
}

// priceResult is the output of the price command
type priceResult struct {
	Specification types.Specification    `json:"specification"`
	Price         types.PriceBreakdown   `json:"price"`
	Validation    types.ValidationResult `json:"validation"`
}

func runPriceCmd(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read specification: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging, logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	result, err := priceSpecification(cfg, string(data), logger)
	if err != nil {
		return err
	}
	return writePrice(cmd.OutOrStdout(), result, priceJSON)
}

// priceSpecification decodes, normalizes, prices and validates one JSON specification
func priceSpecification(cfg *config.Config, input string, logger *zap.Logger) (*priceResult, error) {
	fields, err := parsing.StructuredExtractor{}.Extract(context.Background(), input, types.InputText)
	if err != nil {
		return nil, err
	}

	spec := parsing.Normalize(fields, types.InputText)
	model := pricing.NewModel(cfg.Rates, logger)
	price := model.Price(spec)
	return &priceResult{
		Specification: spec,
		Price:         price,
		Validation:    validation.NewValidator(cfg.Rules, model).Validate(spec, price),
	}, nil
}

func writePrice(out io.Writer, r *priceResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	printer := observability.NewPrinter(out)
	printer.PrintSpecification(&r.Specification)
	printer.PrintPrice(&r.Price)
	printer.PrintValidation(&r.Validation)
	return nil
}
