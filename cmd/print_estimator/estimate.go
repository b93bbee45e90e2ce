package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jonathan/print-estimator/internal/ingestion"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/pipeline"
	"github.com/jonathan/print-estimator/internal/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [files...]",
	Short: "Estimate one or more print orders",
	Long: `Run the estimation pipeline for each order file, or for standard input when no file is given.

The input type is detected from the file extension (.pdf, .png/.jpg, .eml, otherwise text)
unless --type is set. Several files are estimated concurrently, bounded by --workers.
With --no-llm, or when no API key is configured, each input must be a JSON specification.`,
	RunE: runEstimateCmd,
}

var (
	estimateType    string
	estimateNoLLM   bool
	estimateJSON    bool
	estimateWorkers int
	estimateVerbose bool
	estimateWebhook string
)

func init() {
	estimateCmd.Flags().StringVarP(&estimateType, "type", "t", "", "Input type: text, email, pdf or image (default: detect from extension)")
	estimateCmd.Flags().BoolVar(&estimateNoLLM, "no-llm", false, "Skip generative collaborators; inputs must be JSON specifications")
	estimateCmd.Flags().BoolVar(&estimateJSON, "json", false, "Print results as JSON")
	estimateCmd.Flags().IntVarP(&estimateWorkers, "workers", "w", 4, "Maximum concurrent estimations")
	estimateCmd.Flags().BoolVarP(&estimateVerbose, "verbose", "v", false, "Print pipeline progress to stderr")
	estimateCmd.Flags().StringVar(&estimateWebhook, "webhook", "", "Webhook URL for this run (overrides webhook.url)")
	rootCmd.AddCommand(estimateCmd)
}

// estimateInput is one order to estimate
type estimateInput struct {
	Source    string
	InputType types.InputType
	Content   []byte
	MIMEType  string
	Meta      *ingestion.Metadata
}

// estimateOutcome is the result for one input, in input order
type estimateOutcome struct {
	Source string              `json:"source"`
	Input  *ingestion.Metadata `json:"input,omitempty"`
	Result *pipeline.Result    `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func runEstimateCmd(cmd *cobra.Command, args []string) error {
	if estimateType != "" && !types.InputType(estimateType).Valid() {
		return fmt.Errorf("invalid --type %q: must be text, email, pdf or image", estimateType)
	}

	if len(args) == 0 && cmd.InOrStdin() == os.Stdin && stdinIsTerminal() {
		return fmt.Errorf("no input: pass order files or pipe an order on stdin")
	}

	inputs, err := readInputs(args, cmd.InOrStdin(), types.InputType(estimateType))
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, estimateNoLLM)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []pipeline.Option
	if estimateVerbose {
		opts = append(opts, pipeline.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	}
	estimator, err := a.estimator(opts...)
	if err != nil {
		return err
	}

	outcomes := estimateAll(cmd.Context(), estimator, inputs, estimateWorkers, estimateWebhook)
	if err := writeOutcomes(cmd.OutOrStdout(), outcomes, estimateJSON); err != nil {
		return err
	}
	return summarize(outcomes)
}

// readInputs loads each file, or stdin when paths is empty.
// A non-empty override replaces the detected input type.
func readInputs(paths []string, stdin io.Reader, override types.InputType) ([]estimateInput, error) {
	if len(paths) == 0 {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		inputType := types.InputText
		if override != "" {
			inputType = override
		}
		if inputType.IsUpload() {
			return nil, fmt.Errorf("%s input must be given as a file", inputType)
		}
		cleaned := []byte(ingestion.Clean(string(content), inputType))
		return []estimateInput{{
			Source:    "stdin",
			InputType: inputType,
			Content:   cleaned,
			Meta:      ingestion.NewMetadata(cleaned, "stdin", inputType),
		}}, nil
	}

	inputs := make([]estimateInput, 0, len(paths))
	for _, path := range paths {
		content, meta, err := ingestion.IngestFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if override != "" {
			meta = meta.WithType(override)
		}
		inputs = append(inputs, estimateInput{
			Source:    meta.Source,
			InputType: meta.InputType,
			Content:   content,
			MIMEType:  ingestion.MIMEType(path),
			Meta:      meta,
		})
	}
	return inputs, nil
}

// estimateAll runs every input with at most workers in flight.
// One failing input never stops the others.
func estimateAll(ctx context.Context, e *pipeline.Estimator, inputs []estimateInput, workers int, webhook string) []estimateOutcome {
	outcomes := make([]estimateOutcome, len(inputs))

	var g errgroup.Group
	g.SetLimit(max(1, workers))
	for i, in := range inputs {
		g.Go(func() error {
			req := pipeline.Request{
				InputType:  in.InputType,
				Actor:      "cli",
				WebhookURL: webhook,
			}
			if in.InputType.IsUpload() {
				req.Document = in.Content
				req.MIMEType = in.MIMEType
			} else {
				req.RawInput = string(in.Content)
			}

			result, err := e.Estimate(ctx, req)
			outcomes[i] = estimateOutcome{Source: in.Source, Input: in.Meta, Result: result}
			if err != nil {
				outcomes[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func writeOutcomes(out io.Writer, outcomes []estimateOutcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if len(outcomes) == 1 {
			return enc.Encode(outcomes[0])
		}
		return enc.Encode(outcomes)
	}

	printer := observability.NewPrinter(out)
	for i, o := range outcomes {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if o.Error != "" {
			fmt.Fprintf(out, "✗ %s: %s\n", o.Source, o.Error)
			continue
		}
		r := o.Result
		fmt.Fprintf(out, "✓ %s: order %s, estimate v%d, status %s\n", o.Source, r.OrderID, r.EstimateVersion, r.Status)
		printer.PrintSpecification(&r.Specification)
		printer.PrintPrice(&r.Price)
		printer.PrintValidation(&r.Validation)
	}
	return nil
}

func summarize(outcomes []estimateOutcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d estimates failed", failed, len(outcomes))
	}
	return nil
}

// progressPrinter serializes progress lines from concurrent runs
func progressPrinter(w io.Writer) pipeline.ProgressCallback {
	var mu sync.Mutex
	return func(ev pipeline.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, "[%s] %s (order %s)\n", ev.Stage, ev.Message, ev.OrderID)
	}
}

// stdinIsTerminal reports whether stdin is interactive
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
