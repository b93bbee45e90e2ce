package parsing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/print-estimator/internal/ingestion"
	"github.com/jonathan/print-estimator/internal/llm"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/prompts"
	"github.com/jonathan/print-estimator/internal/schemas"
	"github.com/jonathan/print-estimator/internal/types"
	schemafiles "github.com/jonathan/print-estimator/schemas"
	"go.uber.org/zap"
)

// Extractor turns raw order input into a specification-shaped mapping
type Extractor interface {
	Extract(ctx context.Context, raw string, inputType types.InputType) (map[string]any, error)
}

// Transcriber reads an uploaded PDF or image and returns its text content
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, mimeType string, inputType types.InputType) (string, error)
}

// LLMExtractor extracts specifications with a generative model
type LLMExtractor struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMExtractor creates an extractor backed by client
func NewLLMExtractor(client llm.Client, logger *zap.Logger) *LLMExtractor {
	return &LLMExtractor{client: client, logger: observability.OrNop(logger)}
}

// Extract cleans the input, prompts the model and returns the decoded mapping.
// Failures are reported as *ExtractionError.
func (e *LLMExtractor) Extract(ctx context.Context, raw string, inputType types.InputType) (map[string]any, error) {
	cleaned := ingestion.Clean(raw, inputType)
	if cleaned == "" {
		return nil, &ExtractionError{Message: "input is empty"}
	}
	if e.client == nil {
		return nil, &ExtractionError{Message: "no generative client configured"}
	}

	prompt, err := buildExtractionPrompt(cleaned, inputType)
	if err != nil {
		return nil, &ExtractionError{Message: "failed to build prompt", Cause: err}
	}

	resp, err := e.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, &ExtractionError{Message: "failed to generate content from LLM", Cause: err}
	}

	fields, err := DecodeExtraction(resp)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("extracted specification fields",
		zap.String("op", "parsing.Extract"),
		zap.String("input_type", string(inputType)),
		zap.Int("fields", len(fields)))
	return fields, nil
}

// buildExtractionPrompt combines the specification schema with the per-type input note
func buildExtractionPrompt(text string, inputType types.InputType) (string, error) {
	input := fmt.Sprintf("Input Type: %s\n\n%s", inputType, text)

	note, ok := prompts.InputNote(string(inputType))
	if ok {
		input += "\n\n" + note
	} else if inputType.Valid() {
		return "", fmt.Errorf("no extraction note for input type %s", inputType)
	}

	return llm.BuildExtractionPrompt(llm.PrintSpecificationSchema(), input), nil
}

// DecodeExtraction validates an extraction payload and decodes it into a mapping.
// Numbers are kept as json.Number for the normalizer.
func DecodeExtraction(payload string) (map[string]any, error) {
	cleaned := llm.CleanJSONBlock(payload)
	if err := schemas.Validate(schemafiles.Specification, cleaned); err != nil {
		return nil, &ExtractionError{Message: "response failed schema validation", Cause: err}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, &ExtractionError{Message: "failed to parse JSON response", Cause: err}
	}
	return fields, nil
}

// StructuredExtractor accepts input that is already a JSON specification.
// It backs offline runs where no generative client is configured.
type StructuredExtractor struct{}

// Extract decodes raw as a specification mapping
func (StructuredExtractor) Extract(_ context.Context, raw string, _ types.InputType) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ExtractionError{Message: "input is empty"}
	}
	return DecodeExtraction(raw)
}

// DocumentTranscriber reads uploaded documents through a multimodal model
type DocumentTranscriber struct {
	client llm.DocumentClient
	logger *zap.Logger
}

// NewDocumentTranscriber creates a transcriber backed by client
func NewDocumentTranscriber(client llm.DocumentClient, logger *zap.Logger) *DocumentTranscriber {
	return &DocumentTranscriber{client: client, logger: observability.OrNop(logger)}
}

// Transcribe returns the text content of an uploaded PDF or image
func (t *DocumentTranscriber) Transcribe(ctx context.Context, data []byte, mimeType string, inputType types.InputType) (string, error) {
	if !inputType.IsUpload() {
		return "", &ExtractionError{Message: fmt.Sprintf("input type %q is not a document upload", inputType)}
	}
	if len(data) == 0 {
		return "", &ExtractionError{Message: "uploaded file is empty"}
	}
	if t.client == nil {
		return "", &ExtractionError{Message: "no generative client configured"}
	}

	kind := "image"
	if inputType == types.InputPDF {
		kind = "PDF document"
	}
	prompt, err := prompts.Render(prompts.ExtractionFile, "transcribe-document", map[string]string{"Kind": kind})
	if err != nil {
		return "", &ExtractionError{Message: "failed to build prompt", Cause: err}
	}

	text, err := t.client.GenerateFromDocument(ctx, prompt, data, mimeType, llm.TierStandard)
	if err != nil {
		return "", &ExtractionError{Message: "failed to read uploaded document", Cause: err}
	}

	text = ingestion.CleanText(text)
	if strings.TrimSpace(text) == "" {
		return "", &ExtractionError{Message: "no text content found in uploaded document"}
	}

	t.logger.Debug("transcribed uploaded document",
		zap.String("op", "parsing.Transcribe"),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(data)),
		zap.Int("chars", len(text)))
	return text, nil
}
