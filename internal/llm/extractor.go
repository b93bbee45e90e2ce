// Package llm - extractor.go provides generic LLM-based structured extraction.
package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based content extraction.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "PrintSpecification")
	Description string        // System prompt preamble describing the extraction task
	Rules       []string      // Defaulting rules appended after the field list
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "int", "float", "\"single|double\""
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	if len(schema.Rules) > 0 {
		sb.WriteString("Rules:\n")
		for _, rule := range schema.Rules {
			sb.WriteString("- ")
			sb.WriteString(rule)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// PrintSpecificationSchema returns the extraction schema for print job descriptions.
func PrintSpecificationSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "PrintSpecification",
		Description: `You are a professional print shop estimator.
From the following input, extract or estimate the print order specifications.`,
		Rules: []string{
			"If quantity is missing, default to 100",
			"If dimensions are missing, assume A4 (210mm x 297mm)",
			"If paper material is missing, assume 80gsm",
			"If sides are missing, assume single-sided",
			"Choose print_method: digital for low quantity, offset for high quantity",
			"If turnaround is missing, assume 3 days",
			"Convert inches or centimetres to millimetres",
		},
		Fields: []SchemaField{
			{Name: "quantity", Type: "int", Description: "Number of units to print", Required: true},
			{Name: "width_mm", Type: "float", Description: "Sheet width in millimetres", Required: true},
			{Name: "height_mm", Type: "float", Description: "Sheet height in millimetres", Required: true},
			{Name: "material_gsm", Type: "int", Description: "Paper weight in gsm", Required: true},
			{Name: "sides", Type: "\"single|double\"", Required: true},
			{Name: "finishing", Type: "\"laminate|cut|fold|none\"", Required: true},
			{Name: "print_method", Type: "\"digital|offset\"", Required: true},
			{Name: "turnaround_days", Type: "int", Description: "Working days until delivery", Required: true},
			{Name: "artwork_reference", Type: "string | null", Description: "Link or file name of supplied artwork, null if none"},
		},
	}
}
