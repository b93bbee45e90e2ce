// Package ingestion reads raw order inputs and cleans them before extraction.
package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jonathan/print-estimator/internal/types"
)

var (
	multiSpace     = regexp.MustCompile(`[ \t]+`)
	excessiveBlank = regexp.MustCompile(`\n\n\n+`)
	replyHeader    = regexp.MustCompile(`(?i)^on .+ wrote:$`)
)

// CleanText cleans and normalizes text content while preserving line structure
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	cleanedLines := make([]string, 0, len(lines))
	for _, line := range lines {
		cleanedLines = append(cleanedLines, cleanLine(line))
	}

	result := strings.Join(cleanedLines, "\n")
	result = excessiveBlank.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// cleanLine trims trailing space and collapses runs of spaces inside the line
func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if strings.TrimSpace(line) == "" {
		return ""
	}

	trimmed := strings.TrimLeft(line, " \t")
	if isBulletLine(trimmed) {
		return trimmed
	}
	return multiSpace.ReplaceAllString(trimmed, " ")
}

// isBulletLine checks if a line is a bullet list item
func isBulletLine(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") ||
		strings.HasPrefix(line, "• ") || strings.HasPrefix(line, "· ")
}

// CleanEmail cleans an email body and drops quoted replies and the signature block
func CleanEmail(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "--" || replyHeader.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}
	return CleanText(strings.Join(kept, "\n"))
}

// Clean applies the cleaning appropriate for the input type
func Clean(raw string, inputType types.InputType) string {
	if inputType == types.InputEmail {
		return CleanEmail(raw)
	}
	return CleanText(raw)
}

// DetectInputType infers the input type from a file name.
// Unknown extensions are treated as plain text.
func DetectInputType(path string) types.InputType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return types.InputPDF
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		return types.InputImage
	case ".eml":
		return types.InputEmail
	default:
		return types.InputText
	}
}

// MIMEType returns the MIME type sent to the model for an uploaded file
func MIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "text/plain"
	}
}

// IngestFromFile reads an order file. Text and email files are cleaned;
// PDF and image files are returned as raw bytes for document transcription.
func IngestFromFile(path string) ([]byte, *Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	inputType := DetectInputType(path)
	if !inputType.IsUpload() {
		content = []byte(Clean(string(content), inputType))
	}

	metadata := NewMetadata(content, filepath.Base(path), inputType)
	return content, metadata, nil
}
