package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jonathan/print-estimator/internal/types"
)

// Metadata describes one ingested order input. Batch output carries it so a
// result can be traced back to the exact bytes that produced it.
type Metadata struct {
	Source    string          `json:"source"` // file name or "stdin"
	InputType types.InputType `json:"input_type"`
	MIMEType  string          `json:"mime_type,omitempty"`
	Bytes     int             `json:"bytes"`
	SHA256    string          `json:"sha256"`
	ReadAt    time.Time       `json:"read_at"`
}

// NewMetadata describes content read from source. Upload types also record a MIME type.
func NewMetadata(content []byte, source string, inputType types.InputType) *Metadata {
	m := &Metadata{
		Source:    source,
		InputType: inputType,
		Bytes:     len(content),
		SHA256:    digest(content),
		ReadAt:    time.Now().UTC(),
	}
	if inputType.IsUpload() {
		m.MIMEType = MIMEType(source)
	}
	return m
}

// WithType returns a copy of m for content treated as inputType
func (m Metadata) WithType(inputType types.InputType) *Metadata {
	m.InputType = inputType
	if !inputType.IsUpload() {
		m.MIMEType = ""
	} else if m.MIMEType == "" {
		m.MIMEType = MIMEType(m.Source)
	}
	return &m
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
