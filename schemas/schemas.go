// Package schemas embeds the JSON Schemas for generative collaborator payloads.
package schemas

import (
	"embed"
	"fmt"
)

// Schema file names
const (
	PriceCandidate = "price_candidate.schema.json"
	Specification  = "specification.schema.json"
	Advice         = "advice.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Get returns the content of an embedded schema file
func Get(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("schema %s not found: %w", name, err)
	}
	return string(data), nil
}

// Names returns every embedded schema file name
func Names() []string {
	return []string{PriceCandidate, Specification, Advice}
}
