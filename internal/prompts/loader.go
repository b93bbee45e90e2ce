// Package prompts holds the prompt templates sent to generative collaborators.
// Templates live in JSON files embedded at compile time, one file per pipeline stage.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Prompt files, one per stage
const (
	ExtractionFile = "extraction.json"
	PricingFile    = "pricing.json"
	ValidationFile = "validation.json"
)

//go:embed *.json
var promptFiles embed.FS

var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z]+)\}\}`)

var (
	loadOnce sync.Once
	library  map[string]map[string]string
	loadErr  error
)

// load parses every embedded file once. A malformed file fails every lookup.
func load() (map[string]map[string]string, error) {
	loadOnce.Do(func() {
		entries, err := promptFiles.ReadDir(".")
		if err != nil {
			loadErr = fmt.Errorf("failed to list prompt files: %w", err)
			return
		}

		library = make(map[string]map[string]string, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if path.Ext(name) != ".json" {
				continue
			}
			data, err := promptFiles.ReadFile(name)
			if err != nil {
				loadErr = fmt.Errorf("failed to read prompt file %s: %w", name, err)
				return
			}
			var templates map[string]string
			if err := json.Unmarshal(data, &templates); err != nil {
				loadErr = fmt.Errorf("failed to parse prompt file %s: %w", name, err)
				return
			}
			library[name] = templates
		}
	})
	return library, loadErr
}

// Get returns the raw template stored under key in file
func Get(file, key string) (string, error) {
	lib, err := load()
	if err != nil {
		return "", err
	}
	templates, ok := lib[file]
	if !ok {
		return "", fmt.Errorf("prompt file %s not found", file)
	}
	template, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, file)
	}
	return template, nil
}

// Render fills the {{.Name}} placeholders of a template. A placeholder left
// without a value is an error, so a prompt never reaches the model half-built.
func Render(file, key string, data map[string]string) (string, error) {
	template, err := Get(file, key)
	if err != nil {
		return "", err
	}

	var missing []string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		value, ok := data[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s: no value for %s", file, key, strings.Join(missing, ", "))
	}
	return out, nil
}

// InputNote returns the extraction hint for an input type.
// The bool is false when no note exists for it.
func InputNote(inputType string) (string, bool) {
	note, err := Get(ExtractionFile, "input-note-"+inputType)
	if err != nil {
		return "", false
	}
	return note, true
}

// Keys lists the template keys of file in sorted order
func Keys(file string) ([]string, error) {
	lib, err := load()
	if err != nil {
		return nil, err
	}
	templates, ok := lib[file]
	if !ok {
		return nil, fmt.Errorf("prompt file %s not found", file)
	}
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
