// Package schemas checks generative collaborator payloads against the embedded JSON Schemas.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	schemafiles "github.com/jonathan/print-estimator/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// maxReported caps the violations kept on a ValidationError
const maxReported = 10

// Violation is one schema failure at a JSON path
type Violation struct {
	Field   string
	Message string
}

// ValidationError lists why a payload did not match its schema
type ValidationError struct {
	Schema     string
	Violations []Violation
	Truncated  int // violations dropped beyond maxReported
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	msg := fmt.Sprintf("payload does not match %s: %s", e.Schema, strings.Join(parts, "; "))
	if e.Truncated > 0 {
		msg += fmt.Sprintf(" (and %d more)", e.Truncated)
	}
	return msg
}

// SchemaLoadError means the schema or the document could not be loaded at all
type SchemaLoadError struct {
	Schema  string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("schema %s: %s: %v", e.Schema, e.Message, e.Cause)
	}
	return fmt.Sprintf("schema %s: %s", e.Schema, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// compiled caches schemas by file name
var compiled sync.Map

// Validate checks payload against an embedded schema,
// e.g. Validate(schemafiles.PriceCandidate, payload).
func Validate(schema, payload string) error {
	s, err := compile(schema)
	if err != nil {
		return err
	}

	result, err := s.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return &SchemaLoadError{Schema: schema, Message: "payload is not JSON", Cause: err}
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	ve := &ValidationError{Schema: schema}
	for i, desc := range errs {
		if i == maxReported {
			ve.Truncated = len(errs) - maxReported
			break
		}
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Violations = append(ve.Violations, Violation{Field: field, Message: desc.Description()})
	}
	return ve
}

// CompileAll compiles every embedded schema so a broken file fails at startup
func CompileAll() error {
	for _, name := range schemafiles.Names() {
		if _, err := compile(name); err != nil {
			return err
		}
	}
	return nil
}

func compile(name string) (*gojsonschema.Schema, error) {
	if s, ok := compiled.Load(name); ok {
		return s.(*gojsonschema.Schema), nil
	}

	content, err := schemafiles.Get(name)
	if err != nil {
		return nil, &SchemaLoadError{Schema: name, Message: "not embedded", Cause: err}
	}

	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, &SchemaLoadError{Schema: name, Message: "did not compile", Cause: err}
	}

	actual, _ := compiled.LoadOrStore(name, s)
	return actual.(*gojsonschema.Schema), nil
}
