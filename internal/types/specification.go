// Package types provides type definitions for structured data used throughout the print-estimator system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strconv"
	"strings"
)

// Sides is the number of printed sides per sheet
type Sides string

// Sides values
const (
	SidesSingle Sides = "single"
	SidesDouble Sides = "double"
)

// Finishing is the post-press finishing operation
type Finishing string

// Finishing values
const (
	FinishingLaminate Finishing = "laminate"
	FinishingCut      Finishing = "cut"
	FinishingFold     Finishing = "fold"
	FinishingNone     Finishing = "none"
)

// PrintMethod is the press technology used for the run
type PrintMethod string

// PrintMethod values
const (
	PrintMethodDigital PrintMethod = "digital"
	PrintMethodOffset  PrintMethod = "offset"
)

// InputType describes where the raw job description came from
type InputType string

// InputType values
const (
	InputText  InputType = "text"
	InputEmail InputType = "email"
	InputPDF   InputType = "pdf"
	InputImage InputType = "image"
)

// Artwork references assigned when the input itself is the artwork
const (
	ArtworkUploadedPDF   = "uploaded_pdf"
	ArtworkUploadedImage = "uploaded_image"
)

// Valid reports whether t is one of the known input types
func (t InputType) Valid() bool {
	switch t {
	case InputText, InputEmail, InputPDF, InputImage:
		return true
	}
	return false
}

// IsUpload reports whether the input arrived as an uploaded document or image
func (t InputType) IsUpload() bool {
	return t == InputPDF || t == InputImage
}

// Specification is the normalized description of a print job.
// Every downstream stage (pricing, reconciliation, validation) consumes this shape.
type Specification struct {
	Quantity         int         `json:"quantity"`
	WidthMM          float64     `json:"width_mm"`
	HeightMM         float64     `json:"height_mm"`
	MaterialGSM      int         `json:"material_gsm"`
	Sides            Sides       `json:"sides"`
	Finishing        Finishing   `json:"finishing"`
	PrintMethod      PrintMethod `json:"print_method"`
	TurnaroundDays   int         `json:"turnaround_days"`
	ArtworkReference string      `json:"artwork_reference,omitempty"`
}

// HasArtwork reports whether any artwork was supplied with the job
func (s Specification) HasArtwork() bool {
	return strings.TrimSpace(s.ArtworkReference) != ""
}

// TextValues returns every field value rendered as lower-case text.
// Used for keyword matching across the whole specification.
func (s Specification) TextValues() []string {
	values := []string{
		strconv.Itoa(s.Quantity),
		strconv.FormatFloat(s.WidthMM, 'f', -1, 64),
		strconv.FormatFloat(s.HeightMM, 'f', -1, 64),
		strconv.Itoa(s.MaterialGSM),
		string(s.Sides),
		string(s.Finishing),
		string(s.PrintMethod),
		strconv.Itoa(s.TurnaroundDays),
	}
	if s.ArtworkReference != "" {
		values = append(values, s.ArtworkReference)
	}
	for i, v := range values {
		values[i] = strings.ToLower(v)
	}
	return values
}
