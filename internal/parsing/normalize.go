// Package parsing turns raw order input into a normalized print Specification.
package parsing

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/print-estimator/internal/types"
)

// Defaults applied when an extracted field is missing or unusable
const (
	DefaultQuantity       = 100
	DefaultWidthMM        = 210.0
	DefaultHeightMM       = 297.0
	DefaultMaterialGSM    = 80
	DefaultTurnaroundDays = 3

	// OffsetAutoSelectQty is the quantity above which offset is chosen when no usable method was given
	OffsetAutoSelectQty = 500
)

// numberWithUnit matches "300", "300gsm", "4 days", "210.5 mm"
var numberWithUnit = regexp.MustCompile(`^([-+]?\d+(?:\.\d+)?)[a-z"'. ]*$`)

var sidesSynonyms = map[string]types.Sides{
	"single":       types.SidesSingle,
	"single-sided": types.SidesSingle,
	"single-side":  types.SidesSingle,
	"simplex":      types.SidesSingle,
	"one":          types.SidesSingle,
	"one-sided":    types.SidesSingle,
	"1":            types.SidesSingle,
	"double":       types.SidesDouble,
	"double-sided": types.SidesDouble,
	"double-side":  types.SidesDouble,
	"duplex":       types.SidesDouble,
	"both":         types.SidesDouble,
	"both-sides":   types.SidesDouble,
	"two":          types.SidesDouble,
	"two-sided":    types.SidesDouble,
	"2":            types.SidesDouble,
}

var finishingSynonyms = map[string]types.Finishing{
	"laminate":   types.FinishingLaminate,
	"laminated":  types.FinishingLaminate,
	"lamination": types.FinishingLaminate,
	"laminating": types.FinishingLaminate,
	"cut":        types.FinishingCut,
	"cutting":    types.FinishingCut,
	"trim":       types.FinishingCut,
	"trimmed":    types.FinishingCut,
	"trimming":   types.FinishingCut,
	"fold":       types.FinishingFold,
	"folded":     types.FinishingFold,
	"folding":    types.FinishingFold,
	"none":       types.FinishingNone,
	"no":         types.FinishingNone,
	"n/a":        types.FinishingNone,
}

var methodSynonyms = map[string]types.PrintMethod{
	"digital":       types.PrintMethodDigital,
	"digital-print": types.PrintMethodDigital,
	"offset":        types.PrintMethodOffset,
	"offset-litho":  types.PrintMethodOffset,
	"litho":         types.PrintMethodOffset,
	"lithographic":  types.PrintMethodOffset,
}

// Normalize coerces an extracted mapping into a Specification.
// It never fails: unusable values take their defaults, so every numeric field
// is positive and every enum holds an allowed value. Normalize is idempotent
// through SpecificationToMap.
func Normalize(raw map[string]any, inputType types.InputType) types.Specification {
	spec := types.Specification{
		Quantity:       positiveInt(raw["quantity"], DefaultQuantity),
		WidthMM:        positiveFloat(raw["width_mm"], DefaultWidthMM),
		HeightMM:       positiveFloat(raw["height_mm"], DefaultHeightMM),
		MaterialGSM:    positiveInt(raw["material_gsm"], DefaultMaterialGSM),
		TurnaroundDays: positiveInt(raw["turnaround_days"], DefaultTurnaroundDays),
	}

	spec.Sides = types.SidesSingle
	if s, ok := sidesSynonyms[enumToken(raw["sides"])]; ok {
		spec.Sides = s
	}

	spec.Finishing = types.FinishingNone
	if f, ok := finishingSynonyms[enumToken(raw["finishing"])]; ok {
		spec.Finishing = f
	}

	if m, ok := methodSynonyms[enumToken(raw["print_method"])]; ok {
		spec.PrintMethod = m
	} else if spec.Quantity > OffsetAutoSelectQty {
		spec.PrintMethod = types.PrintMethodOffset
	} else {
		spec.PrintMethod = types.PrintMethodDigital
	}

	spec.ArtworkReference = artworkReference(raw)
	switch inputType {
	case types.InputPDF:
		spec.ArtworkReference = types.ArtworkUploadedPDF
	case types.InputImage:
		spec.ArtworkReference = types.ArtworkUploadedImage
	}

	return spec
}

// SpecificationToMap renders a Specification in the extracted-mapping shape
func SpecificationToMap(spec types.Specification) map[string]any {
	m := map[string]any{
		"quantity":        spec.Quantity,
		"width_mm":        spec.WidthMM,
		"height_mm":       spec.HeightMM,
		"material_gsm":    spec.MaterialGSM,
		"sides":           string(spec.Sides),
		"finishing":       string(spec.Finishing),
		"print_method":    string(spec.PrintMethod),
		"turnaround_days": spec.TurnaroundDays,
	}
	if spec.ArtworkReference != "" {
		m["artwork_reference"] = spec.ArtworkReference
	}
	return m
}

// artworkReference reads artwork_reference, falling back to the artwork_url key
func artworkReference(raw map[string]any) string {
	for _, key := range []string{"artwork_reference", "artwork_url"} {
		s, ok := raw[key].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		switch strings.ToLower(s) {
		case "", "null", "none", "n/a":
			continue
		}
		return s
	}
	return ""
}

// enumToken lower-cases an enum value and joins words with hyphens
func enumToken(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	return s
}

func positiveFloat(v any, def float64) float64 {
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return def
	}
	return f
}

// positiveInt clamps oversized counts to MaxInt32 so range checks still see them
func positiveInt(v any, def int) int {
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	n := int(math.Trunc(f))
	if n <= 0 {
		return def
	}
	return n
}

// toFloat coerces JSON numbers and numeric strings with a trailing unit
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(t, ",", "")))
		match := numberWithUnit.FindStringSubmatch(s)
		if match == nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
