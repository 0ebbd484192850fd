package namespace

import (
	"strings"

	"github.com/solatis/varextract/internal/types"
)

// Well-known issue-tracker fields with a fixed value kind.
var (
	datetimeFields = map[string]bool{
		"created":                  true,
		"updated":                  true,
		"resolutiondate":           true,
		"duedate":                  true,
		"lastViewed":               true,
		"statuscategorychangedate": true,
		"startDate":                true,
		"releaseDate":              true,
	}
	numberFields = map[string]bool{
		"timeestimate":                  true,
		"timeoriginalestimate":          true,
		"timespent":                     true,
		"aggregatetimeestimate":         true,
		"aggregatetimeoriginalestimate": true,
		"aggregatetimespent":            true,
		"workratio":                     true,
		"votes":                         true,
		"watches":                       true,
	}
)

// InferValueKind derives the value kind of a parsed path. Precedence:
// explicit extractor (a bare changelog value counts as Occurred), then
// well-known field names, then property cues (releaseDate, released,
// trailing .id), then string.
func InferValueKind(p ParsedPath) types.ValueKind {
	switch p.Extractor {
	case ExtractorDateTime:
		return types.ValueKindDatetime
	case ExtractorOccurred:
		return types.ValueKindBoolean
	case ExtractorDuration:
		return types.ValueKindNumber
	}
	if p.HasChangelog() {
		// bare changelog values compile to an occurrence check
		return types.ValueKindBoolean
	}

	if p.PropertyPath == "" {
		if datetimeFields[p.FieldName] {
			return types.ValueKindDatetime
		}
		if numberFields[p.FieldName] {
			return types.ValueKindNumber
		}
	}

	if p.PropertyPath != "" {
		props := strings.Split(p.PropertyPath, ".")
		switch props[len(props)-1] {
		case "releaseDate":
			return types.ValueKindDatetime
		case "released":
			return types.ValueKindBoolean
		case "id":
			return types.ValueKindString
		}
	}
	return types.ValueKindString
}
