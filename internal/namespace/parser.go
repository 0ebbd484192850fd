// Package namespace compiles compact path notation into source rules.
//
// Grammar, left to right, everything but the field optional:
//
//	[ProjectFilter.] FieldName [.PropertyPath] [:ChangelogValue] [.Extractor]
//
// Examples:
//
//	*.created                    any project, read fields.created
//	DevOps.status.name           project DevOps, read fields.status.name
//	OPS|SRE.Status:Deployed.DateTime
//	                             first transition of Status to "Deployed"
//	customfield_10010.value      custom field property
//
// The first segment is a project filter when it is "*", contains "|", or
// begins with an uppercase letter and more segments follow. Anything else is
// the field name. Custom-field identifiers (customfield_NNNNN) are always
// field names.
package namespace

import (
	"regexp"
	"strings"

	"github.com/solatis/varextract/internal/types"
)

// Extractor selects what a changelog path yields.
type Extractor string

const (
	ExtractorNone     Extractor = ""
	ExtractorDateTime Extractor = "DateTime"
	ExtractorOccurred Extractor = "Occurred"
	ExtractorDuration Extractor = "Duration"
)

// ParsedPath is the structured form of a namespace path.
type ParsedPath struct {
	Raw            string
	Projects       []string // nil when no filter or wildcard
	AnyProject     bool     // "*" filter
	FieldName      string
	PropertyPath   string // dot-joined, "" when absent
	ChangelogValue string // "" when not a changelog path
	Extractor      Extractor
	ValueKind      types.ValueKind
}

// HasChangelog reports whether the path targets a changelog transition.
func (p ParsedPath) HasChangelog() bool { return p.ChangelogValue != "" }

// FieldPath returns FieldName joined with PropertyPath.
func (p ParsedPath) FieldPath() string {
	if p.PropertyPath == "" {
		return p.FieldName
	}
	return p.FieldName + "." + p.PropertyPath
}

var (
	customFieldPattern = regexp.MustCompile(`^customfield_\d+$`)
	identPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	propertyPattern    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*|\d+)$`)
	projectKeyPattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
)

// Parse converts a namespace path into a ParsedPath.
// Any malformed input yields a *types.ParseError; no partial result is returned.
func Parse(path string) (ParsedPath, error) {
	raw := path
	path = strings.TrimSpace(path)
	if path == "" {
		return ParsedPath{}, parseErr(raw, "empty path")
	}

	left, changelog, hasChangelog := strings.Cut(path, ":")

	parsed := ParsedPath{Raw: raw}
	if hasChangelog {
		value, extractor, err := parseChangelogPart(raw, changelog)
		if err != nil {
			return ParsedPath{}, err
		}
		parsed.ChangelogValue = value
		parsed.Extractor = extractor
	}

	segments := strings.Split(left, ".")
	for _, seg := range segments {
		if seg == "" {
			return ParsedPath{}, parseErr(raw, "empty segment")
		}
	}

	// An extractor without a changelog value is not a property
	if !hasChangelog && len(segments) > 1 && isExtractor(segments[len(segments)-1]) {
		return ParsedPath{}, parseErr(raw, "extractor requires a changelog value")
	}

	if first := segments[0]; first[0] >= '0' && first[0] <= '9' {
		return ParsedPath{}, parseErr(raw, "segment starts with a digit")
	}

	if isProjectSegment(segments) {
		projects, anyProject, err := parseProjects(raw, segments[0])
		if err != nil {
			return ParsedPath{}, err
		}
		parsed.Projects = projects
		parsed.AnyProject = anyProject
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return ParsedPath{}, parseErr(raw, "missing field name")
	}

	field := segments[0]
	if !customFieldPattern.MatchString(field) && !identPattern.MatchString(field) {
		return ParsedPath{}, parseErr(raw, "invalid field name "+field)
	}
	parsed.FieldName = field

	for _, prop := range segments[1:] {
		if !propertyPattern.MatchString(prop) {
			return ParsedPath{}, parseErr(raw, "invalid property "+prop)
		}
	}
	parsed.PropertyPath = strings.Join(segments[1:], ".")
	parsed.ValueKind = InferValueKind(parsed)
	return parsed, nil
}

// ValidateSyntax reports whether path parses, with the parse error message if not.
func ValidateSyntax(path string) (bool, string) {
	if _, err := Parse(path); err != nil {
		return false, err.Error()
	}
	return true, "valid"
}

// parseChangelogPart splits "Value[.Extractor]". The value may contain spaces
// and punctuation other than '.'.
func parseChangelogPart(raw, part string) (string, Extractor, error) {
	if part == "" || strings.HasPrefix(part, ":") {
		return "", ExtractorNone, parseErr(raw, "empty changelog value")
	}
	value, suffix, hasSuffix := strings.Cut(part, ".")
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ExtractorNone, parseErr(raw, "empty changelog value")
	}
	if !hasSuffix {
		return value, ExtractorNone, nil
	}
	if !isExtractor(suffix) {
		return "", ExtractorNone, parseErr(raw, "unknown extractor "+suffix)
	}
	return value, Extractor(suffix), nil
}

func isExtractor(s string) bool {
	switch Extractor(s) {
	case ExtractorDateTime, ExtractorOccurred, ExtractorDuration:
		return true
	}
	return false
}

// isProjectSegment applies the case convention to the first segment.
func isProjectSegment(segments []string) bool {
	first := segments[0]
	if first == "*" || strings.Contains(first, "|") {
		return true
	}
	if len(segments) < 2 || customFieldPattern.MatchString(first) {
		return false
	}
	return first[0] >= 'A' && first[0] <= 'Z'
}

func parseProjects(raw, segment string) ([]string, bool, error) {
	if segment == "*" {
		return nil, true, nil
	}
	keys := strings.Split(segment, "|")
	for _, key := range keys {
		if key == "" {
			return nil, false, parseErr(raw, "empty project key")
		}
		if !projectKeyPattern.MatchString(key) {
			return nil, false, parseErr(raw, "invalid project key "+key)
		}
	}
	return keys, false, nil
}

func parseErr(path, reason string) error {
	return &types.ParseError{Path: path, Reason: reason}
}
