package namespace

import (
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/types"
)

// Compiler translates parsed namespace paths into source rules.
type Compiler struct {
	logger *zap.Logger
}

// NewCompiler returns a Compiler logging through l (nil for no logging).
func NewCompiler(l *zap.Logger) *Compiler {
	if l == nil {
		l = zap.NewNop()
	}
	return &Compiler{logger: l}
}

// TranslateToSourceRule builds the SourceRule a parsed path describes.
//
// Without a changelog value the path reads a field. With one, DateTime yields
// the first matching transition's timestamp and Occurred (or no extractor)
// yields whether one happened. Duration is approximated by Occurred and logged.
func (c *Compiler) TranslateToSourceRule(p ParsedPath, priority int) types.SourceRule {
	rule := types.SourceRule{Priority: priority}

	if len(p.Projects) > 0 && !p.AnyProject {
		rule.Filters = &types.MappingFilter{Project: append([]string(nil), p.Projects...)}
	}

	if !p.HasChangelog() {
		rule.Source = types.FieldValue{Field: p.FieldPath(), ValueKind: p.ValueKind}
		return rule
	}

	if p.PropertyPath != "" {
		c.logger.Debug("property path ignored for changelog match",
			zap.String("path", p.Raw),
			zap.String("field", p.FieldName),
		)
	}
	cond := types.TransitionCondition{To: types.StringList{p.ChangelogValue}}

	switch p.Extractor {
	case ExtractorDateTime:
		rule.Source = types.ChangelogTimestamp{Field: p.FieldName, Condition: cond}
	case ExtractorDuration:
		c.logger.Warn("Duration extractor not implemented, degrading to occurrence check",
			zap.String("path", p.Raw),
		)
		rule.Source = types.ChangelogEvent{Field: p.FieldName, Condition: cond}
	default:
		rule.Source = types.ChangelogEvent{Field: p.FieldName, Condition: cond}
	}
	return rule
}

// TranslateMultiple parses each path and assigns priorities 1..N in input
// order. Paths that fail to parse are logged and skipped, so the result may be
// shorter than the input.
func (c *Compiler) TranslateMultiple(paths []string) []types.SourceRule {
	rules := make([]types.SourceRule, 0, len(paths))
	for _, path := range paths {
		parsed, err := Parse(path)
		if err != nil {
			c.logger.Warn("skipping unparsable namespace path", zap.String("path", path), zap.Error(err))
			continue
		}
		rules = append(rules, c.TranslateToSourceRule(parsed, len(rules)+1))
	}
	return rules
}

// ParseAll parses paths, returning the parsed forms and per-path errors keyed by index.
func ParseAll(paths []string) ([]ParsedPath, map[int]error) {
	parsed := make([]ParsedPath, 0, len(paths))
	errs := make(map[int]error)
	for i, path := range paths {
		p, err := Parse(path)
		if err != nil {
			errs[i] = err
			continue
		}
		parsed = append(parsed, p)
	}
	return parsed, errs
}
