// internal/rules/evaluate.go
package rules

import (
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/types"
)

/*
 * Variable extraction orchestration.
 *
 * Evaluates one variable against one record and its history:
 *   1. Look up the compiled variable (unknown name -> Result{Error: "no mapping"})
 *   2. Walk rules in ascending priority
 *   3. Per rule: filter gate -> source evaluator
 *   4. First rule yielding a value wins; later rules are never consulted
 *   5. Otherwise try the fallback rule (filters honored) with FromFallback set
 *
 * Not-found is a value, not an error. The only error surfaced is a
 * *types.RecursionLimitError from calculated inputs that nest too deep or
 * name each other in a cycle.
 *
 * Snapshot semantics: a call resolves every nested variable against the
 * compiled collection it started with, even if Swap runs concurrently.
 */

// MissNoMapping is the Result.Error for variables absent from the collection.
const MissNoMapping = "no mapping"

// Result is the outcome of extracting one variable.
type Result struct {
	Found          bool             `json:"found"`
	Value          any              `json:"value"`
	SourcePriority int              `json:"source_priority,omitempty"`
	SourceKind     types.SourceKind `json:"source_kind,omitempty"`
	FromFallback   bool             `json:"from_fallback,omitempty"`
	Error          string           `json:"error,omitempty"` // set only when the variable is not declared
}

// ExtractVariable evaluates the named variable against a record and its history.
func (e *Engine) ExtractVariable(name string, rec types.Record, history types.History) (Result, error) {
	return e.extract(e.compiled.Load(), name, rec, history, nil)
}

// ExtractAll extracts every variable (optionally restricted to category) and
// returns the found values by name. Missing required variables are logged,
// not fatal. Recursion errors skip the variable and are joined into the
// returned error alongside the partial results.
func (e *Engine) ExtractAll(rec types.Record, history types.History, category types.Category) (map[string]any, error) {
	cc := e.compiled.Load()
	values := make(map[string]any)
	var errs []error

	for _, m := range cc.Collection.Mappings(category) {
		res, err := e.extract(cc, m.Name, rec, history, nil)
		if err != nil {
			e.logger.Error("variable extraction aborted",
				zap.String("variable", m.Name),
				zap.String("record", rec.Key()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if !res.Found {
			if m.Required {
				e.logger.Warn("required variable not found",
					zap.String("variable", m.Name),
					zap.String("record", rec.Key()),
				)
			}
			continue
		}
		values[m.Name] = res.Value
	}
	return values, errors.Join(errs...)
}

// extract is ExtractVariable against a fixed snapshot with the resolution chain
// of enclosing variables.
func (e *Engine) extract(cc *CompiledCollection, name string, rec types.Record, history types.History, chain []string) (Result, error) {
	// Nested timestamp_diff inputs are not reported; only the requested variable is.
	top := len(chain) == 0

	cv, ok := cc.Variables[name]
	if !ok {
		return e.observe(top, name, Result{Error: MissNoMapping}), nil
	}

	if slices.Contains(chain, name) {
		return Result{}, e.recursionError(name, chain, true)
	}
	if len(chain) >= e.maxDepth {
		return Result{}, e.recursionError(name, chain, false)
	}
	chain = append(chain[:len(chain):len(chain)], name)

	for _, rule := range cv.Rules {
		res, found, err := e.evaluateRule(cc, cv, rule, rec, history, chain)
		if err != nil {
			return Result{}, err
		}
		if found {
			return e.observe(top, name, res), nil
		}
	}

	if cv.Fallback != nil {
		res, found, err := e.evaluateRule(cc, cv, *cv.Fallback, rec, history, chain)
		if err != nil {
			return Result{}, err
		}
		if found {
			res.FromFallback = true
			return e.observe(top, name, res), nil
		}
	}

	e.logger.Debug("variable not found",
		zap.String("variable", name),
		zap.String("record", rec.Key()),
		zap.Int("rules", len(cv.Rules)),
	)
	return e.observe(top, name, Result{}), nil
}

// evaluateRule applies the filter gate then the source evaluator.
func (e *Engine) evaluateRule(cc *CompiledCollection, cv *CompiledVariable, rule CompiledRule, rec types.Record, history types.History, chain []string) (Result, bool, error) {
	if !e.filterMatches(cv.Mapping.Name, rule.Filters, rec) {
		return Result{}, false, nil
	}

	value, found, err := e.evaluateSource(cc, rule, rec, history, chain)
	if err != nil || !found {
		return Result{}, false, err
	}

	if cv.Mapping.ValueKind == types.ValueKindCategory {
		value = applyCategoryMapping(value, cv.Mapping.CategoryMapping)
	}
	return Result{
		Found:          true,
		Value:          value,
		SourcePriority: rule.Priority,
		SourceKind:     rule.Source.Kind(),
	}, true, nil
}

// evaluateSource dispatches to the evaluator for the rule's source variant.
func (e *Engine) evaluateSource(cc *CompiledCollection, rule CompiledRule, rec types.Record, history types.History, chain []string) (any, bool, error) {
	switch s := rule.Source.(type) {
	case types.FieldValue:
		res, err := Resolve(rule.Path, rec.Fields())
		if err != nil {
			return nil, false, nil
		}
		return res.Value, true, nil

	case types.FieldValueMatch:
		res, err := Resolve(rule.Path, rec.Fields())
		if err != nil {
			return nil, false, nil
		}
		return Compare(s.Operator, res.Value, s.Value), true, nil

	case types.ChangelogEvent:
		_, matched := firstTransition(history, s.Field, s.Condition)
		return matched, true, nil

	case types.ChangelogTimestamp:
		created, matched := firstTransition(history, s.Field, s.Condition)
		if !matched {
			return nil, false, nil
		}
		return created, true, nil

	case types.FixVersionRelease:
		value, found := releaseDates(rule.Path, rec, s.Selector)
		return value, found, nil

	case types.Calculated:
		return e.evaluateCalculated(cc, s, rec, history, chain)

	default:
		e.logger.Warn("unsupported source kind", zap.String("kind", string(rule.Source.Kind())))
		return nil, false, nil
	}
}

// releaseDates collects releaseDate from every version element that has one.
// first/last follow array order as given, not date order.
func releaseDates(path []PathSegment, rec types.Record, selector types.ReleaseSelector) (any, bool) {
	res, err := Resolve(path, rec.Fields())
	if err != nil {
		return nil, false
	}
	versions, ok := res.Value.([]any)
	if !ok {
		return nil, false
	}

	var dates []any
	for _, v := range versions {
		version, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if date, ok := version["releaseDate"].(string); ok && date != "" {
			dates = append(dates, date)
		}
	}
	if len(dates) == 0 {
		return nil, false
	}

	switch selector {
	case types.SelectFirst:
		return dates[0], true
	case types.SelectLast:
		return dates[len(dates)-1], true
	default:
		return dates, true
	}
}

func (e *Engine) recursionError(name string, chain []string, cycle bool) error {
	if e.observer != nil {
		e.observer.ObserveRecursionLimit(name)
	}
	return &types.RecursionLimitError{
		Variable: name,
		Chain:    append([]string(nil), chain...),
		Depth:    e.maxDepth,
		Cycle:    cycle,
	}
}

func (e *Engine) observe(top bool, name string, res Result) Result {
	if top && e.observer != nil {
		e.observer.ObserveExtraction(name, res)
	}
	return res
}
