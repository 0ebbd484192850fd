package rules

import (
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/types"
)

// evaluateCalculated computes a derived value. Calculation names are a closed
// set validated at construction, so the default branch is unreachable for
// compiled collections.
func (e *Engine) evaluateCalculated(cc *CompiledCollection, s types.Calculated, rec types.Record, history types.History, chain []string) (any, bool, error) {
	switch s.Calculation {
	case types.CalcSumChangelogDurations:
		total, ok := sumDurations(history, s.Inputs.Field, s.Inputs.Statuses)
		if !ok {
			e.logger.Debug("unparsable changelog timestamp",
				zap.String("record", rec.Key()),
				zap.String("field", s.Inputs.Field),
			)
			return nil, false, nil
		}
		return total, true, nil

	case types.CalcCountTransitions:
		return countTransitions(history, s.Inputs.Field), true, nil

	case types.CalcTimestampDiff:
		return e.timestampDiff(cc, s.Inputs, rec, history, chain)

	default:
		return nil, false, nil
	}
}

// timestampDiff returns end-start in seconds. Negative results are kept.
func (e *Engine) timestampDiff(cc *CompiledCollection, in types.CalculationInputs, rec types.Record, history types.History, chain []string) (any, bool, error) {
	startRaw, found, err := e.resolveInput(cc, in.Start, rec, history, chain)
	if err != nil || !found {
		return nil, false, err
	}
	endRaw, found, err := e.resolveInput(cc, in.End, rec, history, chain)
	if err != nil || !found {
		return nil, false, err
	}

	start, err := ParseTimestamp(startRaw)
	if err != nil {
		e.logger.Debug("timestamp_diff start is not a timestamp", zap.String("input", in.Start), zap.Error(err))
		return nil, false, nil
	}
	end, err := ParseTimestamp(endRaw)
	if err != nil {
		e.logger.Debug("timestamp_diff end is not a timestamp", zap.String("input", in.End), zap.Error(err))
		return nil, false, nil
	}
	return secondsBetween(start, end), true, nil
}

// resolveInput treats input as a declared variable first. Only when the
// collection has no such variable is it read as a raw field path; a declared
// variable that resolves to not-found stays not-found.
func (e *Engine) resolveInput(cc *CompiledCollection, input string, rec types.Record, history types.History, chain []string) (any, bool, error) {
	if _, declared := cc.Variables[input]; declared {
		res, err := e.extract(cc, input, rec, history, chain)
		if err != nil {
			return nil, false, err
		}
		return res.Value, res.Found, nil
	}
	value, ok := resolveField(rec, input)
	return value, ok, nil
}
