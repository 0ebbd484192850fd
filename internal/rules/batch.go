package rules

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/varextract/internal/types"
)

// RecordInput pairs a record with its changelog.
type RecordInput struct {
	Record  types.Record  `json:"record"`
	History types.History `json:"history,omitempty"`
}

// RecordOutput holds the variables extracted from one record.
// Err carries recursion errors for individual variables; Values is still usable.
type RecordOutput struct {
	Key    string         `json:"key,omitempty"`
	Values map[string]any `json:"values"`
	Err    error          `json:"-"`
}

// ExtractRecords runs ExtractAll over many records with bounded parallelism.
// Records are independent, so work is split per record; outputs keep input
// order. Cancellation is checked between records only: a record in progress
// always completes.
func (e *Engine) ExtractRecords(ctx context.Context, inputs []RecordInput, category types.Category) ([]RecordOutput, error) {
	out := make([]RecordOutput, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range inputs {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := e.ExtractAll(inputs[i].Record, inputs[i].History, category)
			out[i] = RecordOutput{Key: inputs[i].Record.Key(), Values: values, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
