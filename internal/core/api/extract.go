package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/rules"
	"github.com/solatis/varextract/internal/types"
)

var _ ExtractionServer = (*ExtractionService)(nil)

type extractResponse struct {
	Variable       string `json:"variable"`
	Found          bool   `json:"found"`
	Value          any    `json:"value"`
	SourcePriority int    `json:"source_priority,omitempty"`
	SourceKind     string `json:"source_kind,omitempty"`
	FromFallback   bool   `json:"from_fallback"`
	Error          string `json:"error,omitempty"`
}

type recordResult struct {
	Key    string         `json:"key,omitempty"`
	Values map[string]any `json:"values"`
	Error  string         `json:"error,omitempty"`
}

type parsedPathResult struct {
	Path      string            `json:"path"`
	Valid     bool              `json:"valid"`
	Error     string            `json:"error,omitempty"`
	ValueKind types.ValueKind   `json:"value_kind,omitempty"`
	Rule      *types.SourceRule `json:"rule,omitempty"`
}

// Extract evaluates one variable.
//
// Request:  {"variable": "...", "record": {...}, "history": [...]}
// Response: {"variable", "found", "value", "source_priority", "source_kind", "from_fallback", "error"}
func (s *ExtractionService) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name := stringField(req, "variable")
	if name == "" {
		return nil, invalidArgument("variable is required")
	}
	var in rules.RecordInput
	if err := decodeInto(req.AsMap(), &in); err != nil {
		return nil, invalidArgument(fmt.Sprintf("invalid record: %v", err))
	}
	if in.Record == nil {
		return nil, invalidArgument("record is required")
	}

	engine, err := s.engineFor(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := engine.ExtractVariable(name, in.Record, in.History)
	if err != nil {
		return nil, toStatus(err)
	}

	out := extractResponse{
		Variable:       name,
		Found:          res.Found,
		Value:          res.Value,
		SourcePriority: res.SourcePriority,
		SourceKind:     string(res.SourceKind),
		FromFallback:   res.FromFallback,
		Error:          res.Error,
	}
	resp, err := encodeStruct(out)
	return resp, toStatus(err)
}

// ExtractAll evaluates every variable for a batch of records.
//
// Request:  {"records": [{"record": {...}, "history": [...]}], "category": "dora"}
// Response: {"results": [{"key", "values", "error"}]}
//
// A single {"record", "history"} pair is accepted as a batch of one.
// Per-record recursion errors are reported in that record's "error" field.
func (s *ExtractionService) ExtractAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var body struct {
		Records  []rules.RecordInput `json:"records"`
		Record   types.Record        `json:"record"`
		History  types.History       `json:"history"`
		Category types.Category      `json:"category"`
	}
	if err := decodeInto(req.AsMap(), &body); err != nil {
		return nil, invalidArgument(fmt.Sprintf("invalid request: %v", err))
	}
	if body.Record != nil {
		body.Records = append(body.Records, rules.RecordInput{Record: body.Record, History: body.History})
	}
	if len(body.Records) == 0 {
		return nil, invalidArgument("records is required")
	}
	if s.cfg.MaxBatchSize > 0 && len(body.Records) > s.cfg.MaxBatchSize {
		return nil, invalidArgument(fmt.Sprintf("batch of %d records exceeds limit %d", len(body.Records), s.cfg.MaxBatchSize))
	}
	switch body.Category {
	case "", types.CategoryDORA, types.CategoryFlow, types.CategoryCommon:
	default:
		return nil, invalidArgument(fmt.Sprintf("unknown category %q", body.Category))
	}

	engine, err := s.engineFor(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	outputs, err := engine.ExtractRecords(ctx, body.Records, body.Category)
	if err != nil {
		return nil, toStatus(err)
	}

	results := make([]recordResult, len(outputs))
	for i, o := range outputs {
		results[i] = recordResult{Key: o.Key, Values: o.Values}
		if o.Err != nil {
			results[i].Error = o.Err.Error()
			s.logger.Warn("record extracted with errors", zap.String("record", o.Key), zap.Error(o.Err))
		}
	}
	resp, err := encodeStruct(map[string]any{"results": results})
	return resp, toStatus(err)
}

// ParsePaths validates namespace paths and shows the rule each compiles to.
//
// Request:  {"paths": ["*.created", ...]}
// Response: {"paths": [{"path", "valid", "error", "value_kind", "rule"}]}
//
// Priorities are assigned to valid paths in order, as when the list is used
// as a variable override.
func (s *ExtractionService) ParsePaths(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body struct {
		Paths []string `json:"paths"`
	}
	if err := decodeInto(req.AsMap(), &body); err != nil {
		return nil, invalidArgument(fmt.Sprintf("invalid request: %v", err))
	}
	if len(body.Paths) == 0 {
		return nil, invalidArgument("paths is required")
	}

	results := make([]parsedPathResult, 0, len(body.Paths))
	priority := 0
	for _, path := range body.Paths {
		p, err := namespace.Parse(path)
		if err != nil {
			results = append(results, parsedPathResult{Path: path, Error: err.Error()})
			continue
		}
		priority++
		rule := s.compiler.TranslateToSourceRule(p, priority)
		results = append(results, parsedPathResult{Path: path, Valid: true, ValueKind: p.ValueKind, Rule: &rule})
	}

	resp, err := encodeStruct(map[string]any{"paths": results})
	return resp, toStatus(err)
}
