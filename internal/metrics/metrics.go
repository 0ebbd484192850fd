// Package metrics exposes Prometheus counters for variable extraction.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/solatis/varextract/internal/rules"
)

// Outcome label values.
const (
	OutcomeFound     = "found"
	OutcomeNotFound  = "not_found"
	OutcomeNoMapping = "no_mapping"
)

// Metrics holds the extraction collectors. It implements rules.Observer.
//
// Metrics:
//   - varextract_extractions_total{variable,source_kind,outcome}
//   - varextract_fallbacks_total{variable}
//   - varextract_recursion_limits_total{variable}
type Metrics struct {
	ExtractionsTotal     *prometheus.CounterVec
	FallbacksTotal       *prometheus.CounterVec
	RecursionLimitsTotal *prometheus.CounterVec
}

var _ rules.Observer = (*Metrics)(nil)

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varextract_extractions_total",
				Help: "Variable extraction attempts by outcome",
			},
			[]string{"variable", "source_kind", "outcome"},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varextract_fallbacks_total",
				Help: "Extractions satisfied by the fallback source",
			},
			[]string{"variable"},
		),
		RecursionLimitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varextract_recursion_limits_total",
				Help: "Calculated variables aborted by the recursion guard",
			},
			[]string{"variable"},
		),
	}
}

// ObserveExtraction implements rules.Observer.
func (m *Metrics) ObserveExtraction(variable string, res rules.Result) {
	outcome := OutcomeNotFound
	switch {
	case res.Found:
		outcome = OutcomeFound
	case res.Error == rules.MissNoMapping:
		outcome = OutcomeNoMapping
	}
	m.ExtractionsTotal.WithLabelValues(variable, string(res.SourceKind), outcome).Inc()
	if res.FromFallback {
		m.FallbacksTotal.WithLabelValues(variable).Inc()
	}
}

// ObserveRecursionLimit implements rules.Observer.
func (m *Metrics) ObserveRecursionLimit(variable string) {
	m.RecursionLimitsTotal.WithLabelValues(variable).Inc()
}
