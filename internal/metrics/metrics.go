// Package metrics exposes cycle-level prometheus instruments
// (SPEC_FULL.md's "Cycle metrics" supplement): counters per component
// and a cycle-duration histogram, all registered against one registry
// an operator can scrape or dump after an invocation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry bundles every instrument this keeper emits. A fresh Registry
// should be created per process, not per cycle: counters accumulate
// across invocations of the same running process.
type Registry struct {
	reg *prometheus.Registry

	TemplatesAttempted prometheus.Counter
	TemplatesFailed    prometheus.Counter

	ProvidersInitialized prometheus.Counter
	ProvidersDropped     prometheus.Counter

	ConditionsMet    prometheus.Counter
	ConditionsUnmet  prometheus.Counter
	ConditionsFailed prometheus.Counter

	SponsorsProcessed prometheus.Counter
	SponsorsDropped   prometheus.Counter
	NoncesAssigned    prometheus.Counter

	TransactionsSubmitted       prometheus.Counter
	TransactionsFailed          prometheus.Counter
	TransactionsSkippedDuplicate prometheus.Counter

	CycleDuration prometheus.Histogram
}

// New constructs a Registry with every instrument registered under the
// "airkeeper" namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "airkeeper", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}

	m := &Registry{
		reg: reg,

		TemplatesAttempted: counter("templates_attempted_total", "API call work units attempted"),
		TemplatesFailed:    counter("templates_failed_total", "API call work units that failed after retries"),

		ProvidersInitialized: counter("providers_initialized_total", "providers successfully initialized"),
		ProvidersDropped:     counter("providers_dropped_total", "providers dropped due to initialization failure"),

		ConditionsMet:    counter("conditions_met_total", "subscriptions/jobs whose update condition was met"),
		ConditionsUnmet:  counter("conditions_unmet_total", "subscriptions/jobs whose update condition was not met"),
		ConditionsFailed: counter("conditions_failed_total", "condition checks that errored"),

		SponsorsProcessed: counter("sponsors_processed_total", "sponsor wallets successfully sequenced"),
		SponsorsDropped:   counter("sponsors_dropped_total", "sponsor wallets dropped due to derivation or nonce-fetch failure"),
		NoncesAssigned:    counter("nonces_assigned_total", "nonces assigned across all sponsors"),

		TransactionsSubmitted:        counter("transactions_submitted_total", "transactions successfully broadcast"),
		TransactionsFailed:           counter("transactions_failed_total", "transaction submissions that failed"),
		TransactionsSkippedDuplicate: counter("transactions_skipped_duplicate_total", "RRP submissions skipped as already awaiting fulfillment"),

		CycleDuration: func() prometheus.Histogram {
			h := prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "airkeeper",
				Name:      "cycle_duration_seconds",
				Help:      "wall-clock duration of one full update cycle",
				Buckets:   prometheus.DefBuckets,
			})
			reg.MustRegister(h)
			return h
		}(),
	}

	return m
}

// Gather returns every registered metric family, for the CLI's
// `invoke --dump-metrics` JSON dump.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}
