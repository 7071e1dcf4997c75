package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/api3dao/airkeeper-go/internal/metrics"
)

func TestRegistryCountersAreIndependentlyAddressable(t *testing.T) {
	reg := metrics.New()

	reg.TemplatesAttempted.Inc()
	reg.TemplatesAttempted.Inc()
	reg.TransactionsSubmitted.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			byName[f.GetName()] = m.GetCounter().GetValue()
		}
	}

	require.Equal(t, float64(2), byName["airkeeper_templates_attempted_total"])
	require.Equal(t, float64(1), byName["airkeeper_transactions_submitted_total"])
}

func TestCycleDurationHistogramObserves(t *testing.T) {
	reg := metrics.New()
	reg.CycleDuration.Observe(1.5)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "airkeeper_cycle_duration_seconds" {
			found = true
			require.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	require.True(t, found)
}
