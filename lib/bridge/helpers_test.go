package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snowmerak/bundle.go/lib/metrics"
)

// requestCount reads the bridge request counter for outcome from p's registry.
func requestCount(t *testing.T, p *metrics.Prometheus, outcome string) float64 {
	t.Helper()
	families, err := p.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "test_bridge_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
