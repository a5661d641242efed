// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func readGaugeValue(t *testing.T, c prometheus.Collector, labels map[string]string) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		match := true
		for _, lp := range pb.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match && len(pb.GetLabel()) == len(labels) {
			if pb.Gauge != nil {
				return pb.Gauge.GetValue()
			}
		}
	}
	t.Fatalf("no matching metric found for labels %v", labels)
	return 0
}

func TestSetNATStatusExclusive(t *testing.T) {
	SetNATStatus("no-nat")
	require.Equal(t, float64(1), readGaugeValue(t, NATStatus, map[string]string{"status": "no-nat"}))

	SetNATStatus("full-nat")
	require.Equal(t, float64(1), readGaugeValue(t, NATStatus, map[string]string{"status": "full-nat"}))
}

func TestSetOutstandingNonces(t *testing.T) {
	SetOutstandingNonces(7)
	require.Equal(t, float64(7), readGaugeValue(t, OutstandingNonces, map[string]string{}))
}
