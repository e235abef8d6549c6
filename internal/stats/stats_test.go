package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/pkg/types"
)

func TestCollectorReflectsSnapshot(t *testing.T) {
	s := &types.Stats{}
	s.RecordLiquidationSuccess(120.5, 3.2, 400)
	s.RecordSwapAttempt()
	s.RecordSwapSuccess(400)

	c := NewCollector(s)
	ch := make(chan prometheus.Metric, 32)
	c.Collect(ch)
	close(ch)

	metrics := map[string]float64{}
	for m := range ch {
		var pb dto.Metric
		assert.NoError(t, m.Write(&pb))
		desc := m.Desc().String()
		if pb.Counter != nil {
			metrics[desc] += pb.Counter.GetValue()
		}
		if pb.Gauge != nil {
			metrics[desc] += pb.Gauge.GetValue()
		}
	}

	var total float64
	for _, v := range metrics {
		total += v
	}
	assert.Greater(t, total, 0.0)
}
