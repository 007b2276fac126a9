package runqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	laneOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcore_runqueue_lanes_in_use",
		Help: "Number of run lanes currently occupied.",
	})
	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcore_runqueue_pending",
		Help: "Number of entries waiting in the FIFO.",
	})
)

func (q *Queue) reportMetricsLocked() {
	laneOccupancy.Set(float64(q.inFlight))
	pendingGauge.Set(float64(q.pending.Len()))
}
