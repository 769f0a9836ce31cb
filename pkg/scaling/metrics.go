package scaling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelPool      = "pool"
	LabelDirection = "direction"
	LabelResult    = "result"
)

var (
	// BacklogGauge is the latest raw backlog per pool.
	BacklogGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "autoscaler",
		Name:      "backlog",
		Help:      "Latest summed queue length of the pool",
	}, []string{LabelPool})

	SMAGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "autoscaler",
		Name:      "backlog_sma",
		Help:      "Simple moving average of the pool backlog",
	}, []string{LabelPool})

	RateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "autoscaler",
		Name:      "backlog_rate",
		Help:      "Backlog change per second since the previous tick",
	}, []string{LabelPool})

	ReplicasGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "autoscaler",
		Name:      "replicas_running",
		Help:      "Running replicas reported by the orchestrator",
	}, []string{LabelPool})

	// ScaleActions counts scale commands by direction and result (success|failure).
	ScaleActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "autoscaler",
		Name:      "scale_actions_total",
		Help:      "Total number of scale commands issued",
	}, []string{LabelPool, LabelDirection, LabelResult})
)

func recordDecision(d Decision) {
	ReplicasGauge.WithLabelValues(d.Pool).Set(float64(d.Current))
	if d.Sampled {
		BacklogGauge.WithLabelValues(d.Pool).Set(float64(d.Backlog))
		SMAGauge.WithLabelValues(d.Pool).Set(d.SMA)
		RateGauge.WithLabelValues(d.Pool).Set(d.Rate)
	}
	if d.Action == ActionNone {
		return
	}
	result := "success"
	if !d.Scaled {
		result = "failure"
	}
	ScaleActions.WithLabelValues(d.Pool, d.Action.String(), result).Inc()
}
