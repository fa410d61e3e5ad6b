package poll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"time"
)

// Metrics instruments pollers. A nil *Metrics records nothing.
type Metrics struct {
	ticks *prometheus.CounterVec
	delay *prometheus.GaugeVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resource_monitor",
			Name:      "poll_ticks_total",
			Help:      "Number of completed poll attempts by outcome.",
		}, []string{"poller", "phase"}),
		delay: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resource_monitor",
			Name:      "poll_retry_delay_seconds",
			Help:      "Delay before the next attempt after a failure.",
		}, []string{"poller"}),
	}
}

func (metrics *Metrics) observeTick(poller string, phase Phase) {
	if metrics == nil {
		return
	}

	metrics.ticks.WithLabelValues(poller, string(phase)).Inc()

	if phase == PhaseResolved {
		metrics.delay.WithLabelValues(poller).Set(0)
	}
}

func (metrics *Metrics) observeDelay(poller string, delay time.Duration) {
	if metrics == nil {
		return
	}

	metrics.delay.WithLabelValues(poller).Set(delay.Seconds())
}
