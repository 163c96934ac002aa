package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "paychan"

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
	OutcomeNoRoute   = "no_route"
)

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	txAttempts      *prom.CounterVec
	pfsQueries      *prom.CounterVec
	monitorRequests prom.Counter
	pfsInfoLatency  prom.Histogram
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prom.Registerer) (*Metrics, error) {
	m := &Metrics{
		txAttempts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tx_attempts_total",
			Help:      "Contract transactions submitted, by method and outcome.",
		}, []string{"method", "outcome"}),
		pfsQueries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pfs_queries_total",
			Help:      "Path finding route requests, by outcome.",
		}, []string{"outcome"}),
		monitorRequests: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_requests_total",
			Help:      "Monitoring requests broadcast to monitoring services.",
		}),
		// Latency in buckets:
		// [>=25ms, >=50ms, >=100ms, >=200ms, >=400ms, >=800ms, >=1.6s, >=3.2s, >=6.4s]
		pfsInfoLatency: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pfs_info_latency_seconds",
			Help:      "Latency of path finding service info queries.",
			Buckets:   prom.ExponentialBuckets(0.025, 2, 9),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prom.Collector{m.txAttempts, m.pfsQueries, m.monitorRequests, m.pfsInfoLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (this *Metrics) TxAttempt(method string, outcome string) {
	if this == nil {
		return
	}
	this.txAttempts.WithLabelValues(method, outcome).Inc()
}

func (this *Metrics) PfsQuery(outcome string) {
	if this == nil {
		return
	}
	this.pfsQueries.WithLabelValues(outcome).Inc()
}

func (this *Metrics) MonitorRequestSent() {
	if this == nil {
		return
	}
	this.monitorRequests.Inc()
}

func (this *Metrics) PfsInfoLatency(d time.Duration) {
	if this == nil {
		return
	}
	this.pfsInfoLatency.Observe(d.Seconds())
}
