package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	TurnsTotal        prometheus.Counter
	TurnsCancelled    prometheus.Counter
	ResponderFailures prometheus.Counter
	ExtractorFailures prometheus.Counter
	EntriesCreated    prometheus.Counter
	EntriesRevoked    prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lifelog",
				Name:      "turns_total",
				Help:      "Total chat turns submitted to the pipeline",
			}),
			TurnsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lifelog",
				Name:      "turns_cancelled_total",
				Help:      "Total turns cancelled before the responder settled",
			}),
			ResponderFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lifelog",
				Name:      "responder_failures_total",
				Help:      "Total responder calls recovered with the apology reply",
			}),
			ExtractorFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lifelog",
				Name:      "extractor_failures_total",
				Help:      "Total extractor calls degraded to zero entries",
			}),
			EntriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lifelog",
				Name:      "entries_created_total",
				Help:      "Total entries created from extraction drafts",
			}),
			EntriesRevoked: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lifelog",
				Name:      "entries_revoked_total",
				Help:      "Total entries deleted by undoing a turn",
			}),
		}
		prometheus.MustRegister(
			global.TurnsTotal,
			global.TurnsCancelled,
			global.ResponderFailures,
			global.ExtractorFailures,
			global.EntriesCreated,
			global.EntriesRevoked,
		)
	})
	return global
}
