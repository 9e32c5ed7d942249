// Package metrics exposes coordinator activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goliatone/go-garage-sync/listsync"
)

const namespace = "garagesync"

// Outcome label values of the fetch histogram.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport"
	OutcomeBusiness  = "business"
)

// Hooks implements listsync.Hooks with Prometheus collectors labelled by
// resource name.
type Hooks struct {
	lookups    *prometheus.CounterVec
	restored   *prometheus.CounterVec
	fetches    *prometheus.HistogramVec
	superseded *prometheus.CounterVec
}

var _ listsync.Hooks = (*Hooks)(nil)

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Hooks{
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "List cache lookups by result.",
		}, []string{"resource", "result"}),
		restored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restores_total",
			Help:      "Pages restored from the session mirror.",
		}, []string{"resource"}),
		fetches: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Remote list fetch latency by outcome.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"resource", "outcome"}),
		superseded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_fetches_total",
			Help:      "Fetch results discarded because a newer fetch was started.",
		}, []string{"resource"}),
	}
}

func (h *Hooks) CacheHit(resource string) {
	h.lookups.WithLabelValues(resource, "hit").Inc()
}

func (h *Hooks) CacheMiss(resource string) {
	h.lookups.WithLabelValues(resource, "miss").Inc()
}

func (h *Hooks) SessionRestored(resource string) {
	h.restored.WithLabelValues(resource).Inc()
}

func (h *Hooks) FetchCompleted(resource string, elapsed time.Duration, err error) {
	h.fetches.WithLabelValues(resource, outcome(err)).Observe(elapsed.Seconds())
}

func (h *Hooks) Superseded(resource string) {
	h.superseded.WithLabelValues(resource).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case listsync.IsKind(err, listsync.KindBusiness):
		return OutcomeBusiness
	default:
		return OutcomeTransport
	}
}
