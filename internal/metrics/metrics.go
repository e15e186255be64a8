// Package metrics exposes Prometheus collectors for store mutations,
// lifecycle cascades and persistence flushes.
package metrics

import (
	"chainledger/pkg/domain"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chainledger"

// Recorder owns the collectors. It satisfies core.Observer so a Store can
// report into it directly.
type Recorder struct {
	mutations *prometheus.CounterVec
	cascades  *prometheus.CounterVec
	records   *prometheus.CounterVec
	flushes   *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a private registry,
// which keeps tests and embedded callers from colliding on the default one.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Completed store mutations by operation.",
		}, []string{"operation"}),
		cascades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_deletes_total",
			Help:      "Entities removed by deregistration cascades, by entity kind.",
		}, []string{"entity"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_records_total",
			Help:      "Compiled patch records handed to the persistence sink, by action.",
		}, []string{"action"}),
		flushes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent compiling and applying one patch batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{r.mutations, r.cascades, r.records, r.flushes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// Mutation counts one completed store operation.
func (r *Recorder) Mutation(op string) {
	r.mutations.WithLabelValues(op).Inc()
}

// Cascade counts one entity removed during a deregistration.
func (r *Recorder) Cascade(entity domain.EntityType, _ int) {
	r.cascades.WithLabelValues(string(entity)).Inc()
}

// Flush records one persistence flush and the actions it carried.
func (r *Recorder) Flush(batch []domain.Update, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.flushes.WithLabelValues(status).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	for _, u := range batch {
		r.records.WithLabelValues(string(u.Action)).Inc()
	}
}
