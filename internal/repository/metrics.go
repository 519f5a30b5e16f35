package repository

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/daybook/internal/backfill"
)

// Metrics counts index activity per collection. A nil *Metrics records
// nothing.
type Metrics struct {
	Scans         *prometheus.CounterVec
	RangeReads    *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	Repairs       *prometheus.CounterVec
	Chunks        *prometheus.CounterVec
	CoveredDays   *prometheus.GaugeVec
	BackfillState *prometheus.GaugeVec
}

// NewMetrics builds an unregistered metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "repository",
			Name:      "full_scans_total",
			Help:      "Full scans of the primary store.",
		}, []string{"collection", "reason"}),
		RangeReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "repository",
			Name:      "range_reads_total",
			Help:      "Reads of the primary store limited to the requested days.",
		}, []string{"collection", "reason"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "repository",
			Name:      "index_fallbacks_total",
			Help:      "Reads that could not be served from an index entry.",
		}, []string{"collection", "reason"}),
		Repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "repository",
			Name:      "index_repairs_total",
			Help:      "Index entries rewritten or ids dropped by reads.",
		}, []string{"collection", "kind"}),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "backfill",
			Name:      "chunks_total",
			Help:      "Backfill chunk requests by outcome.",
		}, []string{"collection", "result"}),
		CoveredDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "daybook",
			Subsystem: "backfill",
			Name:      "covered_days",
			Help:      "Days inside the date index coverage window.",
		}, []string{"collection"}),
		BackfillState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "daybook",
			Subsystem: "backfill",
			Name:      "complete",
			Help:      "1 once the whole history is indexed.",
		}, []string{"collection"}),
	}
}

// Register adds every metric to reg. Metrics already registered by an
// identical set are accepted.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Scans, m.RangeReads, m.Fallbacks, m.Repairs, m.Chunks, m.CoveredDays, m.BackfillState,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func (m *Metrics) scan(collection, reason string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(collection, reason).Inc()
}

func (m *Metrics) rangeRead(collection, reason string) {
	if m == nil {
		return
	}
	m.RangeReads.WithLabelValues(collection, reason).Inc()
}

func (m *Metrics) fallback(collection, reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(collection, reason).Inc()
}

func (m *Metrics) repair(collection, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Repairs.WithLabelValues(collection, kind).Add(float64(n))
}

func (m *Metrics) chunk(collection, result string) {
	if m == nil {
		return
	}
	m.Chunks.WithLabelValues(collection, result).Inc()
}

func (m *Metrics) indexed(collection string, meta backfill.Meta) {
	if m == nil {
		return
	}
	m.CoveredDays.WithLabelValues(collection).Set(float64(meta.IndexedFrom.DaysBetween(meta.IndexedThrough) + 1))
	complete := 0.0
	if meta.Complete {
		complete = 1
	}
	m.BackfillState.WithLabelValues(collection).Set(complete)
}

func (m *Metrics) reset(collection string) {
	if m == nil {
		return
	}
	m.CoveredDays.DeleteLabelValues(collection)
	m.BackfillState.DeleteLabelValues(collection)
}
