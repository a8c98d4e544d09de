package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Collector with Prometheus counters and gauges.
type Prometheus struct {
	allocations       prometheus.Counter
	allocatedNumbers  prometheus.Counter
	submissions       *prometheus.CounterVec
	divisors          prometheus.Counter
	evictions         prometheus.Counter
	released          *prometheus.CounterVec
	watermark         prometheus.Gauge
	activeWorkers     prometheus.Gauge
	activeAssignments prometheus.Gauge
	persistenceErrors *prometheus.CounterVec
	reconcilePasses   *prometheus.CounterVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates the collector and registers its metrics with reg.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "factorfarm" if empty)
//
// Returns an error if any metric is already registered with reg.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "factorfarm"
	}

	p := &Prometheus{
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "ranges_allocated_total",
			Help:      "Total ranges handed out to workers.",
		}),
		allocatedNumbers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "candidates_allocated_total",
			Help:      "Total candidate divisors covered by allocated ranges.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "submissions_total",
			Help:      "Total submissions by result (accepted, rejected).",
		}, []string{"result"}),
		divisors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "divisors_recorded_total",
			Help:      "Total divisor records appended to the ledger.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "evictions_total",
			Help:      "Total workers evicted after the liveness timeout.",
		}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "assignments_released_total",
			Help:      "Total assignments released by reason.",
		}, []string{"reason"}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark",
			Help:      "Bound below which the search space is fully explored.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "active_workers",
			Help:      "Workers currently registered.",
		}),
		activeAssignments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "active_assignments",
			Help:      "Ranges currently assigned and not completed.",
		}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "write_errors_total",
			Help:      "Failed persistence writes by artifact (watermark, ledger).",
		}, []string{"artifact"}),
		reconcilePasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "passes_total",
			Help:      "Reconciler passes by outcome (advanced, unchanged).",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		p.allocations, p.allocatedNumbers, p.submissions, p.divisors,
		p.evictions, p.released, p.watermark, p.activeWorkers,
		p.activeAssignments, p.persistenceErrors, p.reconcilePasses,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RecordAllocation(size int64) {
	p.allocations.Inc()
	p.allocatedNumbers.Add(float64(size))
}

func (p *Prometheus) RecordSubmission(divisors int) {
	p.submissions.WithLabelValues("accepted").Inc()
	p.divisors.Add(float64(divisors))
}

func (p *Prometheus) RecordRejectedSubmission() {
	p.submissions.WithLabelValues("rejected").Inc()
}

func (p *Prometheus) RecordEviction(count int) {
	p.evictions.Add(float64(count))
}

func (p *Prometheus) RecordReleasedAssignment(reason string) {
	p.released.WithLabelValues(reason).Inc()
}

func (p *Prometheus) RecordWatermark(value int64) {
	p.watermark.Set(float64(value))
}

func (p *Prometheus) RecordActiveWorkers(count int) {
	p.activeWorkers.Set(float64(count))
}

func (p *Prometheus) RecordActiveAssignments(count int) {
	p.activeAssignments.Set(float64(count))
}

func (p *Prometheus) RecordPersistenceError(artifact string) {
	p.persistenceErrors.WithLabelValues(artifact).Inc()
}

func (p *Prometheus) RecordReconcile(advanced bool) {
	outcome := "unchanged"
	if advanced {
		outcome = "advanced"
	}
	p.reconcilePasses.WithLabelValues(outcome).Inc()
}
