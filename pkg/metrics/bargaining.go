package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the bargaining collectors.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	DecisionActivated   = "activated"
	DecisionDeactivated = "deactivated"
	DecisionDenied      = "denied"
)

// BargainingMetrics records catalog fetches, rule writes and admission decisions.
type BargainingMetrics struct {
	catalogFetch *prometheus.HistogramVec
	ruleWrites   *prometheus.CounterVec
	admission    *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// NewBargainingMetrics registers the bargaining collectors on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewBargainingMetrics(reg prometheus.Registerer) *BargainingMetrics {
	if reg == nil {
		return &BargainingMetrics{}
	}
	catalogFetch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_fetch_duration_seconds",
		Help:    "Duration of commerce catalog fetches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource", "outcome"})
	ruleWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bargaining_rule_writes_total",
		Help: "Rule upserts grouped by operation and outcome.",
	}, []string{"operation", "outcome"})
	admission := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bargaining_admission_decisions_total",
		Help: "Activation toggle decisions.",
	}, []string{"decision"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "category_cache_lookups_total",
		Help: "Category cache lookups grouped by hit or miss.",
	}, []string{"result"})
	reg.MustRegister(catalogFetch, ruleWrites, admission, cacheLookups)
	return &BargainingMetrics{
		catalogFetch: catalogFetch,
		ruleWrites:   ruleWrites,
		admission:    admission,
		cacheLookups: cacheLookups,
	}
}

// ObserveCatalogFetch records how long an upstream catalog call took.
func (m *BargainingMetrics) ObserveCatalogFetch(resource string, duration time.Duration, err error) {
	if m == nil || m.catalogFetch == nil {
		return
	}
	m.catalogFetch.WithLabelValues(normalizeLabel(resource), outcome(err)).Observe(duration.Seconds())
}

// AddRuleWrites counts applied and failed rule writes for an operation.
func (m *BargainingMetrics) AddRuleWrites(operation string, applied, failed int) {
	if m == nil || m.ruleWrites == nil {
		return
	}
	if applied > 0 {
		m.ruleWrites.WithLabelValues(normalizeLabel(operation), OutcomeSuccess).Add(float64(applied))
	}
	if failed > 0 {
		m.ruleWrites.WithLabelValues(normalizeLabel(operation), OutcomeFailure).Add(float64(failed))
	}
}

// IncAdmission counts a toggle decision.
func (m *BargainingMetrics) IncAdmission(decision string) {
	if m == nil || m.admission == nil {
		return
	}
	m.admission.WithLabelValues(normalizeLabel(decision)).Inc()
}

// IncCacheLookup counts a category cache hit or miss.
func (m *BargainingMetrics) IncCacheLookup(hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
