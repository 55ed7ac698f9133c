// Package metrics provides Prometheus metrics instrumentation for the controller.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
//
//nolint:interfacebloat // All methods are needed for comprehensive metrics coverage
type Collector interface {
	// Reconcile pass metrics
	RecordReconcile(ctx context.Context, outcome string, duration time.Duration)
	RecordManagedResources(ctx context.Context, app string, count int)

	// Pipeline stage metrics
	RecordSourceResolve(ctx context.Context, sourceType, outcome string, duration time.Duration)
	RecordRender(ctx context.Context, outcome string, duration time.Duration)
	RecordObserve(ctx context.Context, outcome string, duration time.Duration, resources int)
	RecordDiff(ctx context.Context, app, classification string, count int)

	// Sync operation metrics
	RecordSyncOperation(ctx context.Context, trigger, phase string, duration time.Duration)
	RecordResourceApply(ctx context.Context, action, outcome string)
	RecordApplyRetry(ctx context.Context, action string)
	RecordAbort(ctx context.Context)

	// Failure classification metrics
	RecordPassError(ctx context.Context, reason string)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	// Reconcile pass metrics
	reconcileDuration *prometheus.HistogramVec
	managedResources  *prometheus.GaugeVec

	// Pipeline stage metrics
	sourceResolveDuration *prometheus.HistogramVec
	renderDuration        *prometheus.HistogramVec
	observeDuration       *prometheus.HistogramVec
	observedResources     prometheus.Gauge
	diffResults           *prometheus.GaugeVec

	// Sync operation metrics
	syncDuration       *prometheus.HistogramVec
	resourceApplyTotal *prometheus.CounterVec
	applyRetriesTotal  *prometheus.CounterVec
	abortsTotal        prometheus.Counter

	// Failure classification metrics
	passErrorsTotal *prometheus.CounterVec
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initReconcileMetrics()
	c.initPipelineMetrics()
	c.initSyncMetrics()
	c.register(reg)

	return c
}

// RecordReconcile records the duration and outcome of one reconcile pass.
func (c *prometheusCollector) RecordReconcile(_ context.Context, outcome string, duration time.Duration) {
	c.reconcileDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordManagedResources records the inventory size of an application.
func (c *prometheusCollector) RecordManagedResources(_ context.Context, app string, count int) {
	c.managedResources.WithLabelValues(app).Set(float64(count))
}

// RecordSourceResolve records a revision resolve + fetch against a manifest source.
func (c *prometheusCollector) RecordSourceResolve(
	_ context.Context,
	sourceType, outcome string,
	duration time.Duration,
) {
	c.sourceResolveDuration.WithLabelValues(sourceType, outcome).Observe(duration.Seconds())
}

// RecordRender records a desired-state render.
func (c *prometheusCollector) RecordRender(_ context.Context, outcome string, duration time.Duration) {
	c.renderDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordObserve records a live-state observation pass.
func (c *prometheusCollector) RecordObserve(
	_ context.Context,
	outcome string,
	duration time.Duration,
	resources int,
) {
	c.observeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	c.observedResources.Set(float64(resources))
}

// RecordDiff records the number of diff entries of one classification.
func (c *prometheusCollector) RecordDiff(_ context.Context, app, classification string, count int) {
	c.diffResults.WithLabelValues(app, classification).Set(float64(count))
}

// RecordSyncOperation records a completed sync operation.
func (c *prometheusCollector) RecordSyncOperation(
	_ context.Context,
	trigger, phase string,
	duration time.Duration,
) {
	c.syncDuration.WithLabelValues(trigger, phase).Observe(duration.Seconds())
}

// RecordResourceApply records one per-resource apply outcome.
func (c *prometheusCollector) RecordResourceApply(_ context.Context, action, outcome string) {
	c.resourceApplyTotal.WithLabelValues(action, outcome).Inc()
}

// RecordApplyRetry records one per-resource retry attempt.
func (c *prometheusCollector) RecordApplyRetry(_ context.Context, action string) {
	c.applyRetriesTotal.WithLabelValues(action).Inc()
}

// RecordAbort records an aborted sync operation.
func (c *prometheusCollector) RecordAbort(_ context.Context) {
	c.abortsTotal.Inc()
}

// RecordPassError records a classified reconcile pass failure.
func (c *prometheusCollector) RecordPassError(_ context.Context, reason string) {
	c.passErrorsTotal.WithLabelValues(reason).Inc()
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitops_sync_reconcile_duration_seconds",
			Help:    "Duration of application reconcile passes",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)
	c.managedResources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gitops_sync_managed_resources",
			Help: "Number of resources in the application inventory",
		},
		[]string{"application"},
	)
	c.passErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitops_sync_pass_errors_total",
			Help: "Total reconcile pass failures by classification",
		},
		[]string{"reason"},
	)
}

func (c *prometheusCollector) initPipelineMetrics() {
	c.sourceResolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitops_sync_source_resolve_duration_seconds",
			Help:    "Duration of source revision resolution and fetch",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source_type", "outcome"},
	)
	c.renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitops_sync_render_duration_seconds",
			Help:    "Duration of desired state rendering",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)
	c.observeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitops_sync_observe_duration_seconds",
			Help:    "Duration of live state observation passes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)
	c.observedResources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitops_sync_observed_resources",
			Help: "Number of resources read in the latest observation pass",
		},
	)
	c.diffResults = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gitops_sync_diff_results",
			Help: "Diff entries by classification from the latest comparison",
		},
		[]string{"application", "classification"},
	)
}

func (c *prometheusCollector) initSyncMetrics() {
	c.syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitops_sync_operation_duration_seconds",
			Help:    "Duration of sync operations",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"trigger", "phase"},
	)
	c.resourceApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitops_sync_resource_applies_total",
			Help: "Total per-resource apply outcomes",
		},
		[]string{"action", "outcome"},
	)
	c.applyRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitops_sync_apply_retries_total",
			Help: "Total per-resource apply retries",
		},
		[]string{"action"},
	)
	c.abortsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gitops_sync_aborts_total",
			Help: "Total aborted sync operations",
		},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.reconcileDuration,
		c.managedResources,
		c.sourceResolveDuration,
		c.renderDuration,
		c.observeDuration,
		c.observedResources,
		c.diffResults,
		c.syncDuration,
		c.resourceApplyTotal,
		c.applyRetriesTotal,
		c.abortsTotal,
		c.passErrorsTotal,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordReconcile is a no-op.
func (c *NoopCollector) RecordReconcile(_ context.Context, _ string, _ time.Duration) {}

// RecordManagedResources is a no-op.
func (c *NoopCollector) RecordManagedResources(_ context.Context, _ string, _ int) {}

// RecordSourceResolve is a no-op.
func (c *NoopCollector) RecordSourceResolve(_ context.Context, _, _ string, _ time.Duration) {}

// RecordRender is a no-op.
func (c *NoopCollector) RecordRender(_ context.Context, _ string, _ time.Duration) {}

// RecordObserve is a no-op.
func (c *NoopCollector) RecordObserve(_ context.Context, _ string, _ time.Duration, _ int) {}

// RecordDiff is a no-op.
func (c *NoopCollector) RecordDiff(_ context.Context, _, _ string, _ int) {}

// RecordSyncOperation is a no-op.
func (c *NoopCollector) RecordSyncOperation(_ context.Context, _, _ string, _ time.Duration) {}

// RecordResourceApply is a no-op.
func (c *NoopCollector) RecordResourceApply(_ context.Context, _, _ string) {}

// RecordApplyRetry is a no-op.
func (c *NoopCollector) RecordApplyRetry(_ context.Context, _ string) {}

// RecordAbort is a no-op.
func (c *NoopCollector) RecordAbort(_ context.Context) {}

// RecordPassError is a no-op.
func (c *NoopCollector) RecordPassError(_ context.Context, _ string) {}
