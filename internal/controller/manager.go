package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/cluster"
	"github.com/gitopslab/sync-controller/internal/metrics"
	"github.com/gitopslab/sync-controller/internal/observe"
	"github.com/gitopslab/sync-controller/internal/render"
	"github.com/gitopslab/sync-controller/internal/source"
	"github.com/gitopslab/sync-controller/internal/syncer"
	"github.com/gitopslab/sync-controller/internal/track"
)

// Config holds all configuration options for the controller manager.
// Values are typically populated from CLI flags or environment variables.
type Config struct {
	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string

	// HealthAddr is the address for health and readiness probe endpoints.
	HealthAddr string

	// LeaderElect enables leader election for high availability.
	// Required when running multiple replicas.
	LeaderElect bool

	// LeaderElectNS is the namespace for the leader election lease.
	LeaderElectNS string

	// LeaderElectName is the name of the leader election lease.
	LeaderElectName string

	// WatchNamespace restricts the controller to Applications in one
	// namespace. Empty watches the whole cluster.
	WatchNamespace string

	// SyncInterval is the steady-state reconcile period per Application.
	SyncInterval time.Duration

	// RetryDelay is the requeue delay after transient failures.
	RetryDelay time.Duration

	// MaxConcurrentReconciles bounds parallel reconciles across
	// Applications.
	MaxConcurrentReconciles int

	// ChartCacheDir is where fetched charts and archives land. Empty uses
	// a directory under the OS temp dir.
	ChartCacheDir string

	// SourceTimeout bounds a single registry call or archive download.
	SourceTimeout time.Duration

	// ApplyParallelism bounds concurrent resource writes within one sync
	// wave.
	ApplyParallelism int
}

// Run initializes and starts the controller manager with the provided
// configuration. It wires the source resolver, renderer, observer, and
// sync executor into the Application reconciler and blocks until the
// context is cancelled or an error occurs.
//
//nolint:funlen,noinlineerr // controller setup requires multiple steps
func Run(ctx context.Context, cfg *Config) error {
	logger := log.FromContext(ctx).WithName("manager")
	logger.Info("initializing controller manager")

	mgrOptions := ctrl.Options{
		Metrics: server.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.HealthAddr,
	}

	if cfg.WatchNamespace != "" {
		mgrOptions.Cache = cache.Options{
			DefaultNamespaces: map[string]cache.Config{cfg.WatchNamespace: {}},
		}

		logger.Info("watching single namespace", "namespace", cfg.WatchNamespace)
	}

	if cfg.LeaderElect {
		mgrOptions.LeaderElection = true
		mgrOptions.LeaderElectionID = cfg.LeaderElectName
		mgrOptions.LeaderElectionNamespace = cfg.LeaderElectNS

		logger.Info("leader election enabled",
			"id", cfg.LeaderElectName,
			"namespace", cfg.LeaderElectNS,
		)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOptions)
	if err != nil {
		return errors.Wrap(err, "failed to create manager")
	}

	if err := v1alpha1.AddToScheme(mgr.GetScheme()); err != nil {
		return errors.Wrap(err, "failed to add application scheme")
	}

	collector := metrics.NewCollector(ctrlmetrics.Registry)

	resolver, err := source.NewResolver(cfg.ChartCacheDir, cfg.SourceTimeout, collector, slog.Default())
	if err != nil {
		return errors.Wrap(err, "failed to create source resolver")
	}

	reconciler := &ApplicationReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Sources:  resolver,
		Renderer: render.NewRenderer(collector, slog.Default()),
		Observer: observe.NewObserver(collector, slog.Default()),
		Clusters: cluster.NewFactory(mgr.GetClient(), mgr.GetScheme()),
		Executor: syncer.NewExecutor(collector, slog.Default(), cfg.ApplyParallelism),
		Tracker:  track.NewTracker(),
		Metrics:  collector,

		SyncInterval:            cfg.SyncInterval,
		RetryDelay:              cfg.RetryDelay,
		MaxConcurrentReconciles: cfg.MaxConcurrentReconciles,
	}

	if err := reconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup application controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up health check")
	}

	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up ready check")
	}

	logger.Info("starting manager")

	if err := mgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start manager")
	}

	return nil
}
