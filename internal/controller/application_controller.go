package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	corev1 "k8s.io/api/core/v1"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/cluster"
	"github.com/gitopslab/sync-controller/internal/diff"
	"github.com/gitopslab/sync-controller/internal/metrics"
	"github.com/gitopslab/sync-controller/internal/observe"
	"github.com/gitopslab/sync-controller/internal/reason"
	"github.com/gitopslab/sync-controller/internal/render"
	"github.com/gitopslab/sync-controller/internal/resource"
	"github.com/gitopslab/sync-controller/internal/source"
	"github.com/gitopslab/sync-controller/internal/syncer"
	"github.com/gitopslab/sync-controller/internal/track"
)

// Defaults for the reconciler's timing knobs.
const (
	DefaultSyncInterval = 3 * time.Minute
	DefaultRetryDelay   = 15 * time.Second
	DefaultAbortPoll    = 2 * time.Second
)

// ApplicationReconciler drives the full reconcile pass for Applications:
// resolve the source, render and normalize the desired state, observe the
// destination cluster, diff, publish the comparison, and run a sync
// operation when policy or a manual request calls for one.
type ApplicationReconciler struct {
	client.Client

	Scheme *runtime.Scheme

	Sources  *source.Resolver
	Renderer *render.Renderer
	Observer *observe.Observer
	Clusters *cluster.Factory
	Executor *syncer.Executor
	Tracker  *track.Tracker
	Metrics  metrics.Collector

	// SyncInterval is the steady-state requeue period. Every successful
	// pass requeues so drift is noticed without cluster watches on the
	// destination.
	SyncInterval time.Duration

	// RetryDelay is the requeue delay after transient failures and after a
	// completed operation, so status converges on the post-sync live state
	// quickly.
	RetryDelay time.Duration

	// AbortPoll is how often an in-flight operation re-reads the
	// Application to look for an abort request.
	AbortPoll time.Duration

	// MaxConcurrentReconciles bounds parallel reconciles across
	// applications. A single application never reconciles concurrently.
	MaxConcurrentReconciles int
}

// syncDecision is the outcome of the trigger evaluation for one pass. A nil
// decision means no operation starts.
type syncDecision struct {
	trigger v1alpha1.TriggerType
	dryRun  bool
	request string
}

// Reconcile runs one pass for the Application named in the request.
//
//nolint:noinlineerr // controller reconcile logic
func (r *ApplicationReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	start := time.Now()

	app := &v1alpha1.Application{}
	if err := r.Get(ctx, req.NamespacedName, app); err != nil {
		if apierrors.IsNotFound(err) {
			r.Tracker.Forget(req.NamespacedName)

			return ctrl.Result{}, nil
		}

		return ctrl.Result{}, errors.Wrap(err, "failed to get application")
	}

	if !app.DeletionTimestamp.IsZero() {
		return r.finalize(ctx, app)
	}

	if !controllerutil.ContainsFinalizer(app, v1alpha1.Finalizer) {
		controllerutil.AddFinalizer(app, v1alpha1.Finalizer)

		if err := r.Update(ctx, app); err != nil {
			return ctrl.Result{}, errors.Wrap(err, "failed to add finalizer")
		}
	}

	result, err := r.runPass(ctx, app)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	r.Metrics.RecordReconcile(ctx, outcome, time.Since(start))

	if err == nil {
		return result, nil
	}

	class := reason.Classify(err)
	r.Metrics.RecordPassError(ctx, string(class))
	logger.Error(err, "reconcile pass failed", "reason", string(class))
	r.publishPassFailure(ctx, req.NamespacedName, class, err)

	if reason.IsTransient(class) {
		return ctrl.Result{RequeueAfter: r.retryDelay()}, nil
	}

	return ctrl.Result{RequeueAfter: r.syncInterval()}, nil
}

// runPass executes the resolve-render-observe-diff-sync sequence once.
// Errors carry a reason mark so the caller can pick the requeue delay.
//
//nolint:funcorder // pass stages follow execution order
func (r *ApplicationReconciler) runPass(ctx context.Context, app *v1alpha1.Application) (ctrl.Result, error) {
	key := client.ObjectKeyFromObject(app)

	if err := r.recoverInterrupted(ctx, app); err != nil {
		return ctrl.Result{}, err
	}

	target, err := r.Clusters.TargetFor(ctx, app)
	if err != nil {
		return ctrl.Result{}, reason.Mark(err, reason.ObserverUnavailable)
	}

	revision, err := r.Sources.Resolve(ctx, app.Spec.Source)
	if err != nil {
		return ctrl.Result{}, err
	}

	snapshot, err := r.Sources.Fetch(ctx, app.Spec.Source, revision)
	if err != nil {
		return ctrl.Result{}, err
	}

	rendered, err := r.Renderer.Render(ctx, app, snapshot)
	if err != nil {
		return ctrl.Result{}, err
	}

	desired, err := r.normalizeDesired(app, target, rendered)
	if err != nil {
		return ctrl.Result{}, err
	}

	observation, err := r.Observer.Observe(ctx, target, observationRefs(desired, app.Status.Inventory), observe.Options{})
	if err != nil {
		return ctrl.Result{}, err
	}

	entries := diff.Calculate(desired, observation.Live)
	r.Tracker.SetDiff(key, revision, entries)
	r.recordDiffMetrics(ctx, app.Name, entries)

	prune := app.Spec.IsPruneEnabled()

	if err := r.publishComparison(ctx, key, summarize(revision, entries, prune, time.Now())); err != nil {
		return ctrl.Result{}, err
	}

	decision, err := r.decide(app, revision, entries, prune, time.Now())
	if err != nil {
		return ctrl.Result{}, err
	}

	if decision == nil {
		return ctrl.Result{RequeueAfter: r.syncInterval()}, nil
	}

	if err := r.executeOperation(ctx, app, target, revision, entries, decision); err != nil {
		return ctrl.Result{}, err
	}

	// Requeue soon so status reflects the post-operation live state.
	return ctrl.Result{RequeueAfter: r.retryDelay()}, nil
}

// recoverInterrupted closes out an operation left in a running phase by a
// previous controller instance. The in-memory registry is authoritative for
// liveness: a non-terminal phase without a registered operation means the
// process died mid-operation.
func (r *ApplicationReconciler) recoverInterrupted(ctx context.Context, app *v1alpha1.Application) error {
	op := app.Status.OperationState
	if op == nil || op.Phase.Completed() {
		return nil
	}

	key := client.ObjectKeyFromObject(app)
	if _, running := r.Tracker.Running(key); running {
		return nil
	}

	log.FromContext(ctx).Info("closing operation interrupted by restart", "operation", op.ID)

	finishedAt := metav1.Now()

	_, err := r.patchStatus(ctx, key, func(a *v1alpha1.Application) {
		state := a.Status.OperationState
		if state == nil || state.ID != op.ID || state.Phase.Completed() {
			return
		}

		state.Phase = v1alpha1.OperationError
		state.Message = "operation interrupted by controller restart"
		state.FinishedAt = &finishedAt

		apimeta.SetStatusCondition(&a.Status.Conditions, metav1.Condition{
			Type:               v1alpha1.ConditionSyncing,
			Status:             metav1.ConditionFalse,
			ObservedGeneration: a.Generation,
			Reason:             string(v1alpha1.OperationError),
			Message:            state.Message,
		})
	})

	return err
}

// normalizeDesired applies destination defaults to rendered objects:
// namespaced kinds without a namespace get the destination namespace,
// cluster-scoped kinds have any namespace stripped, and every object is
// labeled with the owning application. Objects are mutated in place.
func (r *ApplicationReconciler) normalizeDesired(
	app *v1alpha1.Application,
	target *cluster.Target,
	objects []*unstructured.Unstructured,
) ([]*unstructured.Unstructured, error) {
	defaultNamespace := app.Spec.Destination.Namespace
	if defaultNamespace == "" {
		defaultNamespace = app.Namespace
	}

	seen := make(map[resource.Key]struct{}, len(objects))

	for _, obj := range objects {
		namespaced, err := target.IsNamespaced(obj)

		switch {
		case apimeta.IsNoMatchError(err) || runtime.IsNotRegisteredError(err):
			// Unknown kind, typically a custom resource whose definition is
			// created in the same operation. Trust the manifest's scoping.
			namespaced = obj.GetNamespace() != ""
		case err != nil:
			return nil, reason.Mark(err, reason.ObserverUnavailable)
		}

		if namespaced && obj.GetNamespace() == "" {
			obj.SetNamespace(defaultNamespace)
		}

		if !namespaced {
			unstructured.RemoveNestedField(obj.Object, "metadata", "namespace")
		}

		labels := obj.GetLabels()
		if labels == nil {
			labels = make(map[string]string, 1)
		}

		labels[v1alpha1.ApplicationLabel] = app.Name
		obj.SetLabels(labels)

		key := resource.KeyFor(obj)
		if _, dup := seen[key]; dup {
			return nil, reason.Mark(errors.Newf("duplicate resource %s after namespace defaulting", key), reason.RenderError)
		}

		seen[key] = struct{}{}
	}

	return objects, nil
}

// decide evaluates sync triggers for this pass. Manual requests always win
// and ignore windows; automated syncs require actionable work, an open
// window, and either a new revision or self-heal.
func (r *ApplicationReconciler) decide(
	app *v1alpha1.Application,
	revision string,
	entries []diff.Entry,
	prune bool,
	now time.Time,
) (*syncDecision, error) {
	if request, pending := app.PendingSyncRequest(); pending {
		return &syncDecision{
			trigger: v1alpha1.TriggerManual,
			dryRun:  app.IsDryRunRequested(),
			request: request,
		}, nil
	}

	if !app.Spec.IsAutomatedSyncEnabled() {
		return nil, nil
	}

	if !hasWork(entries, prune) {
		return nil, nil
	}

	allowed, err := windowsAllow(app.Spec.SyncPolicy.Windows, now)
	if err != nil {
		return nil, reason.Mark(errors.Wrap(err, "invalid sync windows"), reason.RenderError)
	}

	if !allowed {
		return nil, nil
	}

	revisionChanged := app.Status.OperationState == nil || app.Status.OperationState.Revision != revision
	if revisionChanged || app.Spec.IsSelfHealEnabled() {
		return &syncDecision{trigger: v1alpha1.TriggerAutomated}, nil
	}

	return nil, nil
}

// executeOperation runs one sync operation end to end: record the start,
// spawn the abort watcher, run the executor, and record the terminal state
// with its inventory and history updates.
func (r *ApplicationReconciler) executeOperation(
	ctx context.Context,
	app *v1alpha1.Application,
	target *cluster.Target,
	revision string,
	entries []diff.Entry,
	decision *syncDecision,
) error {
	logger := log.FromContext(ctx)
	key := client.ObjectKeyFromObject(app)

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.NewString()
	startedAt := metav1.Now()

	if err := r.Tracker.Begin(key, id, startedAt.Time, cancel); err != nil {
		return reason.Mark(err, reason.Conflict)
	}
	defer r.Tracker.End(key, id)

	policy := syncer.PolicyFor(app, decision.dryRun)

	op := v1alpha1.OperationState{
		ID:        id,
		Phase:     v1alpha1.OperationRunning,
		Trigger:   decision.trigger,
		DryRun:    decision.dryRun,
		Prune:     policy.Prune,
		Revision:  revision,
		Message:   "sync operation in progress",
		StartedAt: startedAt,
	}

	_, err := r.patchStatus(ctx, key, func(a *v1alpha1.Application) {
		a.Status.OperationState = op.DeepCopy()
		if decision.request != "" {
			a.Status.LastHandledRequestedAt = decision.request
		}

		apimeta.SetStatusCondition(&a.Status.Conditions, metav1.Condition{
			Type:               v1alpha1.ConditionSyncing,
			Status:             metav1.ConditionTrue,
			ObservedGeneration: a.Generation,
			Reason:             string(v1alpha1.OperationRunning),
			Message:            fmt.Sprintf("%s sync at %s", decision.trigger, revision),
		})
	})
	if err != nil {
		return errors.Wrap(err, "failed to record operation start")
	}

	logger.Info("sync operation started",
		"operation", id,
		"trigger", decision.trigger,
		"revision", revision,
		"dryRun", decision.dryRun,
		"prune", policy.Prune,
	)

	go r.watchAbort(opCtx, key, startedAt.Time, cancel)

	outcome := r.Executor.Run(opCtx, syncer.Input{
		App:     key,
		Target:  target,
		Entries: entries,
		Policy:  policy,
	})

	finishedAt := metav1.Now()
	r.Metrics.RecordSyncOperation(ctx, string(decision.trigger), string(outcome.Phase), finishedAt.Sub(startedAt.Time))

	op.Phase = outcome.Phase
	op.Message = outcome.Message
	op.FinishedAt = &finishedAt
	op.Results = outcome.Results

	updated, err := r.patchStatus(ctx, key, func(a *v1alpha1.Application) {
		a.Status.OperationState = op.DeepCopy()

		apimeta.SetStatusCondition(&a.Status.Conditions, metav1.Condition{
			Type:               v1alpha1.ConditionSyncing,
			Status:             metav1.ConditionFalse,
			ObservedGeneration: a.Generation,
			Reason:             string(outcome.Phase),
			Message:            outcome.Message,
		})

		if decision.dryRun {
			return
		}

		a.Status.Inventory = nextInventory(a.Status.Inventory, outcome.Applied, outcome.Pruned)
		appendHistory(&a.Status, op, a.Spec.GetRevisionHistoryLimit())

		if outcome.Phase == v1alpha1.OperationSucceeded {
			comparedAt := metav1.Now()
			a.Status.Sync = v1alpha1.SyncStatus{
				Status:     v1alpha1.SyncStatusSynced,
				Revision:   revision,
				ComparedAt: &comparedAt,
			}
		}
	})
	if err != nil {
		return errors.Wrap(err, "failed to record operation result")
	}

	r.Metrics.RecordManagedResources(ctx, app.Name, len(updated.Status.Inventory))

	logger.Info("sync operation finished",
		"operation", id,
		"phase", outcome.Phase,
		"applied", len(outcome.Applied),
		"pruned", len(outcome.Pruned),
	)

	return nil
}

// watchAbort polls the Application for an abort request and cancels the
// operation when one arrives. Deletion of the Application aborts too, so
// the finalizer pass is not blocked behind a long operation.
func (r *ApplicationReconciler) watchAbort(ctx context.Context, key types.NamespacedName, startedAt time.Time, cancel context.CancelFunc) {
	ticker := time.NewTicker(r.abortPoll())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		app := &v1alpha1.Application{}
		if err := r.Get(ctx, key, app); err != nil {
			if apierrors.IsNotFound(err) {
				cancel()

				return
			}

			continue
		}

		if app.AbortRequestedSince(startedAt) || !app.DeletionTimestamp.IsZero() {
			log.FromContext(ctx).Info("aborting sync operation", "application", key.String())
			cancel()

			return
		}
	}
}

// finalize runs the deletion path: cascade-delete inventory resources when
// pruning is enabled, then release the finalizer. An unreachable
// destination keeps the finalizer in place and retries.
func (r *ApplicationReconciler) finalize(ctx context.Context, app *v1alpha1.Application) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	key := client.ObjectKeyFromObject(app)

	if !controllerutil.ContainsFinalizer(app, v1alpha1.Finalizer) {
		r.Tracker.Forget(key)

		return ctrl.Result{}, nil
	}

	if app.Spec.IsPruneEnabled() && len(app.Status.Inventory) > 0 {
		target, err := r.Clusters.TargetFor(ctx, app)
		if err != nil {
			return ctrl.Result{}, reason.Mark(err, reason.ObserverUnavailable)
		}

		outcome := r.Executor.Run(ctx, syncer.Input{
			App:     key,
			Target:  target,
			Entries: cascadeEntries(app.Status.Inventory),
			Policy: syncer.Policy{
				Prune:          true,
				RetryLimit:     app.Spec.GetRetryLimit(),
				RetryBaseDelay: app.Spec.GetRetryBaseDelay(),
				RetryFactor:    app.Spec.GetRetryFactor(),
				RetryMaxDelay:  app.Spec.GetRetryMaxDelay(),
			},
		})

		if outcome.Phase != v1alpha1.OperationSucceeded {
			logger.Info("cascade deletion incomplete, retrying",
				"phase", outcome.Phase,
				"message", outcome.Message,
			)

			// Drop what is already gone so the next attempt shrinks.
			if _, err := r.patchStatus(ctx, key, func(a *v1alpha1.Application) {
				a.Status.Inventory = nextInventory(a.Status.Inventory, nil, outcome.Pruned)
			}); err != nil {
				return ctrl.Result{}, err
			}

			return ctrl.Result{RequeueAfter: r.retryDelay()}, nil
		}

		logger.Info("cascade deletion complete", "pruned", len(outcome.Pruned))
	}

	r.Tracker.Forget(key)
	controllerutil.RemoveFinalizer(app, v1alpha1.Finalizer)

	if err := r.Update(ctx, app); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to remove finalizer")
	}

	logger.Info("application finalized", "application", key.String())

	return ctrl.Result{}, nil
}

func (r *ApplicationReconciler) recordDiffMetrics(ctx context.Context, app string, entries []diff.Entry) {
	stats := diff.Stats(entries)

	for _, class := range []diff.Classification{
		diff.ClassCreate, diff.ClassUpdate, diff.ClassDelete, diff.ClassUnchanged, diff.ClassConflict,
	} {
		r.Metrics.RecordDiff(ctx, app, string(class), stats[class])
	}
}

func (r *ApplicationReconciler) syncInterval() time.Duration {
	if r.SyncInterval > 0 {
		return r.SyncInterval
	}

	return DefaultSyncInterval
}

func (r *ApplicationReconciler) retryDelay() time.Duration {
	if r.RetryDelay > 0 {
		return r.RetryDelay
	}

	return DefaultRetryDelay
}

func (r *ApplicationReconciler) abortPoll() time.Duration {
	if r.AbortPoll > 0 {
		return r.AbortPoll
	}

	return DefaultAbortPoll
}

func (r *ApplicationReconciler) maxConcurrentReconciles() int {
	if r.MaxConcurrentReconciles > 0 {
		return r.MaxConcurrentReconciles
	}

	return 1
}

// SetupWithManager registers the controller. Applications are requeued on
// spec and annotation changes; generation-only filtering would miss manual
// sync and abort requests. Kubeconfig Secrets requeue the Applications
// built on them.
func (r *ApplicationReconciler) SetupWithManager(mgr ctrl.Manager) error {
	//nolint:wrapcheck // controller-runtime builder pattern
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.Application{}, builder.WithPredicates(predicate.Or(
			predicate.GenerationChangedPredicate{},
			predicate.AnnotationChangedPredicate{},
		))).
		Watches(&corev1.Secret{}, handler.EnqueueRequestsFromMapFunc(r.mapSecretToApplications)).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.maxConcurrentReconciles()}).
		Complete(r)
}

// hasWork reports whether the diff calls for any write under the given
// prune policy. Delete candidates only count when pruning is enabled.
func hasWork(entries []diff.Entry, prune bool) bool {
	for _, e := range entries {
		switch e.Classification {
		case diff.ClassCreate, diff.ClassUpdate, diff.ClassConflict:
			return true
		case diff.ClassDelete:
			if prune {
				return true
			}
		case diff.ClassUnchanged:
		}
	}

	return false
}

// observationRefs is the union of desired identities and the recorded
// inventory, so orphaned resources stay visible to the diff. Inventory
// entries that cannot be addressed are skipped; they drop out at the next
// inventory write.
func observationRefs(desired []*unstructured.Unstructured, inventory []v1alpha1.InventoryEntry) []resource.Ref {
	refs := make([]resource.Ref, 0, len(desired)+len(inventory))

	for _, obj := range desired {
		refs = append(refs, resource.RefFor(obj))
	}

	for _, entry := range inventory {
		key, err := resource.ParseInventoryID(entry.ID)
		if err != nil || entry.Version == "" {
			continue
		}

		refs = append(refs, resource.Ref{Key: key, Version: entry.Version})
	}

	return refs
}

// cascadeEntries builds delete candidates from the recorded inventory for
// the finalizer path.
func cascadeEntries(inventory []v1alpha1.InventoryEntry) []diff.Entry {
	entries := make([]diff.Entry, 0, len(inventory))

	for _, item := range inventory {
		key, err := resource.ParseInventoryID(item.ID)
		if err != nil || item.Version == "" {
			continue
		}

		entries = append(entries, diff.Entry{
			Ref:            resource.Ref{Key: key, Version: item.Version},
			Classification: diff.ClassDelete,
		})
	}

	return entries
}
