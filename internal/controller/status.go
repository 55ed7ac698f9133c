package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set/v2"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/diff"
	"github.com/gitopslab/sync-controller/internal/health"
	"github.com/gitopslab/sync-controller/internal/reason"
	"github.com/gitopslab/sync-controller/internal/resource"
)

// Status conditions longer than this are truncated; failure chains from a
// large operation can run to pages.
const maxConditionMessage = 1024

// comparison is the status-facing projection of one diff.
type comparison struct {
	revision   string
	syncCode   v1alpha1.SyncStatusCode
	resources  []v1alpha1.ResourceStatus
	health     v1alpha1.HealthStatus
	comparedAt metav1.Time
}

// summarize projects diff entries into the resource statuses and aggregate
// codes published on the Application. With pruning disabled, delete
// candidates are presented as Unchanged: they are reported but not
// actionable under current policy, so they do not mark the application
// OutOfSync.
func summarize(revision string, entries []diff.Entry, prune bool, now time.Time) comparison {
	resources := make([]v1alpha1.ResourceStatus, 0, len(entries))
	codes := make([]v1alpha1.HealthCode, 0, len(entries))
	outOfSync := false

	for _, e := range entries {
		class := e.Classification
		if class == diff.ClassDelete && !prune {
			class = diff.ClassUnchanged
		}

		if class != diff.ClassUnchanged {
			outOfSync = true
		}

		assessed := health.Assess(e.Live)
		codes = append(codes, assessed.Code)

		resources = append(resources, v1alpha1.ResourceStatus{
			Group:     e.Ref.Group,
			Version:   e.Ref.Version,
			Kind:      e.Ref.Kind,
			Namespace: e.Ref.Namespace,
			Name:      e.Ref.Name,
			Status:    string(class),
			Health:    assessed.Code,
		})
	}

	code := v1alpha1.SyncStatusSynced
	if outOfSync {
		code = v1alpha1.SyncStatusOutOfSync
	}

	aggregate := health.Aggregate(codes)

	return comparison{
		revision:   revision,
		syncCode:   code,
		resources:  resources,
		health:     v1alpha1.HealthStatus{Status: aggregate, Message: healthMessage(aggregate, resources)},
		comparedAt: metav1.NewTime(now),
	}
}

// healthMessage names the first resource at the aggregate's severity, which
// is the one dragging the application down.
func healthMessage(aggregate v1alpha1.HealthCode, resources []v1alpha1.ResourceStatus) string {
	if aggregate == v1alpha1.HealthHealthy {
		return ""
	}

	for _, res := range resources {
		if res.Health == aggregate {
			identity := resource.Key{Group: res.Group, Kind: res.Kind, Namespace: res.Namespace, Name: res.Name}

			return fmt.Sprintf("%s is %s", identity, aggregate)
		}
	}

	return ""
}

func countOutOfSync(resources []v1alpha1.ResourceStatus) int {
	n := 0

	for _, res := range resources {
		if res.Status != string(diff.ClassUnchanged) {
			n++
		}
	}

	return n
}

// publishComparison writes the comparison to status together with the Ready
// condition derived from it.
func (r *ApplicationReconciler) publishComparison(ctx context.Context, key types.NamespacedName, c comparison) error {
	updated, err := r.patchStatus(ctx, key, func(app *v1alpha1.Application) {
		app.Status.ObservedGeneration = app.Generation
		app.Status.Sync = v1alpha1.SyncStatus{
			Status:     c.syncCode,
			Revision:   c.revision,
			ComparedAt: &c.comparedAt,
		}
		app.Status.Health = c.health
		app.Status.Resources = c.resources

		condition := metav1.Condition{
			Type:               v1alpha1.ConditionReady,
			Status:             metav1.ConditionTrue,
			ObservedGeneration: app.Generation,
			Reason:             string(v1alpha1.SyncStatusSynced),
			Message:            fmt.Sprintf("application is synced at %s", c.revision),
		}

		if c.syncCode != v1alpha1.SyncStatusSynced {
			condition.Status = metav1.ConditionFalse
			condition.Reason = string(v1alpha1.SyncStatusOutOfSync)
			condition.Message = fmt.Sprintf("%d of %d resources out of sync at %s",
				countOutOfSync(c.resources), len(c.resources), c.revision)
		}

		apimeta.SetStatusCondition(&app.Status.Conditions, condition)
	})
	if err != nil {
		return errors.Wrap(err, "failed to publish comparison")
	}

	r.Metrics.RecordManagedResources(ctx, key.Name, len(updated.Status.Inventory))

	return nil
}

// publishPassFailure is a best-effort status write after a failed pass. The
// comparison did not complete, so the sync status is Unknown.
func (r *ApplicationReconciler) publishPassFailure(ctx context.Context, key types.NamespacedName, class reason.Reason, passErr error) {
	message := passErr.Error()
	if len(message) > maxConditionMessage {
		message = message[:maxConditionMessage]
	}

	_, err := r.patchStatus(ctx, key, func(app *v1alpha1.Application) {
		app.Status.ObservedGeneration = app.Generation
		app.Status.Sync.Status = v1alpha1.SyncStatusUnknown

		apimeta.SetStatusCondition(&app.Status.Conditions, metav1.Condition{
			Type:               v1alpha1.ConditionReady,
			Status:             metav1.ConditionFalse,
			ObservedGeneration: app.Generation,
			Reason:             string(class),
			Message:            message,
		})
	})
	if err != nil {
		log.FromContext(ctx).Error(err, "failed to publish pass failure")
	}
}

// patchStatus applies mutate to a fresh read of the Application and writes
// the status subresource, retrying on conflicts. It returns the object as
// written.
func (r *ApplicationReconciler) patchStatus(ctx context.Context, key types.NamespacedName, mutate func(*v1alpha1.Application)) (*v1alpha1.Application, error) {
	app := &v1alpha1.Application{}

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		if err := r.Get(ctx, key, app); err != nil {
			return err
		}

		mutate(app)

		//nolint:wrapcheck // RetryOnConflict inspects the raw error
		return r.Status().Update(ctx, app)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to update application status")
	}

	return app, nil
}

// nextInventory applies the operation's set arithmetic: previous identities
// plus everything applied, minus everything pruned. Entries that cannot be
// parsed are dropped rather than carried forward.
func nextInventory(current []v1alpha1.InventoryEntry, applied, pruned []resource.Ref) []v1alpha1.InventoryEntry {
	ids := mapset.NewThreadUnsafeSet[string]()
	versions := make(map[string]string, len(current)+len(applied))

	for _, entry := range current {
		if _, err := resource.ParseInventoryID(entry.ID); err != nil {
			continue
		}

		ids.Add(entry.ID)
		versions[entry.ID] = entry.Version
	}

	for _, ref := range applied {
		id := ref.InventoryID()
		ids.Add(id)
		versions[id] = ref.Version
	}

	prunedIDs := mapset.NewThreadUnsafeSet[string]()
	for _, ref := range pruned {
		prunedIDs.Add(ref.InventoryID())
	}

	remaining := ids.Difference(prunedIDs)

	entries := make([]v1alpha1.InventoryEntry, 0, remaining.Cardinality())
	for _, id := range mapset.Sorted(remaining) {
		entries = append(entries, v1alpha1.InventoryEntry{ID: id, Version: versions[id]})
	}

	return entries
}

// appendHistory records a completed operation, trimming to the configured
// bound. History IDs grow monotonically per application so external tooling
// can page through rollout records.
func appendHistory(status *v1alpha1.ApplicationStatus, op v1alpha1.OperationState, limit int) {
	var nextID int64 = 1
	if n := len(status.History); n > 0 {
		nextID = status.History[n-1].ID + 1
	}

	status.History = append(status.History, v1alpha1.RevisionHistory{
		ID:         nextID,
		Revision:   op.Revision,
		Phase:      op.Phase,
		StartedAt:  op.StartedAt,
		FinishedAt: op.FinishedAt,
	})

	if limit <= 0 {
		limit = v1alpha1.DefaultRevisionHistoryLimit
	}

	if over := len(status.History) - limit; over > 0 {
		status.History = append([]v1alpha1.RevisionHistory(nil), status.History[over:]...)
	}
}
