package controller

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/api/meta/testrestmapper"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/cluster"
	"github.com/gitopslab/sync-controller/internal/diff"
	"github.com/gitopslab/sync-controller/internal/metrics"
	"github.com/gitopslab/sync-controller/internal/observe"
	"github.com/gitopslab/sync-controller/internal/render"
	"github.com/gitopslab/sync-controller/internal/resource"
	"github.com/gitopslab/sync-controller/internal/source"
	"github.com/gitopslab/sync-controller/internal/syncer"
	"github.com/gitopslab/sync-controller/internal/track"
)

func setupAppFakeClient(objs ...client.Object) client.WithWatch {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	return fake.NewClientBuilder().
		WithScheme(scheme).
		WithRESTMapper(testrestmapper.TestOnlyStaticRESTMapper(scheme)).
		WithObjects(objs...).
		WithStatusSubresource(&v1alpha1.Application{}).
		Build()
}

func setupAppReconciler(t *testing.T, fakeClient client.WithWatch) *ApplicationReconciler {
	t.Helper()

	collector := metrics.NewNoopCollector()

	resolver, err := source.NewResolver(t.TempDir(), time.Second, collector, nil)
	require.NoError(t, err)

	return &ApplicationReconciler{
		Client:   fakeClient,
		Scheme:   fakeClient.Scheme(),
		Sources:  resolver,
		Renderer: render.NewRenderer(collector, nil),
		Observer: observe.NewObserver(collector, nil),
		Clusters: cluster.NewFactory(fakeClient, fakeClient.Scheme()),
		Executor: syncer.NewExecutor(collector, nil, 2),
		Tracker:  track.NewTracker(),
		Metrics:  collector,

		SyncInterval: time.Minute,
		RetryDelay:   time.Second,
		AbortPoll:    10 * time.Millisecond,
	}
}

// writeManifests populates a directory source with one ConfigMap manifest
// and returns the directory.
func writeManifests(t *testing.T, data string) string {
	t.Helper()

	dir := t.TempDir()
	manifest := `apiVersion: v1
kind: ConfigMap
metadata:
  name: app-config
data:
  color: ` + data + `
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configmap.yaml"), []byte(manifest), 0o600))

	return dir
}

func testApp(name, repoURL string, policy *v1alpha1.SyncPolicy) *v1alpha1.Application {
	return &v1alpha1.Application{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "default",
		},
		Spec: v1alpha1.ApplicationSpec{
			Source:      v1alpha1.SourceSpec{RepoURL: repoURL},
			Destination: v1alpha1.DestinationSpec{Namespace: "prod"},
			SyncPolicy:  policy,
		},
	}
}

func automatedPolicy(prune bool) *v1alpha1.SyncPolicy {
	return &v1alpha1.SyncPolicy{
		Automated: &v1alpha1.AutomatedSync{Prune: prune},
	}
}

func reconcileOnce(t *testing.T, r *ApplicationReconciler, name string) ctrl.Result {
	t.Helper()

	result, err := r.Reconcile(context.Background(), ctrl.Request{
		NamespacedName: types.NamespacedName{Name: name, Namespace: "default"},
	})
	require.NoError(t, err)

	return result
}

func getApp(t *testing.T, c client.Client, name string) *v1alpha1.Application {
	t.Helper()

	app := &v1alpha1.Application{}
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: name, Namespace: "default"}, app))

	return app
}

func TestApplicationReconciler_ConvergesFromDirectorySource(t *testing.T) {
	t.Parallel()

	dir := writeManifests(t, "blue")
	app := testApp("web", dir, automatedPolicy(true))
	fakeClient := setupAppFakeClient(app)
	reconciler := setupAppReconciler(t, fakeClient)

	result := reconcileOnce(t, reconciler, "web")
	assert.Equal(t, time.Second, result.RequeueAfter)

	cm := &corev1.ConfigMap{}
	require.NoError(t, fakeClient.Get(context.Background(),
		types.NamespacedName{Name: "app-config", Namespace: "prod"}, cm))
	assert.Equal(t, "blue", cm.Data["color"])
	assert.Equal(t, "web", cm.Labels[v1alpha1.ApplicationLabel])

	updated := getApp(t, fakeClient, "web")
	assert.True(t, controllerutil.ContainsFinalizer(updated, v1alpha1.Finalizer))
	require.NotNil(t, updated.Status.OperationState)
	assert.Equal(t, v1alpha1.OperationSucceeded, updated.Status.OperationState.Phase)
	assert.Equal(t, v1alpha1.TriggerAutomated, updated.Status.OperationState.Trigger)
	assert.Equal(t, v1alpha1.SyncStatusSynced, updated.Status.Sync.Status)
	require.Len(t, updated.Status.Inventory, 1)
	assert.Equal(t, "prod_app-config__ConfigMap", updated.Status.Inventory[0].ID)
	assert.Equal(t, "v1", updated.Status.Inventory[0].Version)
	require.Len(t, updated.Status.History, 1)
	assert.Equal(t, int64(1), updated.Status.History[0].ID)

	// Second pass sees no drift: no new operation, Ready turns true.
	result = reconcileOnce(t, reconciler, "web")
	assert.Equal(t, time.Minute, result.RequeueAfter)

	settled := getApp(t, fakeClient, "web")
	assert.Len(t, settled.Status.History, 1)
	assert.Equal(t, v1alpha1.SyncStatusSynced, settled.Status.Sync.Status)

	ready := apimeta.FindStatusCondition(settled.Status.Conditions, v1alpha1.ConditionReady)
	require.NotNil(t, ready)
	assert.Equal(t, metav1.ConditionTrue, ready.Status)

	syncing := apimeta.FindStatusCondition(settled.Status.Conditions, v1alpha1.ConditionSyncing)
	require.NotNil(t, syncing)
	assert.Equal(t, metav1.ConditionFalse, syncing.Status)
}

func TestApplicationReconciler_NotFound(t *testing.T) {
	t.Parallel()

	fakeClient := setupAppFakeClient()
	reconciler := setupAppReconciler(t, fakeClient)

	result, err := reconciler.Reconcile(context.Background(), ctrl.Request{
		NamespacedName: types.NamespacedName{Name: "gone", Namespace: "default"},
	})
	require.NoError(t, err)
	assert.Equal(t, ctrl.Result{}, result)
}

func TestApplicationReconciler_ManualSyncRequestRunsOnce(t *testing.T) {
	t.Parallel()

	dir := writeManifests(t, "green")
	app := testApp("manual", dir, nil)
	app.RequestSync(time.Now(), false)
	fakeClient := setupAppFakeClient(app)
	reconciler := setupAppReconciler(t, fakeClient)

	reconcileOnce(t, reconciler, "manual")

	updated := getApp(t, fakeClient, "manual")
	require.NotNil(t, updated.Status.OperationState)
	assert.Equal(t, v1alpha1.TriggerManual, updated.Status.OperationState.Trigger)
	assert.Equal(t, v1alpha1.OperationSucceeded, updated.Status.OperationState.Phase)
	assert.Equal(t, updated.Annotations[v1alpha1.SyncRequestedAtAnnotation], updated.Status.LastHandledRequestedAt)

	cm := &corev1.ConfigMap{}
	require.NoError(t, fakeClient.Get(context.Background(),
		types.NamespacedName{Name: "app-config", Namespace: "prod"}, cm))

	// The handled request does not trigger again.
	reconcileOnce(t, reconciler, "manual")

	settled := getApp(t, fakeClient, "manual")
	assert.Len(t, settled.Status.History, 1)
	assert.Equal(t, updated.Status.OperationState.ID, settled.Status.OperationState.ID)
}

func TestApplicationReconciler_DryRunWritesNothing(t *testing.T) {
	t.Parallel()

	dir := writeManifests(t, "red")
	app := testApp("preview", dir, nil)
	app.RequestSync(time.Now(), true)
	fakeClient := setupAppFakeClient(app)
	reconciler := setupAppReconciler(t, fakeClient)

	reconcileOnce(t, reconciler, "preview")

	cm := &corev1.ConfigMap{}
	err := fakeClient.Get(context.Background(),
		types.NamespacedName{Name: "app-config", Namespace: "prod"}, cm)
	assert.True(t, apierrors.IsNotFound(err))

	updated := getApp(t, fakeClient, "preview")
	require.NotNil(t, updated.Status.OperationState)
	assert.True(t, updated.Status.OperationState.DryRun)
	assert.Equal(t, v1alpha1.OperationSucceeded, updated.Status.OperationState.Phase)
	assert.Empty(t, updated.Status.Inventory)
	assert.Empty(t, updated.Status.History)
}

func TestApplicationReconciler_SourceErrorSetsCondition(t *testing.T) {
	t.Parallel()

	app := testApp("broken", filepath.Join(t.TempDir(), "missing"), automatedPolicy(false))
	fakeClient := setupAppFakeClient(app)
	reconciler := setupAppReconciler(t, fakeClient)

	result := reconcileOnce(t, reconciler, "broken")
	assert.Equal(t, time.Minute, result.RequeueAfter)

	updated := getApp(t, fakeClient, "broken")
	assert.Equal(t, v1alpha1.SyncStatusUnknown, updated.Status.Sync.Status)

	ready := apimeta.FindStatusCondition(updated.Status.Conditions, v1alpha1.ConditionReady)
	require.NotNil(t, ready)
	assert.Equal(t, metav1.ConditionFalse, ready.Status)
	assert.Equal(t, "RevisionNotFound", ready.Reason)
}

func TestApplicationReconciler_FinalizerCascadeDeletes(t *testing.T) {
	t.Parallel()

	now := metav1.Now()
	app := testApp("doomed", "/unused", automatedPolicy(true))
	app.Finalizers = []string{v1alpha1.Finalizer}
	app.DeletionTimestamp = &now
	app.Status.Inventory = []v1alpha1.InventoryEntry{
		{ID: "prod_app-config__ConfigMap", Version: "v1"},
	}

	managed := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app-config", Namespace: "prod"},
		Data:       map[string]string{"color": "blue"},
	}

	fakeClient := setupAppFakeClient(app, managed)
	reconciler := setupAppReconciler(t, fakeClient)

	result := reconcileOnce(t, reconciler, "doomed")
	assert.Equal(t, ctrl.Result{}, result)

	err := fakeClient.Get(context.Background(),
		types.NamespacedName{Name: "app-config", Namespace: "prod"}, &corev1.ConfigMap{})
	assert.True(t, apierrors.IsNotFound(err))

	err = fakeClient.Get(context.Background(),
		types.NamespacedName{Name: "doomed", Namespace: "default"}, &v1alpha1.Application{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestApplicationReconciler_DeletionWithoutPruneKeepsResources(t *testing.T) {
	t.Parallel()

	now := metav1.Now()
	app := testApp("kept", "/unused", automatedPolicy(false))
	app.Finalizers = []string{v1alpha1.Finalizer}
	app.DeletionTimestamp = &now
	app.Status.Inventory = []v1alpha1.InventoryEntry{
		{ID: "prod_app-config__ConfigMap", Version: "v1"},
	}

	managed := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app-config", Namespace: "prod"},
	}

	fakeClient := setupAppFakeClient(app, managed)
	reconciler := setupAppReconciler(t, fakeClient)

	reconcileOnce(t, reconciler, "kept")

	require.NoError(t, fakeClient.Get(context.Background(),
		types.NamespacedName{Name: "app-config", Namespace: "prod"}, &corev1.ConfigMap{}))

	err := fakeClient.Get(context.Background(),
		types.NamespacedName{Name: "kept", Namespace: "default"}, &v1alpha1.Application{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestApplicationReconciler_RecoverInterruptedOperation(t *testing.T) {
	t.Parallel()

	app := testApp("orphaned-op", "/unused", nil)
	app.Status.OperationState = &v1alpha1.OperationState{
		ID:        "11111111-2222-3333-4444-555555555555",
		Phase:     v1alpha1.OperationRunning,
		Trigger:   v1alpha1.TriggerAutomated,
		Revision:  "dir-abc",
		StartedAt: metav1.Now(),
	}

	fakeClient := setupAppFakeClient(app)
	reconciler := setupAppReconciler(t, fakeClient)

	require.NoError(t, reconciler.recoverInterrupted(context.Background(), app))

	updated := getApp(t, fakeClient, "orphaned-op")
	require.NotNil(t, updated.Status.OperationState)
	assert.Equal(t, v1alpha1.OperationError, updated.Status.OperationState.Phase)
	assert.Contains(t, updated.Status.OperationState.Message, "interrupted")
	require.NotNil(t, updated.Status.OperationState.FinishedAt)
}

func TestDecide(t *testing.T) {
	t.Parallel()

	reconciler := &ApplicationReconciler{}
	now := time.Now()

	createEntry := []diff.Entry{{
		Ref:            resource.Ref{Key: resource.Key{Kind: "ConfigMap", Namespace: "prod", Name: "a"}, Version: "v1"},
		Classification: diff.ClassCreate,
	}}
	deleteEntry := []diff.Entry{{
		Ref:            resource.Ref{Key: resource.Key{Kind: "ConfigMap", Namespace: "prod", Name: "b"}, Version: "v1"},
		Classification: diff.ClassDelete,
	}}
	unchangedEntry := []diff.Entry{{
		Ref:            resource.Ref{Key: resource.Key{Kind: "ConfigMap", Namespace: "prod", Name: "c"}, Version: "v1"},
		Classification: diff.ClassUnchanged,
	}}

	t.Run("manual request wins regardless of policy", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", nil)
		app.RequestSync(now, true)

		decision, err := reconciler.decide(app, "rev-1", unchangedEntry, false, now)
		require.NoError(t, err)
		require.NotNil(t, decision)
		assert.Equal(t, v1alpha1.TriggerManual, decision.trigger)
		assert.True(t, decision.dryRun)
		assert.NotEmpty(t, decision.request)
	})

	t.Run("no automated policy means no sync", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", nil)

		decision, err := reconciler.decide(app, "rev-1", createEntry, true, now)
		require.NoError(t, err)
		assert.Nil(t, decision)
	})

	t.Run("automated sync on new revision", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", automatedPolicy(false))

		decision, err := reconciler.decide(app, "rev-1", createEntry, false, now)
		require.NoError(t, err)
		require.NotNil(t, decision)
		assert.Equal(t, v1alpha1.TriggerAutomated, decision.trigger)
		assert.False(t, decision.dryRun)
	})

	t.Run("no work means no automated sync", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", automatedPolicy(true))

		decision, err := reconciler.decide(app, "rev-1", unchangedEntry, true, now)
		require.NoError(t, err)
		assert.Nil(t, decision)
	})

	t.Run("delete candidates need prune to count as work", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", automatedPolicy(false))

		decision, err := reconciler.decide(app, "rev-1", deleteEntry, false, now)
		require.NoError(t, err)
		assert.Nil(t, decision)

		app = testApp("a", "/src", automatedPolicy(true))

		decision, err = reconciler.decide(app, "rev-1", deleteEntry, true, now)
		require.NoError(t, err)
		require.NotNil(t, decision)
	})

	t.Run("drift at same revision requires self-heal", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", automatedPolicy(false))
		app.Status.OperationState = &v1alpha1.OperationState{Revision: "rev-1", Phase: v1alpha1.OperationSucceeded}

		decision, err := reconciler.decide(app, "rev-1", createEntry, false, now)
		require.NoError(t, err)
		assert.Nil(t, decision)

		app.Spec.SyncPolicy.Automated.SelfHeal = true

		decision, err = reconciler.decide(app, "rev-1", createEntry, false, now)
		require.NoError(t, err)
		require.NotNil(t, decision)
	})

	t.Run("active deny window suppresses automated sync", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", automatedPolicy(false))
		app.Spec.SyncPolicy.Windows = []v1alpha1.SyncWindow{
			{Kind: v1alpha1.WindowDeny, Schedule: "* * * * *", Duration: "2m"},
		}

		decision, err := reconciler.decide(app, "rev-1", createEntry, false, now)
		require.NoError(t, err)
		assert.Nil(t, decision)
	})

	t.Run("malformed window is an error", func(t *testing.T) {
		t.Parallel()

		app := testApp("a", "/src", automatedPolicy(false))
		app.Spec.SyncPolicy.Windows = []v1alpha1.SyncWindow{
			{Kind: v1alpha1.WindowAllow, Schedule: "not-cron", Duration: "1h"},
		}

		_, err := reconciler.decide(app, "rev-1", createEntry, false, now)
		require.Error(t, err)
	})
}

func TestObservationRefsSkipsUnaddressableInventory(t *testing.T) {
	t.Parallel()

	desired := &unstructured.Unstructured{}
	desired.SetGroupVersionKind(schema.GroupVersionKind{Version: "v1", Kind: "ConfigMap"})
	desired.SetNamespace("prod")
	desired.SetName("fresh")

	refs := observationRefs([]*unstructured.Unstructured{desired}, []v1alpha1.InventoryEntry{
		{ID: "prod_old__ConfigMap", Version: "v1"},
		{ID: "not-an-id", Version: "v1"},
		{ID: "prod_versionless__ConfigMap"},
	})

	require.Len(t, refs, 2)
	assert.Equal(t, "fresh", refs[0].Name)
	assert.Equal(t, "old", refs[1].Name)
}

func TestCascadeEntriesFromInventory(t *testing.T) {
	t.Parallel()

	entries := cascadeEntries([]v1alpha1.InventoryEntry{
		{ID: "prod_app-config__ConfigMap", Version: "v1"},
		{ID: "_reader_rbac.authorization.k8s.io_ClusterRole", Version: "v1"},
		{ID: "garbage", Version: "v1"},
	})

	require.Len(t, entries, 2)

	for _, e := range entries {
		assert.Equal(t, diff.ClassDelete, e.Classification)
		assert.Equal(t, "v1", e.Ref.Version)
	}

	assert.Equal(t, "app-config", entries[0].Ref.Name)
	assert.Equal(t, "reader", entries[1].Ref.Name)
}
