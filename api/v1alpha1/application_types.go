package v1alpha1

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Annotations and labels understood by the controller.
const (
	// SyncRequestedAtAnnotation triggers a manual sync when its value differs
	// from status.lastHandledRequestedAt. The value should be an RFC 3339
	// timestamp so requests stay distinguishable.
	SyncRequestedAtAnnotation = "sync.gitopslab.io/requested-at"

	// SyncDryRunAnnotation makes the next manually requested sync a dry run
	// when set to "true".
	SyncDryRunAnnotation = "sync.gitopslab.io/dry-run"

	// AbortRequestedAtAnnotation aborts the in-flight sync operation when its
	// RFC 3339 value is later than the operation's start time.
	AbortRequestedAtAnnotation = "sync.gitopslab.io/abort-requested-at"

	// SyncWaveAnnotation orders managed resources within a sync operation.
	// The value is an integer; lower waves apply first. Missing means wave 0.
	SyncWaveAnnotation = "sync.gitopslab.io/sync-wave"

	// ApplicationLabel is attached to every managed resource and carries the
	// name of the owning Application.
	ApplicationLabel = "sync.gitopslab.io/application"

	// Finalizer enables cascade deletion of managed resources.
	Finalizer = "sync.gitopslab.io/finalizer"
)

// DefaultRevisionHistoryLimit bounds status.history when
// spec.revisionHistoryLimit is unset.
const DefaultRevisionHistoryLimit = 50

// Default retry budget applied when spec.syncPolicy.retry is absent.
const (
	DefaultRetryLimit     = 3
	DefaultRetryBaseDelay = 5 * time.Second
	DefaultRetryMaxDelay  = 3 * time.Minute
	DefaultRetryFactor    = 2
)

// SecretReference is a reference to a Kubernetes Secret.
type SecretReference struct {
	// Name of the Secret.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`

	// Namespace of the Secret. Defaults to the namespace of the referencing
	// Application.
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// Key in the Secret holding the kubeconfig. Defaults to "kubeconfig".
	// +optional
	Key string `json:"key,omitempty"`
}

// HelmSource configures value overlays for chart and templated sources.
type HelmSource struct {
	// ValueFiles are paths inside the source snapshot, merged over the chart
	// defaults in order. Later files win.
	// +optional
	ValueFiles []string `json:"valueFiles,omitempty"`

	// Values is an inline YAML document merged last, over all value files.
	// +optional
	Values string `json:"values,omitempty"`
}

// SourceSpec locates the manifest source of an Application.
type SourceSpec struct {
	// RepoURL selects the source adapter by scheme:
	// "oci://" for a chart registry, "https://" for a chart archive,
	// "file://" (or a bare path) for a local directory tree.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	RepoURL string `json:"repoURL"`

	// Path is the subdirectory inside a directory source to render from.
	// +optional
	Path string `json:"path,omitempty"`

	// TargetRevision pins the revision: an exact version, a semver range
	// for registry sources, or empty for the latest resolvable revision.
	// +optional
	TargetRevision string `json:"targetRevision,omitempty"`

	// Helm configures value overlays.
	// +optional
	Helm *HelmSource `json:"helm,omitempty"`
}

// DestinationSpec selects the cluster and default namespace to sync into.
type DestinationSpec struct {
	// Namespace is applied to namespaced resources rendered without one.
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// KubeconfigSecretRef selects a Secret holding a kubeconfig for an
	// external destination cluster. When nil the controller's own cluster
	// is the destination.
	// +optional
	KubeconfigSecretRef *SecretReference `json:"kubeconfigSecretRef,omitempty"`
}

// AutomatedSync enables syncing without a manual request.
type AutomatedSync struct {
	// Prune allows the controller to delete resources that disappeared from
	// the desired state. Without it they are only reported.
	// +optional
	Prune bool `json:"prune,omitempty"`

	// SelfHeal re-applies the desired state when live resources drift even
	// though the revision is unchanged.
	// +optional
	SelfHeal bool `json:"selfHeal,omitempty"`
}

// Backoff shapes the per-resource retry delays during a sync operation.
type Backoff struct {
	// Duration is the base delay before the first retry.
	// +optional
	Duration *metav1.Duration `json:"duration,omitempty"`

	// Factor multiplies the delay after every attempt.
	// +optional
	Factor *int64 `json:"factor,omitempty"`

	// MaxDuration caps the grown delay.
	// +optional
	MaxDuration *metav1.Duration `json:"maxDuration,omitempty"`
}

// RetryPolicy bounds per-resource retries during a sync operation.
type RetryPolicy struct {
	// Limit is the maximum number of retries after the initial attempt.
	// +optional
	// +kubebuilder:validation:Minimum=0
	Limit *int32 `json:"limit,omitempty"`

	// Backoff shapes the delay between attempts.
	// +optional
	Backoff *Backoff `json:"backoff,omitempty"`
}

// SyncWindow kinds.
const (
	WindowAllow = "allow"
	WindowDeny  = "deny"
)

// SyncWindow gates automated syncs on a recurring schedule.
type SyncWindow struct {
	// Kind decides whether the window allows or denies automated syncs
	// while active.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Enum=allow;deny
	Kind string `json:"kind"`

	// Schedule is a standard cron expression marking window activation.
	// +kubebuilder:validation:Required
	Schedule string `json:"schedule"`

	// Duration is how long the window stays active, as a Go duration.
	// +kubebuilder:validation:Required
	Duration string `json:"duration"`
}

// SyncPolicy controls when and how the Application syncs.
type SyncPolicy struct {
	// Automated enables automatic syncing on revision change, and on drift
	// when selfHeal is set. Manual requests work regardless.
	// +optional
	Automated *AutomatedSync `json:"automated,omitempty"`

	// Retry bounds per-resource retries. Defaults to 3 retries with
	// exponential backoff.
	// +optional
	Retry *RetryPolicy `json:"retry,omitempty"`

	// Windows gate automated syncs. Deny windows win over allow windows;
	// with only deny windows, syncing is allowed outside them.
	// +optional
	Windows []SyncWindow `json:"windows,omitempty"`
}

// ApplicationSpec defines the desired state of an Application.
type ApplicationSpec struct {
	// Source locates the versioned manifests.
	// +kubebuilder:validation:Required
	Source SourceSpec `json:"source"`

	// Destination selects the target cluster and default namespace.
	// +optional
	Destination DestinationSpec `json:"destination,omitempty"`

	// SyncPolicy controls automated syncing, retries, and windows.
	// +optional
	SyncPolicy *SyncPolicy `json:"syncPolicy,omitempty"`

	// RevisionHistoryLimit bounds status.history. Defaults to 50.
	// +optional
	// +kubebuilder:validation:Minimum=1
	RevisionHistoryLimit *int32 `json:"revisionHistoryLimit,omitempty"`
}

// SyncStatusCode summarizes the latest desired-vs-live comparison.
type SyncStatusCode string

const (
	SyncStatusSynced    SyncStatusCode = "Synced"
	SyncStatusOutOfSync SyncStatusCode = "OutOfSync"
	SyncStatusUnknown   SyncStatusCode = "Unknown"
)

// HealthCode is the aggregated or per-resource health signal.
type HealthCode string

const (
	HealthHealthy     HealthCode = "Healthy"
	HealthProgressing HealthCode = "Progressing"
	HealthDegraded    HealthCode = "Degraded"
	HealthMissing     HealthCode = "Missing"
	HealthUnknown     HealthCode = "Unknown"
)

// SyncStatus reports the latest comparison result.
type SyncStatus struct {
	// Status is Synced, OutOfSync, or Unknown.
	// +optional
	Status SyncStatusCode `json:"status,omitempty"`

	// Revision is the concrete revision the comparison used.
	// +optional
	Revision string `json:"revision,omitempty"`

	// ComparedAt is when the comparison ran.
	// +optional
	ComparedAt *metav1.Time `json:"comparedAt,omitempty"`
}

// HealthStatus reports aggregated application health.
type HealthStatus struct {
	// +optional
	Status HealthCode `json:"status,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`
}

// ResourceStatus is the per-identity outcome of the latest comparison.
type ResourceStatus struct {
	Group     string `json:"group,omitempty"`
	Version   string `json:"version,omitempty"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`

	// Status is the diff classification: Create, Update, Delete, Unchanged,
	// or Conflict.
	// +optional
	Status string `json:"status,omitempty"`

	// Health is the per-resource health signal.
	// +optional
	Health HealthCode `json:"health,omitempty"`
}

// InventoryEntry records one identity the Application has applied.
type InventoryEntry struct {
	// ID is the identity encoded as "<namespace>_<name>_<group>_<kind>".
	ID string `json:"id"`

	// Version is the API version used for the last apply.
	// +optional
	Version string `json:"v,omitempty"`
}

// OperationPhase is the lifecycle phase of a sync operation.
type OperationPhase string

const (
	OperationPending   OperationPhase = "Pending"
	OperationRunning   OperationPhase = "Running"
	OperationSucceeded OperationPhase = "Succeeded"
	OperationFailed    OperationPhase = "Failed"
	OperationError     OperationPhase = "Error"
)

// Completed reports whether the phase is terminal. Terminal phases never
// transition again.
func (p OperationPhase) Completed() bool {
	switch p {
	case OperationSucceeded, OperationFailed, OperationError:
		return true
	case OperationPending, OperationRunning:
		return false
	}
	return false
}

// TriggerType records what started a sync operation.
type TriggerType string

const (
	TriggerAutomated TriggerType = "automated"
	TriggerManual    TriggerType = "manual"
)

// Per-resource outcome of a sync operation. Conflict is a failure whose
// retries were all spent on a moving concurrency marker.
const (
	ResultSynced       = "Synced"
	ResultFailed       = "Failed"
	ResultConflict     = "Conflict"
	ResultPruned       = "Pruned"
	ResultPruneSkipped = "PruneSkipped"
	ResultAborted      = "Aborted"
)

// Per-resource action taken by a sync operation.
const (
	ActionCreate = "Create"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
	ActionNone   = "None"
)

// ResourceResult is the outcome of one resource within a sync operation.
type ResourceResult struct {
	Group     string `json:"group,omitempty"`
	Version   string `json:"version,omitempty"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`

	// Action is what the operation did: Create, Update, Delete, or None.
	// +optional
	Action string `json:"action,omitempty"`

	// Status is Synced, Failed, Conflict, Pruned, PruneSkipped, or Aborted.
	// +optional
	Status string `json:"status,omitempty"`

	// Attempts counts apply attempts including the first one.
	// +optional
	Attempts int32 `json:"attempts,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`
}

// OperationState describes the current or last sync operation.
type OperationState struct {
	// ID uniquely identifies the operation.
	ID string `json:"id"`

	// Phase moves forward only: Pending, Running, then exactly one of
	// Succeeded, Failed, Error.
	Phase OperationPhase `json:"phase"`

	// Trigger records whether the operation was automated or manual.
	// +optional
	Trigger TriggerType `json:"trigger,omitempty"`

	// DryRun operations compute and report without writing.
	// +optional
	DryRun bool `json:"dryRun,omitempty"`

	// Prune records whether the operation was allowed to delete orphans.
	// +optional
	Prune bool `json:"prune,omitempty"`

	// Revision is the concrete revision being synced.
	// +optional
	Revision string `json:"revision,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	StartedAt metav1.Time `json:"startedAt"`

	// +optional
	FinishedAt *metav1.Time `json:"finishedAt,omitempty"`

	// Results holds the per-resource outcomes, including partial failures.
	// +optional
	Results []ResourceResult `json:"results,omitempty"`
}

// RevisionHistory is one completed, non-dry-run sync operation.
type RevisionHistory struct {
	// ID increases monotonically per Application.
	ID int64 `json:"id"`

	Revision string `json:"revision"`

	Phase OperationPhase `json:"phase"`

	StartedAt metav1.Time `json:"startedAt"`

	// +optional
	FinishedAt *metav1.Time `json:"finishedAt,omitempty"`
}

// Condition types reported in status.conditions.
const (
	// ConditionReady is true when the last pass completed and the
	// application is synced.
	ConditionReady = "Ready"

	// ConditionSyncing is true while a sync operation is running.
	ConditionSyncing = "Syncing"
)

// ApplicationStatus defines the observed state of an Application.
type ApplicationStatus struct {
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	Sync SyncStatus `json:"sync,omitempty"`

	// +optional
	Health HealthStatus `json:"health,omitempty"`

	// Resources is the per-identity outcome of the latest comparison.
	// +optional
	Resources []ResourceStatus `json:"resources,omitempty"`

	// Inventory lists every identity this Application currently manages.
	// It feeds orphan detection and cascade deletion.
	// +optional
	Inventory []InventoryEntry `json:"inventory,omitempty"`

	// OperationState describes the current or last sync operation.
	// +optional
	OperationState *OperationState `json:"operationState,omitempty"`

	// History of completed non-dry-run operations, newest last, bounded by
	// spec.revisionHistoryLimit.
	// +optional
	History []RevisionHistory `json:"history,omitempty"`

	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// LastHandledRequestedAt echoes the manual sync request annotation the
	// controller handled most recently.
	// +optional
	LastHandledRequestedAt string `json:"lastHandledRequestedAt,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Sync",type=string,JSONPath=`.status.sync.status`
// +kubebuilder:printcolumn:name="Health",type=string,JSONPath=`.status.health.status`
// +kubebuilder:printcolumn:name="Revision",type=string,JSONPath=`.status.sync.revision`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Application is the Schema for the applications API. It declares a manifest
// source, a destination cluster, and the policy used to keep the two in sync.
type Application struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ApplicationSpec   `json:"spec,omitempty"`
	Status ApplicationStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ApplicationList contains a list of Application.
type ApplicationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Application `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Application{}, &ApplicationList{})
}

// GetRevisionHistoryLimit returns the history bound, defaulting to 50.
func (s *ApplicationSpec) GetRevisionHistoryLimit() int {
	if s.RevisionHistoryLimit == nil {
		return DefaultRevisionHistoryLimit
	}

	return int(*s.RevisionHistoryLimit)
}

// IsAutomatedSyncEnabled returns whether the application syncs without a
// manual request.
func (s *ApplicationSpec) IsAutomatedSyncEnabled() bool {
	return s.SyncPolicy != nil && s.SyncPolicy.Automated != nil
}

// IsSelfHealEnabled returns whether drift is corrected automatically.
func (s *ApplicationSpec) IsSelfHealEnabled() bool {
	return s.IsAutomatedSyncEnabled() && s.SyncPolicy.Automated.SelfHeal
}

// IsPruneEnabled returns whether orphaned resources may be deleted.
func (s *ApplicationSpec) IsPruneEnabled() bool {
	return s.IsAutomatedSyncEnabled() && s.SyncPolicy.Automated.Prune
}

// GetRetryLimit returns the retry budget, defaulting to 3.
func (s *ApplicationSpec) GetRetryLimit() int32 {
	if s.SyncPolicy == nil || s.SyncPolicy.Retry == nil || s.SyncPolicy.Retry.Limit == nil {
		return DefaultRetryLimit
	}

	return *s.SyncPolicy.Retry.Limit
}

// GetRetryBaseDelay returns the delay before the first retry.
func (s *ApplicationSpec) GetRetryBaseDelay() time.Duration {
	b := s.retryBackoff()
	if b == nil || b.Duration == nil {
		return DefaultRetryBaseDelay
	}

	return b.Duration.Duration
}

// GetRetryMaxDelay returns the cap on the grown retry delay.
func (s *ApplicationSpec) GetRetryMaxDelay() time.Duration {
	b := s.retryBackoff()
	if b == nil || b.MaxDuration == nil {
		return DefaultRetryMaxDelay
	}

	return b.MaxDuration.Duration
}

// GetRetryFactor returns the delay growth factor.
func (s *ApplicationSpec) GetRetryFactor() float64 {
	b := s.retryBackoff()
	if b == nil || b.Factor == nil || *b.Factor <= 0 {
		return DefaultRetryFactor
	}

	return float64(*b.Factor)
}

func (s *ApplicationSpec) retryBackoff() *Backoff {
	if s.SyncPolicy == nil || s.SyncPolicy.Retry == nil {
		return nil
	}

	return s.SyncPolicy.Retry.Backoff
}

// GetKubeconfigKey returns the secret key holding the kubeconfig.
func (r *SecretReference) GetKubeconfigKey() string {
	if r.Key == "" {
		return "kubeconfig"
	}

	return r.Key
}

// PendingSyncRequest returns the manual sync request value if one has not
// been handled yet.
func (a *Application) PendingSyncRequest() (string, bool) {
	v, ok := a.Annotations[SyncRequestedAtAnnotation]
	if !ok || v == "" || v == a.Status.LastHandledRequestedAt {
		return "", false
	}

	return v, true
}

// IsDryRunRequested returns whether a manual sync should be a dry run.
func (a *Application) IsDryRunRequested() bool {
	return a.Annotations[SyncDryRunAnnotation] == "true"
}

// AbortRequestedSince reports whether an abort was requested after start.
// Unparseable annotation values are ignored.
func (a *Application) AbortRequestedSince(start time.Time) bool {
	v := a.Annotations[AbortRequestedAtAnnotation]
	if v == "" {
		return false
	}

	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return false
	}

	return t.After(start)
}

// RequestSync marks the application for a manual sync. Callers must still
// update the object through the API server.
func (a *Application) RequestSync(now time.Time, dryRun bool) {
	if a.Annotations == nil {
		a.Annotations = map[string]string{}
	}

	a.Annotations[SyncRequestedAtAnnotation] = now.Format(time.RFC3339Nano)

	if dryRun {
		a.Annotations[SyncDryRunAnnotation] = "true"
	} else {
		delete(a.Annotations, SyncDryRunAnnotation)
	}
}

// RequestAbort marks the in-flight operation for abortion.
func (a *Application) RequestAbort(now time.Time) {
	if a.Annotations == nil {
		a.Annotations = map[string]string{}
	}

	a.Annotations[AbortRequestedAtAnnotation] = now.Format(time.RFC3339Nano)
}
