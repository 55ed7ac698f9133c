package health_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/health"
)

func int32Ptr(v int32) *int32 {
	return &v
}

func toUnstructured(t *testing.T, obj any) *unstructured.Unstructured {
	t.Helper()

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	require.NoError(t, err)

	return &unstructured.Unstructured{Object: content}
}

func TestAssessDeployment(t *testing.T) {
	t.Parallel()

	typeMeta := metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"}

	tests := []struct {
		name     string
		dp       *appsv1.Deployment
		wantCode v1alpha1.HealthCode
		wantMsg  string
	}{
		{
			name: "all replicas ready",
			dp: &appsv1.Deployment{
				TypeMeta: typeMeta,
				Spec:     appsv1.DeploymentSpec{Replicas: int32Ptr(3)},
				Status: appsv1.DeploymentStatus{
					UpdatedReplicas:   3,
					AvailableReplicas: 3,
				},
			},
			wantCode: v1alpha1.HealthHealthy,
		},
		{
			name: "rollout in progress",
			dp: &appsv1.Deployment{
				TypeMeta: typeMeta,
				Spec:     appsv1.DeploymentSpec{Replicas: int32Ptr(3)},
				Status: appsv1.DeploymentStatus{
					UpdatedReplicas:   3,
					AvailableReplicas: 1,
				},
			},
			wantCode: v1alpha1.HealthProgressing,
			wantMsg:  "not enough ready replicas (1/3)",
		},
		{
			name: "controller has not observed the new generation",
			dp: &appsv1.Deployment{
				TypeMeta:   typeMeta,
				ObjectMeta: metav1.ObjectMeta{Generation: 4},
				Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(1)},
				Status: appsv1.DeploymentStatus{
					ObservedGeneration: 3,
					UpdatedReplicas:    1,
					AvailableReplicas:  1,
				},
			},
			wantCode: v1alpha1.HealthProgressing,
			wantMsg:  "observed generation outdated (3/4)",
		},
		{
			name: "progress deadline exceeded",
			dp: &appsv1.Deployment{
				TypeMeta: typeMeta,
				Spec:     appsv1.DeploymentSpec{Replicas: int32Ptr(2)},
				Status: appsv1.DeploymentStatus{
					Conditions: []appsv1.DeploymentCondition{{
						Type:    appsv1.DeploymentProgressing,
						Status:  corev1.ConditionFalse,
						Reason:  "ProgressDeadlineExceeded",
						Message: "deployment exceeded its progress deadline",
					}},
				},
			},
			wantCode: v1alpha1.HealthDegraded,
			wantMsg:  "deployment exceeded its progress deadline",
		},
		{
			name: "nil replicas defaults to one",
			dp: &appsv1.Deployment{
				TypeMeta: typeMeta,
				Status: appsv1.DeploymentStatus{
					UpdatedReplicas:   1,
					AvailableReplicas: 1,
				},
			},
			wantCode: v1alpha1.HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status := health.Assess(toUnstructured(t, tt.dp))
			assert.Equal(t, tt.wantCode, status.Code)
			assert.Equal(t, tt.wantMsg, status.Message)
		})
	}
}

func TestAssessPod(t *testing.T) {
	t.Parallel()

	typeMeta := metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"}

	tests := []struct {
		name     string
		status   corev1.PodStatus
		wantCode v1alpha1.HealthCode
	}{
		{
			name:     "succeeded",
			status:   corev1.PodStatus{Phase: corev1.PodSucceeded},
			wantCode: v1alpha1.HealthHealthy,
		},
		{
			name:     "failed",
			status:   corev1.PodStatus{Phase: corev1.PodFailed, Message: "oom killed"},
			wantCode: v1alpha1.HealthDegraded,
		},
		{
			name:     "pending",
			status:   corev1.PodStatus{Phase: corev1.PodPending},
			wantCode: v1alpha1.HealthProgressing,
		},
		{
			name: "running and ready",
			status: corev1.PodStatus{
				Phase: corev1.PodRunning,
				Conditions: []corev1.PodCondition{
					{Type: corev1.PodReady, Status: corev1.ConditionTrue},
				},
			},
			wantCode: v1alpha1.HealthHealthy,
		},
		{
			name: "running but not ready",
			status: corev1.PodStatus{
				Phase: corev1.PodRunning,
				Conditions: []corev1.PodCondition{
					{Type: corev1.PodReady, Status: corev1.ConditionFalse},
				},
			},
			wantCode: v1alpha1.HealthProgressing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pod := &corev1.Pod{TypeMeta: typeMeta, Status: tt.status}
			assert.Equal(t, tt.wantCode, health.Assess(toUnstructured(t, pod)).Code)
		})
	}
}

func TestAssessJob(t *testing.T) {
	t.Parallel()

	typeMeta := metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"}

	tests := []struct {
		name       string
		conditions []batchv1.JobCondition
		wantCode   v1alpha1.HealthCode
	}{
		{
			name:       "complete",
			conditions: []batchv1.JobCondition{{Type: batchv1.JobComplete, Status: corev1.ConditionTrue}},
			wantCode:   v1alpha1.HealthHealthy,
		},
		{
			name:       "failed",
			conditions: []batchv1.JobCondition{{Type: batchv1.JobFailed, Status: corev1.ConditionTrue}},
			wantCode:   v1alpha1.HealthDegraded,
		},
		{
			name:     "still running",
			wantCode: v1alpha1.HealthProgressing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := &batchv1.Job{TypeMeta: typeMeta, Status: batchv1.JobStatus{Conditions: tt.conditions}}
			assert.Equal(t, tt.wantCode, health.Assess(toUnstructured(t, job)).Code)
		})
	}
}

func TestAssessStatefulSet(t *testing.T) {
	t.Parallel()

	sts := &appsv1.StatefulSet{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "StatefulSet"},
		Spec:     appsv1.StatefulSetSpec{Replicas: int32Ptr(2)},
		Status:   appsv1.StatefulSetStatus{UpdatedReplicas: 2, ReadyReplicas: 1},
	}

	status := health.Assess(toUnstructured(t, sts))
	assert.Equal(t, v1alpha1.HealthProgressing, status.Code)
	assert.Equal(t, "not enough ready replicas (1/2)", status.Message)

	sts.Status.ReadyReplicas = 2
	assert.Equal(t, v1alpha1.HealthHealthy, health.Assess(toUnstructured(t, sts)).Code)
}

func TestAssessDaemonSet(t *testing.T) {
	t.Parallel()

	ds := &appsv1.DaemonSet{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "DaemonSet"},
		Status:   appsv1.DaemonSetStatus{DesiredNumberScheduled: 3, NumberReady: 2},
	}

	assert.Equal(t, v1alpha1.HealthProgressing, health.Assess(toUnstructured(t, ds)).Code)

	ds.Status.NumberReady = 3
	assert.Equal(t, v1alpha1.HealthHealthy, health.Assess(toUnstructured(t, ds)).Code)
}

func TestAssessReplicaSetFailure(t *testing.T) {
	t.Parallel()

	rs := &appsv1.ReplicaSet{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "ReplicaSet"},
		Spec:     appsv1.ReplicaSetSpec{Replicas: int32Ptr(1)},
		Status: appsv1.ReplicaSetStatus{
			Conditions: []appsv1.ReplicaSetCondition{{
				Type:    appsv1.ReplicaSetReplicaFailure,
				Status:  corev1.ConditionTrue,
				Message: "quota exceeded",
			}},
		},
	}

	status := health.Assess(toUnstructured(t, rs))
	assert.Equal(t, v1alpha1.HealthDegraded, status.Code)
	assert.Equal(t, "quota exceeded", status.Message)
}

func TestAssessService(t *testing.T) {
	t.Parallel()

	typeMeta := metav1.TypeMeta{APIVersion: "v1", Kind: "Service"}

	clusterIP := &corev1.Service{TypeMeta: typeMeta, Spec: corev1.ServiceSpec{Type: corev1.ServiceTypeClusterIP}}
	assert.Equal(t, v1alpha1.HealthHealthy, health.Assess(toUnstructured(t, clusterIP)).Code)

	lb := &corev1.Service{TypeMeta: typeMeta, Spec: corev1.ServiceSpec{Type: corev1.ServiceTypeLoadBalancer}}
	assert.Equal(t, v1alpha1.HealthProgressing, health.Assess(toUnstructured(t, lb)).Code)

	lb.Status.LoadBalancer.Ingress = []corev1.LoadBalancerIngress{{IP: "10.0.0.1"}}
	assert.Equal(t, v1alpha1.HealthHealthy, health.Assess(toUnstructured(t, lb)).Code)
}

func TestAssessPersistentVolumeClaim(t *testing.T) {
	t.Parallel()

	typeMeta := metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"}

	tests := []struct {
		phase    corev1.PersistentVolumeClaimPhase
		wantCode v1alpha1.HealthCode
	}{
		{phase: corev1.ClaimBound, wantCode: v1alpha1.HealthHealthy},
		{phase: corev1.ClaimPending, wantCode: v1alpha1.HealthProgressing},
		{phase: corev1.ClaimLost, wantCode: v1alpha1.HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			t.Parallel()

			pvc := &corev1.PersistentVolumeClaim{
				TypeMeta: typeMeta,
				Status:   corev1.PersistentVolumeClaimStatus{Phase: tt.phase},
			}
			assert.Equal(t, tt.wantCode, health.Assess(toUnstructured(t, pvc)).Code)
		})
	}
}

func TestAssessUnknownKindIsHealthy(t *testing.T) {
	t.Parallel()

	cm := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]any{"name": "cfg"},
	}}
	assert.Equal(t, v1alpha1.HealthHealthy, health.Assess(cm).Code)

	crd := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "cert-manager.io/v1",
		"kind":       "Certificate",
		"metadata":   map[string]any{"name": "tls"},
	}}
	assert.Equal(t, v1alpha1.HealthHealthy, health.Assess(crd).Code)
}

func TestAssessNilObjectIsMissing(t *testing.T) {
	t.Parallel()

	status := health.Assess(nil)
	assert.Equal(t, v1alpha1.HealthMissing, status.Code)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		codes []v1alpha1.HealthCode
		want  v1alpha1.HealthCode
	}{
		{
			name: "no resources",
			want: v1alpha1.HealthHealthy,
		},
		{
			name:  "progressing beats healthy",
			codes: []v1alpha1.HealthCode{v1alpha1.HealthHealthy, v1alpha1.HealthProgressing},
			want:  v1alpha1.HealthProgressing,
		},
		{
			name: "degraded beats everything",
			codes: []v1alpha1.HealthCode{
				v1alpha1.HealthMissing, v1alpha1.HealthDegraded, v1alpha1.HealthProgressing,
			},
			want: v1alpha1.HealthDegraded,
		},
		{
			name:  "missing beats progressing",
			codes: []v1alpha1.HealthCode{v1alpha1.HealthProgressing, v1alpha1.HealthMissing},
			want:  v1alpha1.HealthMissing,
		},
		{
			name:  "unknown beats healthy",
			codes: []v1alpha1.HealthCode{v1alpha1.HealthHealthy, v1alpha1.HealthUnknown},
			want:  v1alpha1.HealthUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, health.Aggregate(tt.codes))
		})
	}
}
