// Package health derives a health signal from live objects. Workload kinds
// get a dedicated assessment over their status; kinds without one are
// healthy by existing. Aggregation across an application is worst-wins.
package health

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
)

// Status is the assessed health of one live object.
type Status struct {
	Code    v1alpha1.HealthCode
	Message string
}

// Assess computes the health of a live object. A nil object is Missing.
func Assess(obj *unstructured.Unstructured) Status {
	if obj == nil {
		return Status{Code: v1alpha1.HealthMissing, Message: "not found"}
	}

	switch obj.GroupVersionKind().GroupKind().String() {
	case "Pod":
		return assessAs(obj, assessPod)
	case "Deployment.apps":
		return assessAs(obj, assessDeployment)
	case "StatefulSet.apps":
		return assessAs(obj, assessStatefulSet)
	case "DaemonSet.apps":
		return assessAs(obj, assessDaemonSet)
	case "ReplicaSet.apps":
		return assessAs(obj, assessReplicaSet)
	case "Job.batch":
		return assessAs(obj, assessJob)
	case "Service":
		return assessAs(obj, assessService)
	case "PersistentVolumeClaim":
		return assessAs(obj, assessPVC)
	default:
		return Status{Code: v1alpha1.HealthHealthy}
	}
}

// healthRank orders codes worst-first for aggregation.
//
//nolint:gochecknoglobals // fixed severity order
var healthRank = map[v1alpha1.HealthCode]int{
	v1alpha1.HealthDegraded:    5,
	v1alpha1.HealthMissing:     4,
	v1alpha1.HealthProgressing: 3,
	v1alpha1.HealthUnknown:     2,
	v1alpha1.HealthHealthy:     1,
}

// Aggregate reduces per-resource codes to one application-level code.
// No resources means nothing can be unhealthy.
func Aggregate(codes []v1alpha1.HealthCode) v1alpha1.HealthCode {
	worst := v1alpha1.HealthHealthy

	for _, code := range codes {
		if healthRank[code] > healthRank[worst] {
			worst = code
		}
	}

	return worst
}

func assessAs[T any](obj *unstructured.Unstructured, assess func(*T) Status) Status {
	typed := new(T)
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, typed); err != nil {
		return Status{
			Code:    v1alpha1.HealthUnknown,
			Message: fmt.Sprintf("cannot read %s status: %v", obj.GetKind(), err),
		}
	}

	return assess(typed)
}

func outdatedGeneration(current, expected int64) Status {
	return Status{
		Code:    v1alpha1.HealthProgressing,
		Message: fmt.Sprintf("observed generation outdated (%d/%d)", current, expected),
	}
}

func notEnoughReadyReplicas(current, expected int32) Status {
	return Status{
		Code:    v1alpha1.HealthProgressing,
		Message: fmt.Sprintf("not enough ready replicas (%d/%d)", current, expected),
	}
}

func healthy() Status {
	return Status{Code: v1alpha1.HealthHealthy}
}

func assessPod(pod *corev1.Pod) Status {
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return Status{Code: v1alpha1.HealthHealthy, Message: "completed"}
	case corev1.PodFailed:
		return Status{Code: v1alpha1.HealthDegraded, Message: pod.Status.Message}
	case corev1.PodPending:
		return Status{Code: v1alpha1.HealthProgressing, Message: "pod pending"}
	case corev1.PodUnknown:
		return Status{Code: v1alpha1.HealthUnknown}
	case corev1.PodRunning:
		for _, condition := range pod.Status.Conditions {
			if condition.Type == corev1.PodReady && condition.Status == corev1.ConditionTrue {
				return healthy()
			}
		}

		return Status{Code: v1alpha1.HealthProgressing, Message: "pod not ready"}
	}

	return Status{Code: v1alpha1.HealthUnknown}
}

func assessDeployment(dp *appsv1.Deployment) Status {
	if dp.Status.ObservedGeneration < dp.Generation {
		return outdatedGeneration(dp.Status.ObservedGeneration, dp.Generation)
	}

	for _, condition := range dp.Status.Conditions {
		if condition.Type == appsv1.DeploymentProgressing && condition.Reason == "ProgressDeadlineExceeded" {
			return Status{Code: v1alpha1.HealthDegraded, Message: condition.Message}
		}
	}

	replicas := int32(1)
	if dp.Spec.Replicas != nil {
		replicas = *dp.Spec.Replicas
	}

	if dp.Status.UpdatedReplicas < replicas || dp.Status.AvailableReplicas < replicas {
		return notEnoughReadyReplicas(dp.Status.AvailableReplicas, replicas)
	}

	return healthy()
}

func assessStatefulSet(sts *appsv1.StatefulSet) Status {
	if sts.Status.ObservedGeneration < sts.Generation {
		return outdatedGeneration(sts.Status.ObservedGeneration, sts.Generation)
	}

	replicas := int32(1)
	if sts.Spec.Replicas != nil {
		replicas = *sts.Spec.Replicas
	}

	if sts.Status.UpdatedReplicas < replicas || sts.Status.ReadyReplicas < replicas {
		return notEnoughReadyReplicas(sts.Status.ReadyReplicas, replicas)
	}

	return healthy()
}

func assessDaemonSet(ds *appsv1.DaemonSet) Status {
	if ds.Status.ObservedGeneration < ds.Generation {
		return outdatedGeneration(ds.Status.ObservedGeneration, ds.Generation)
	}

	if ds.Status.NumberReady < ds.Status.DesiredNumberScheduled {
		return notEnoughReadyReplicas(ds.Status.NumberReady, ds.Status.DesiredNumberScheduled)
	}

	return healthy()
}

func assessReplicaSet(rs *appsv1.ReplicaSet) Status {
	if rs.Status.ObservedGeneration < rs.Generation {
		return outdatedGeneration(rs.Status.ObservedGeneration, rs.Generation)
	}

	for _, condition := range rs.Status.Conditions {
		if condition.Type == appsv1.ReplicaSetReplicaFailure && condition.Status == corev1.ConditionTrue {
			return Status{Code: v1alpha1.HealthDegraded, Message: condition.Message}
		}
	}

	replicas := int32(1)
	if rs.Spec.Replicas != nil {
		replicas = *rs.Spec.Replicas
	}

	if rs.Status.ReadyReplicas < replicas {
		return notEnoughReadyReplicas(rs.Status.ReadyReplicas, replicas)
	}

	return healthy()
}

func assessJob(job *batchv1.Job) Status {
	for _, condition := range job.Status.Conditions {
		if condition.Status != corev1.ConditionTrue {
			continue
		}

		switch condition.Type {
		case batchv1.JobComplete:
			return Status{Code: v1alpha1.HealthHealthy, Message: "completed"}
		case batchv1.JobFailed:
			return Status{Code: v1alpha1.HealthDegraded, Message: condition.Message}
		}
	}

	return Status{Code: v1alpha1.HealthProgressing, Message: "job running"}
}

func assessService(svc *corev1.Service) Status {
	if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
		return healthy()
	}

	if len(svc.Status.LoadBalancer.Ingress) == 0 {
		return Status{Code: v1alpha1.HealthProgressing, Message: "load balancer pending"}
	}

	return healthy()
}

func assessPVC(pvc *corev1.PersistentVolumeClaim) Status {
	switch pvc.Status.Phase {
	case corev1.ClaimBound:
		return healthy()
	case corev1.ClaimLost:
		return Status{Code: v1alpha1.HealthDegraded, Message: "claim lost"}
	case corev1.ClaimPending:
		return Status{Code: v1alpha1.HealthProgressing, Message: "claim pending"}
	}

	return Status{Code: v1alpha1.HealthUnknown}
}
