package diff

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// droppedFields are server-populated paths removed before comparison.
var droppedFields = [][]string{
	{"status"},
	{"metadata", "resourceVersion"},
	{"metadata", "uid"},
	{"metadata", "generation"},
	{"metadata", "creationTimestamp"},
	{"metadata", "deletionTimestamp"},
	{"metadata", "deletionGracePeriodSeconds"},
	{"metadata", "managedFields"},
	{"metadata", "selfLink"},
	{"metadata", "ownerReferences"},
	{"metadata", "finalizers"},
}

// droppedAnnotations are bookkeeping annotations written by kubectl and
// controllers, never part of the rendered manifest.
var droppedAnnotations = []string{
	"kubectl.kubernetes.io/last-applied-configuration",
	"deployment.kubernetes.io/revision",
}

// Normalize returns a deep copy with server-populated fields and
// bookkeeping annotations removed. The input is never modified.
func Normalize(obj *unstructured.Unstructured) *unstructured.Unstructured {
	if obj == nil {
		return nil
	}

	out := obj.DeepCopy()
	for _, path := range droppedFields {
		unstructured.RemoveNestedField(out.Object, path...)
	}

	annotations := out.GetAnnotations()
	if len(annotations) > 0 {
		for _, key := range droppedAnnotations {
			delete(annotations, key)
		}
		if len(annotations) == 0 {
			unstructured.RemoveNestedField(out.Object, "metadata", "annotations")
		} else {
			out.SetAnnotations(annotations)
		}
	}

	return out
}
