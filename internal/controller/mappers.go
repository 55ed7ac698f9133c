package controller

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
)

// mapSecretToApplications enqueues every Application whose destination
// kubeconfig lives in the changed Secret. The cached client built from the
// old Secret content is dropped first, so the next pass dials with fresh
// credentials.
func (r *ApplicationReconciler) mapSecretToApplications(ctx context.Context, obj client.Object) []reconcile.Request {
	secret, ok := obj.(*corev1.Secret)
	if !ok {
		return nil
	}

	apps := &v1alpha1.ApplicationList{}
	if err := r.List(ctx, apps); err != nil {
		log.FromContext(ctx).Error(err, "failed to list applications for secret mapping")

		return nil
	}

	var requests []reconcile.Request

	invalidated := false

	for i := range apps.Items {
		app := &apps.Items[i]

		ref := app.Spec.Destination.KubeconfigSecretRef
		if ref == nil {
			continue
		}

		namespace := ref.Namespace
		if namespace == "" {
			namespace = app.Namespace
		}

		if ref.Name != secret.GetName() || namespace != secret.GetNamespace() {
			continue
		}

		if !invalidated {
			r.Clusters.Forget(secret.GetNamespace(), secret.GetName())
			invalidated = true
		}

		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{Namespace: app.Namespace, Name: app.Name},
		})
	}

	return requests
}
