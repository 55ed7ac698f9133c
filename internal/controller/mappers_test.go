package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/cluster"
)

func appWithKubeconfig(name, secretName, secretNamespace string) *v1alpha1.Application {
	return &v1alpha1.Application{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "default",
		},
		Spec: v1alpha1.ApplicationSpec{
			Source: v1alpha1.SourceSpec{RepoURL: "/manifests"},
			Destination: v1alpha1.DestinationSpec{
				KubeconfigSecretRef: &v1alpha1.SecretReference{
					Name:      secretName,
					Namespace: secretNamespace,
				},
			},
		},
	}
}

func TestMapSecretToApplications(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	local := testApp("local", "/manifests", nil)
	staging := appWithKubeconfig("staging", "staging-kubeconfig", "clusters")
	edge := appWithKubeconfig("edge", "staging-kubeconfig", "clusters")
	other := appWithKubeconfig("other", "prod-kubeconfig", "clusters")

	fakeClient := setupAppFakeClient(local, staging, edge, other)
	reconciler := &ApplicationReconciler{
		Client:   fakeClient,
		Clusters: cluster.NewFactory(fakeClient, fakeClient.Scheme()),
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "staging-kubeconfig", Namespace: "clusters"},
	}

	requests := reconciler.mapSecretToApplications(ctx, secret)

	require.Len(t, requests, 2)
	assert.Contains(t, requests, requestFor("staging"))
	assert.Contains(t, requests, requestFor("edge"))
}

func TestMapSecretToApplications_NamespaceDefaultsToApp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// No namespace on the ref: the Application's own namespace is assumed.
	app := appWithKubeconfig("remote", "kubeconfig", "")

	fakeClient := setupAppFakeClient(app)
	reconciler := &ApplicationReconciler{
		Client:   fakeClient,
		Clusters: cluster.NewFactory(fakeClient, fakeClient.Scheme()),
	}

	matching := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "kubeconfig", Namespace: "default"},
	}
	requests := reconciler.mapSecretToApplications(ctx, matching)
	require.Len(t, requests, 1)
	assert.Equal(t, requestFor("remote"), requests[0])

	elsewhere := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "kubeconfig", Namespace: "clusters"},
	}
	assert.Empty(t, reconciler.mapSecretToApplications(ctx, elsewhere))
}

func TestMapSecretToApplications_WrongType(t *testing.T) {
	t.Parallel()

	fakeClient := setupAppFakeClient()
	reconciler := &ApplicationReconciler{
		Client:   fakeClient,
		Clusters: cluster.NewFactory(fakeClient, fakeClient.Scheme()),
	}

	requests := reconciler.mapSecretToApplications(context.Background(), &corev1.ConfigMap{})
	assert.Nil(t, requests)
}

func requestFor(name string) reconcile.Request {
	return reconcile.Request{NamespacedName: types.NamespacedName{Namespace: "default", Name: name}}
}
