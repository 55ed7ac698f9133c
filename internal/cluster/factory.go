// Package cluster resolves destination cluster clients for Applications.
package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
)

// Target is a resolved destination cluster.
type Target struct {
	// Client performs reads and writes against the destination.
	Client client.Client

	// Description identifies the destination in logs: "in-cluster" or the
	// kubeconfig secret reference.
	Description string
}

// IsNamespaced reports whether the object's kind is namespace-scoped on
// this destination.
func (t *Target) IsNamespaced(obj *unstructured.Unstructured) (bool, error) {
	namespaced, err := t.Client.IsObjectNamespaced(obj)
	if err != nil {
		return false, errors.Wrapf(err, "failed to resolve scope of %s", obj.GroupVersionKind())
	}

	return namespaced, nil
}

// Factory resolves Application destinations to cluster targets.
type Factory struct {
	client client.Client
	scheme *runtime.Scheme
	local  *Target

	// targetCache caches remote targets by kubeconfig secret. Entries are
	// keyed by secret namespace/name/key and invalidated when the secret's
	// resourceVersion moves, so credential rotation takes effect without a
	// restart.
	targetCache sync.Map
}

type cachedTarget struct {
	resourceVersion string
	target          *Target
}

// NewFactory creates a Factory. The given client doubles as the in-cluster
// destination and as the reader for kubeconfig Secrets.
func NewFactory(c client.Client, scheme *runtime.Scheme) *Factory {
	return &Factory{
		client: c,
		scheme: scheme,
		local:  &Target{Client: c, Description: "in-cluster"},
	}
}

// TargetFor resolves the destination cluster of an application. Without a
// kubeconfigSecretRef the controller's own cluster is the destination.
func (f *Factory) TargetFor(ctx context.Context, app *v1alpha1.Application) (*Target, error) {
	ref := app.Spec.Destination.KubeconfigSecretRef
	if ref == nil {
		return f.local, nil
	}

	namespace := ref.Namespace
	if namespace == "" {
		namespace = app.Namespace
	}

	secret := &corev1.Secret{}

	err := f.client.Get(ctx, types.NamespacedName{Name: ref.Name, Namespace: namespace}, secret)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get kubeconfig secret %s/%s", namespace, ref.Name)
	}

	key := ref.GetKubeconfigKey()
	cacheKey := fmt.Sprintf("%s/%s/%s", namespace, ref.Name, key)

	if cached, ok := f.targetCache.Load(cacheKey); ok {
		if entry, valid := cached.(cachedTarget); valid && entry.resourceVersion == secret.ResourceVersion {
			return entry.target, nil
		}
	}

	kubeconfig, ok := secret.Data[key]
	if !ok {
		return nil, errors.Newf("secret %s/%s does not contain key %s", namespace, ref.Name, key)
	}

	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build rest config from secret %s/%s", namespace, ref.Name)
	}

	remote, err := client.New(restConfig, client.Options{Scheme: f.scheme})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create client for secret %s/%s", namespace, ref.Name)
	}

	target := &Target{
		Client:      remote,
		Description: fmt.Sprintf("kubeconfig secret %s/%s", namespace, ref.Name),
	}
	f.targetCache.Store(cacheKey, cachedTarget{
		resourceVersion: secret.ResourceVersion,
		target:          target,
	})

	return target, nil
}

// Forget drops any cached target built from the given secret. Called when a
// kubeconfig Secret changes so the next reconcile rebuilds the client.
func (f *Factory) Forget(secretNamespace, secretName string) {
	prefix := fmt.Sprintf("%s/%s/", secretNamespace, secretName)

	f.targetCache.Range(func(key, _ any) bool {
		if k, ok := key.(string); ok && len(k) > len(prefix) && k[:len(prefix)] == prefix {
			f.targetCache.Delete(key)
		}

		return true
	})
}
