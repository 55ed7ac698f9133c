// Package resource defines the identity model for objects managed by the
// controller and the inventory entry format used to persist it.
package resource

import (
	"strings"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Key identifies a managed object independent of its API version.
// Two objects with equal keys address the same live resource even when
// their manifests use different versions of the same group.
type Key struct {
	Group     string
	Kind      string
	Namespace string
	Name      string
}

// Ref addresses a live object: the identity plus the API version to use
// for client calls.
type Ref struct {
	Key

	Version string
}

// KeyFor extracts the identity of an unstructured object.
func KeyFor(obj *unstructured.Unstructured) Key {
	gvk := obj.GroupVersionKind()

	return Key{
		Group:     gvk.Group,
		Kind:      gvk.Kind,
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
	}
}

// RefFor extracts the identity and API version of an unstructured object.
func RefFor(obj *unstructured.Unstructured) Ref {
	return Ref{
		Key:     KeyFor(obj),
		Version: obj.GroupVersionKind().Version,
	}
}

// GroupVersionKind returns the schema GVK addressed by the ref.
func (r Ref) GroupVersionKind() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: r.Group, Version: r.Version, Kind: r.Kind}
}

// GroupKind returns the schema GroupKind of the identity.
func (k Key) GroupKind() schema.GroupKind {
	return schema.GroupKind{Group: k.Group, Kind: k.Kind}
}

// String renders the identity for logs: "apps/Deployment prod/web" for
// namespaced objects, "Namespace kube-system" for cluster-scoped ones.
func (k Key) String() string {
	var b strings.Builder

	if k.Group != "" {
		b.WriteString(k.Group)
		b.WriteString("/")
	}

	b.WriteString(k.Kind)
	b.WriteString(" ")

	if k.Namespace != "" {
		b.WriteString(k.Namespace)
		b.WriteString("/")
	}

	b.WriteString(k.Name)

	return b.String()
}

// InventoryID encodes the identity in the inventory entry format
// "<namespace>_<name>_<group>_<kind>". Cluster-scoped objects have an
// empty namespace segment, core-group objects an empty group segment.
func (k Key) InventoryID() string {
	return k.Namespace + "_" + k.Name + "_" + k.Group + "_" + k.Kind
}

// ParseInventoryID decodes an inventory entry ID back into an identity.
// The name segment may itself contain underscores, so the namespace is
// taken from the left and group/kind from the right.
func ParseInventoryID(id string) (Key, error) {
	first := strings.Index(id, "_")
	if first < 0 {
		return Key{}, errors.Newf("malformed inventory ID %q", id)
	}

	ns := id[:first]
	rest := id[first+1:]

	last := strings.LastIndex(rest, "_")
	if last < 0 {
		return Key{}, errors.Newf("malformed inventory ID %q", id)
	}

	kind := rest[last+1:]
	rest = rest[:last]

	last = strings.LastIndex(rest, "_")
	if last < 0 {
		return Key{}, errors.Newf("malformed inventory ID %q", id)
	}

	key := Key{
		Group:     rest[last+1:],
		Kind:      kind,
		Namespace: ns,
		Name:      rest[:last],
	}

	if key.Name == "" || key.Kind == "" {
		return Key{}, errors.Newf("malformed inventory ID %q", id)
	}

	return key, nil
}

// Compare orders identities by group, kind, namespace, name. It is the
// tie-break ordering used wherever output must be deterministic.
func Compare(a, b Key) int {
	if c := strings.Compare(a.Group, b.Group); c != 0 {
		return c
	}

	if c := strings.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}

	if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
		return c
	}

	return strings.Compare(a.Name, b.Name)
}
