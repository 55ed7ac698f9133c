package diff

import (
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/gitopslab/sync-controller/internal/resource"
)

// Classification labels the reconciling action a diff entry calls for.
type Classification string

const (
	// ClassCreate marks a resource that exists in desired state only.
	ClassCreate Classification = "Create"
	// ClassUpdate marks a resource whose normalized live content differs
	// from desired.
	ClassUpdate Classification = "Update"
	// ClassDelete marks a live resource no longer present in desired state.
	ClassDelete Classification = "Delete"
	// ClassUnchanged marks a resource with no normalized difference.
	ClassUnchanged Classification = "Unchanged"
	// ClassConflict marks a resource whose live concurrency marker moved
	// since it was last observed.
	ClassConflict Classification = "Conflict"
)

// Entry is one resource-level comparison result.
type Entry struct {
	// Ref identifies the resource. For delete entries the version is taken
	// from the live object, otherwise from the desired one.
	Ref resource.Ref

	// Classification is the action this entry calls for.
	Classification Classification

	// Desired is the rendered object. Nil for delete entries.
	Desired *unstructured.Unstructured

	// Live is the observed object. Nil for create entries.
	Live *unstructured.Unstructured

	// Detail names the first differing field path for updates, or the
	// marker mismatch for conflicts. Empty otherwise.
	Detail string
}

// Actionable reports whether the entry requires a write to converge.
func (e Entry) Actionable() bool {
	return e.Classification != ClassUnchanged
}

// Normalizer prunes fields that must not participate in comparison. It
// returns a copy and leaves its input untouched.
type Normalizer func(*unstructured.Unstructured) *unstructured.Unstructured

type options struct {
	expectedVersions map[resource.Key]string
	normalize        Normalizer
}

// Option adjusts how Calculate compares objects.
type Option func(*options)

// WithExpectedVersions supplies the concurrency markers captured during an
// earlier observation. A live object whose marker differs is classified as
// a conflict regardless of content.
func WithExpectedVersions(versions map[resource.Key]string) Option {
	return func(o *options) {
		o.expectedVersions = versions
	}
}

// WithNormalizer replaces the default normalization applied to both sides
// before comparison.
func WithNormalizer(n Normalizer) Option {
	return func(o *options) {
		o.normalize = n
	}
}

// Calculate compares desired objects against the observed live set and
// returns one entry per resource, ordered by group, kind, namespace, name.
//
// The live map must cover the union of desired identities and previously
// recorded inventory: any live object without a desired counterpart is
// classified as a delete candidate. Honoring or skipping those deletions is
// the executor's decision, not the diff's.
func Calculate(desired []*unstructured.Unstructured, live map[resource.Key]*unstructured.Unstructured, opts ...Option) []Entry {
	o := options{normalize: Normalize}
	for _, opt := range opts {
		opt(&o)
	}

	entries := make([]Entry, 0, len(desired)+len(live))
	seen := make(map[resource.Key]struct{}, len(desired))

	for _, d := range desired {
		key := resource.KeyFor(d)
		seen[key] = struct{}{}
		entries = append(entries, classify(key, d, live[key], o))
	}

	for key, l := range live {
		if _, ok := seen[key]; ok {
			continue
		}

		entries = append(entries, Entry{
			Ref:            resource.RefFor(l),
			Classification: ClassDelete,
			Live:           l,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return resource.Compare(entries[i].Ref.Key, entries[j].Ref.Key) < 0
	})

	return entries
}

func classify(key resource.Key, desired, live *unstructured.Unstructured, o options) Entry {
	if live == nil {
		return Entry{
			Ref:            resource.RefFor(desired),
			Classification: ClassCreate,
			Desired:        desired,
		}
	}

	entry := Entry{
		Ref:     resource.RefFor(desired),
		Desired: desired,
		Live:    live,
	}

	if expected, ok := o.expectedVersions[key]; ok && expected != live.GetResourceVersion() {
		entry.Classification = ClassConflict
		entry.Detail = fmt.Sprintf("resourceVersion moved from %s to %s", expected, live.GetResourceVersion())

		return entry
	}

	equal, path := subsetMatch(o.normalize(desired).Object, o.normalize(live).Object, "")
	if equal {
		entry.Classification = ClassUnchanged

		return entry
	}

	entry.Classification = ClassUpdate
	entry.Detail = "differs at " + path

	return entry
}

// Stats counts entries per classification.
func Stats(entries []Entry) map[Classification]int {
	counts := make(map[Classification]int, 5)
	for _, e := range entries {
		counts[e.Classification]++
	}

	return counts
}

// subsetMatch reports whether every field present in want also holds in
// got, descending maps recursively. Lists compare by length and element
// order. On mismatch it returns the offending field path.
func subsetMatch(want, got any, path string) (bool, string) {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false, path
		}

		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			gv, present := g[k]
			if !present {
				return false, joinPath(path, k)
			}
			if ok, p := subsetMatch(w[k], gv, joinPath(path, k)); !ok {
				return false, p
			}
		}

		return true, ""
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false, path
		}

		for i := range w {
			if ok, p := subsetMatch(w[i], g[i], fmt.Sprintf("%s[%d]", path, i)); !ok {
				return false, p
			}
		}

		return true, ""
	default:
		if !scalarEqual(want, got) {
			return false, path
		}

		return true, ""
	}
}

// scalarEqual compares leaf values. Numbers compare by value across int64
// and float64 because the YAML path and the API server produce different
// concrete types for the same manifest field.
func scalarEqual(a, b any) bool {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		return af == bf
	}

	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}

	return base + "." + field
}
