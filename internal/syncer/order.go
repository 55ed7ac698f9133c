package syncer

import (
	"sort"
	"strconv"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/diff"
	"github.com/gitopslab/sync-controller/internal/resource"
)

// Kind-order bands within a wave. Namespaces must exist before anything
// placed into them, definitions before custom resources using them.
const (
	bandNamespaces = iota
	bandDefinitions
	bandClusterScoped
	bandNamespaced
)

func bandOf(key resource.Key) int {
	switch {
	case key.Group == "" && key.Kind == "Namespace":
		return bandNamespaces
	case key.Group == "apiextensions.k8s.io" && key.Kind == "CustomResourceDefinition":
		return bandDefinitions
	case key.Namespace == "":
		return bandClusterScoped
	default:
		return bandNamespaced
	}
}

// waveOf reads the sync-wave annotation, preferring the desired object.
// Missing or malformed values mean wave 0.
func waveOf(e diff.Entry) int {
	obj := e.Desired
	if obj == nil {
		obj = e.Live
	}

	if obj == nil {
		return 0
	}

	v, ok := obj.GetAnnotations()[v1alpha1.SyncWaveAnnotation]
	if !ok {
		return 0
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}

	return n
}

// batch is a maximal set of entries with no ordering constraints between
// them. Batches execute sequentially, entries within one in parallel.
type batch struct {
	wave    int
	band    int
	entries []diff.Entry
}

// planApplies groups apply entries into ordered batches: wave ascending,
// band ascending, identity order inside each batch.
func planApplies(entries []diff.Entry) []batch {
	return plan(entries, false)
}

// planDeletes groups delete candidates into batches in reverse apply order,
// so dependents are removed before what they depend on.
func planDeletes(entries []diff.Entry) []batch {
	return plan(entries, true)
}

func plan(entries []diff.Entry, reverse bool) []batch {
	type slot struct{ wave, band int }

	groups := make(map[slot][]diff.Entry)
	for _, e := range entries {
		s := slot{wave: waveOf(e), band: bandOf(e.Ref.Key)}
		groups[s] = append(groups[s], e)
	}

	slots := make([]slot, 0, len(groups))
	for s := range groups {
		slots = append(slots, s)
	}

	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if reverse {
			a, b = b, a
		}

		if a.wave != b.wave {
			return a.wave < b.wave
		}

		return a.band < b.band
	})

	batches := make([]batch, 0, len(slots))

	for _, s := range slots {
		group := groups[s]
		sort.Slice(group, func(i, j int) bool {
			c := resource.Compare(group[i].Ref.Key, group[j].Ref.Key)
			if reverse {
				return c > 0
			}

			return c < 0
		})

		batches = append(batches, batch{wave: s.wave, band: s.band, entries: group})
	}

	return batches
}
