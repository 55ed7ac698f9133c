// Package diff computes the classified difference between the rendered
// desired state and the observed live state of an application.
//
// # Overview
//
// Calculate is a pure function: it never touches the cluster, and identical
// inputs produce identical, identically ordered entries. Each entry carries
// one of five classifications:
//
//   - Create: present in desired state, absent live
//   - Update: present in both, normalized content differs
//   - Delete: absent in desired state, still present live (prune candidate)
//   - Unchanged: present in both with no normalized difference
//   - Conflict: the live concurrency marker no longer matches the one the
//     caller observed earlier
//
// # Normalization
//
// Live objects carry server-populated fields that must never count as
// drift: status, resourceVersion, uid, generation, creationTimestamp,
// managedFields, and bookkeeping annotations. Normalize strips these from
// deep copies before comparison.
//
// # Comparison
//
// Updates are detected with subset semantics: every field present in the
// desired manifest must match the live object, while live fields absent
// from the manifest (server defaults, admission additions) are ignored.
// Numbers compare by value, so an int64 from the API server equals the
// float64 the YAML decoder produced.
package diff
