// Package syncer executes sync operations: it drives the writes that move a
// destination cluster from its observed live state to the rendered desired
// state.
//
// # Ordering
//
// The diff entries of one operation are partitioned into waves by the
// sync-wave annotation, lower waves first. Inside a wave, kind ordering
// applies: Namespaces, then CustomResourceDefinitions, then the remaining
// cluster-scoped objects, then namespaced ones. A wave starts only after the
// previous wave finished completely. Entries inside one ordering band have
// no dependencies on each other and run in parallel, bounded by a weighted
// semaphore.
//
// Delete candidates run after every apply finished, in reverse apply order,
// so dependents go before their dependencies.
//
// # Retries and conflicts
//
// Every write retries on failure with exponential backoff, bounded by the
// application's retry policy. Each attempt re-reads the live object first,
// so a concurrency-marker conflict heals itself on the next attempt if the
// live content settled. A budget spent entirely on conflicts records the
// resource as Conflict, any other exhausted budget as Failed.
//
// A failed resource never stops the operation: remaining entries still run
// and the operation reports a per-resource result for every entry. Dry-run
// operations plan identically but never write.
//
// # Aborts
//
// Cancelling the operation context aborts the run. Entries not yet written
// are recorded as Aborted and the operation finishes in phase Error.
package syncer
