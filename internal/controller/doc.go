// Package controller implements the Application reconciler.
//
// ApplicationReconciler runs a full comparison pass on every reconcile:
//
//	┌──────────────┐   resolve    ┌──────────────────────────┐
//	│ Application  │─────────────>│ source.Resolver          │
//	│ resources    │              │ (chart archive or dir)   │
//	└──────────────┘              └────────────┬─────────────┘
//	                                           │ render
//	┌──────────────┐   observe                 ▼
//	│ destination  │<─────────────┌──────────────────────────┐
//	│ cluster      │              │ desired state            │
//	└──────┬───────┘              └────────────┬─────────────┘
//	       │ live state                        │
//	       └──────────────┬────────────────────┘
//	                      ▼
//	               ┌─────────────┐   when triggered   ┌─────────────────┐
//	               │ diff.Entry  │───────────────────>│ syncer.Executor │
//	               └─────────────┘                    └─────────────────┘
//
// The comparison is always published to status, whether or not a sync
// operation follows. Operations start on a manual request annotation, or
// automatically when policy allows: the resolved revision changed, or
// self-heal is enabled and the live state drifted.
//
// # Deletion
//
// A finalizer keeps the Application around until its inventory is handled.
// With pruning enabled, deletion cascades to every recorded resource before
// the finalizer is released; otherwise the resources are left in place.
//
// # Destination clusters
//
// Applications may target the controller's own cluster or any cluster
// reachable through a kubeconfig Secret. Clients are cached per Secret
// content and invalidated by a Secret watch.
//
// # Leader Election
//
// When running multiple replicas for high availability, enable leader
// election via the --leader-elect flag to ensure only one controller
// actively reconciles at a time.
package controller
