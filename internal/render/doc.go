// Package render turns a source snapshot into the desired object set.
//
// # Overview
//
// Rendering is a pure function of the snapshot and the Application spec:
// it never contacts a cluster, and identical inputs yield an identical,
// identically ordered object list. Cluster-dependent concerns such as
// namespace defaulting stay with the reconciler.
//
// # Chart sources
//
// Chart snapshots render through the Helm engine. The effective values are
// built in overlay order: chart defaults, then each spec.source.helm
// valueFiles entry (shipped inside the chart), then the inline
// spec.source.helm.values document. Later layers win per key. When the
// chart carries a values.schema.json, the effective values are validated
// against it before rendering.
//
// # Directory sources
//
// Directory snapshots are walked for manifests. Plain *.yaml, *.yml, and
// *.json files are parsed as-is. Files ending in .yaml.tpl are first
// rendered as Go templates with the sprig function set (env and expandenv
// removed); the merged values are exposed as .Values, the application name
// and destination namespace as .App, and the snapshot revision as
// .Revision. Files listed in
// spec.source.helm.valueFiles feed the value overlay instead of being
// parsed as manifests, and a values.schema.json at the tree root validates
// the merged values the way a packaged chart's schema would.
//
// # Failure policy
//
// Rendering is all or nothing. An unparseable document, an object missing
// apiVersion, kind, or metadata.name, and two documents mapping to the
// same resource identity each fail the whole render.
package render
