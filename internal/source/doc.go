// Package source fetches application manifests from their configured origin.
//
// # Overview
//
// Every Application names a source through spec.source.repoURL. The URL
// scheme selects the adapter:
//
//   - oci://      a chart in an OCI registry
//   - https://    a packaged chart archive (.tgz)
//   - file:// or a bare path    a local directory tree
//
// Adapters split source access into two steps. Resolve maps the revision
// selector in spec.source.targetRevision to a concrete immutable revision
// without fetching manifest content. Fetch retrieves a Snapshot at such a
// revision. The split lets the reconciler skip render and diff work when
// the resolved revision and the live state are both unchanged.
//
// # Revisions
//
// Registry sources resolve through the registry tag list: an exact semver
// version pins itself, a semver range (such as "1.2.x" or "^1.0.0") picks
// the highest matching stable tag, and an empty selector picks the highest
// stable tag overall.
//
// Archive and directory sources have no tag list, so their revision is the
// content itself: "sha256-" plus the first 12 hex digits of the archive
// digest, or "dir-" plus the digest of the walked file tree. A non-empty
// targetRevision acts as a pin that must match the computed digest.
//
// # Caching
//
// Pulled charts and downloaded archives are cached in memory per
// ref+revision, so repeated reconciles of an unchanged application do not
// touch the network. All adapters are safe for concurrent use.
package source
