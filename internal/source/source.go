package source

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"helm.sh/helm/v3/pkg/chart"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/metrics"
	"github.com/gitopslab/sync-controller/internal/reason"
)

// Snapshot is an immutable copy of a source at a concrete revision.
//
// Exactly one content form is populated: Chart for registry and archive
// sources, FS for directory sources.
type Snapshot struct {
	// Revision the snapshot was taken at.
	Revision string

	// Chart is the loaded chart, nil for directory sources.
	Chart *chart.Chart

	// FS is the file tree of a directory source, rooted at Root.
	FS   vfs.FileSystem
	Root string
}

// Adapter resolves revision selectors and fetches snapshots for one scheme.
type Adapter interface {
	// Resolve maps the target revision selector to a concrete immutable
	// revision. It never fetches manifest content beyond what revision
	// computation requires.
	Resolve(ctx context.Context, spec v1alpha1.SourceSpec) (string, error)

	// Fetch retrieves the snapshot at a previously resolved revision. It
	// fails when the source content no longer matches that revision.
	Fetch(ctx context.Context, spec v1alpha1.SourceSpec, revision string) (*Snapshot, error)
}

// Resolver dispatches to the adapter matching the repoURL scheme and
// records per-source-type metrics around every access.
type Resolver struct {
	registry *registrySource
	archive  *archiveSource
	dir      *directorySource
	metrics  metrics.Collector
}

// NewResolver creates a Resolver with all adapters wired. Pulled charts
// land in cacheDir, httpTimeout bounds archive downloads.
func NewResolver(
	cacheDir string,
	httpTimeout time.Duration,
	metricsCollector metrics.Collector,
	logger *slog.Logger,
) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := newRegistrySource(cacheDir, logger)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		registry: registry,
		archive:  newArchiveSource(httpTimeout, logger),
		dir:      newDirectorySource(logger),
		metrics:  metricsCollector,
	}, nil
}

// Resolve maps the source's revision selector to a concrete revision.
func (r *Resolver) Resolve(ctx context.Context, spec v1alpha1.SourceSpec) (string, error) {
	adapter, sourceType, err := r.adapterFor(spec.RepoURL)
	if err != nil {
		return "", err
	}

	start := time.Now()

	revision, err := adapter.Resolve(ctx, spec)
	if err != nil {
		r.metrics.RecordSourceResolve(ctx, sourceType, "error", time.Since(start))

		return "", err
	}

	r.metrics.RecordSourceResolve(ctx, sourceType, "success", time.Since(start))

	return revision, nil
}

// Fetch retrieves the snapshot at a previously resolved revision.
func (r *Resolver) Fetch(ctx context.Context, spec v1alpha1.SourceSpec, revision string) (*Snapshot, error) {
	adapter, sourceType, err := r.adapterFor(spec.RepoURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	snapshot, err := adapter.Fetch(ctx, spec, revision)
	if err != nil {
		r.metrics.RecordSourceResolve(ctx, sourceType, "error", time.Since(start))

		return nil, err
	}

	r.metrics.RecordSourceResolve(ctx, sourceType, "success", time.Since(start))

	return snapshot, nil
}

func (r *Resolver) adapterFor(repoURL string) (Adapter, string, error) {
	switch {
	case strings.HasPrefix(repoURL, "oci://"):
		return r.registry, "oci", nil
	case strings.HasPrefix(repoURL, "https://"), strings.HasPrefix(repoURL, "http://"):
		return r.archive, "archive", nil
	case strings.HasPrefix(repoURL, "file://"), !strings.Contains(repoURL, "://"):
		return r.dir, "directory", nil
	}

	return nil, "", reason.Mark(errors.Newf("unsupported source scheme in %q", repoURL), reason.RevisionNotFound)
}
