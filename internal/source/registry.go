package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/registry"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/reason"
)

// registrySource pulls charts from OCI registries.
type registrySource struct {
	settings       *cli.EnvSettings
	registryClient *registry.Client
	cacheDir       string
	logger         *slog.Logger

	// charts caches loaded charts by ref:revision.
	charts  map[string]*chart.Chart
	cacheMu sync.RWMutex
}

func newRegistrySource(cacheDir string, logger *slog.Logger) (*registrySource, error) {
	settings := cli.New()

	registryClient, err := registry.NewClient(
		registry.ClientOptDebug(false),
		registry.ClientOptEnableCache(true),
		registry.ClientOptCredentialsFile(settings.RegistryConfig),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create registry client")
	}

	if cacheDir == "" {
		cacheDir = os.TempDir()
	}

	return &registrySource{
		settings:       settings,
		registryClient: registryClient,
		cacheDir:       cacheDir,
		logger:         logger.With("component", "registry-source"),
		charts:         make(map[string]*chart.Chart),
	}, nil
}

// Resolve maps the target revision selector to a concrete chart version.
// An exact semver version pins itself without touching the registry. Empty
// selectors and semver ranges are matched against the registry tag list,
// picking the highest matching version.
func (s *registrySource) Resolve(_ context.Context, spec v1alpha1.SourceSpec) (string, error) {
	selector := spec.TargetRevision

	if _, err := semver.StrictNewVersion(strings.TrimPrefix(selector, "v")); err == nil {
		return selector, nil
	}

	repo := trimOCIPrefix(spec.RepoURL)

	tags, err := s.registryClient.Tags(repo)
	if err != nil {
		return "", reason.Mark(errors.Wrapf(err, "failed to get tags for %s", repo), reason.SourceUnavailable)
	}

	if len(tags) == 0 {
		return "", reason.Mark(errors.Newf("no tags found for %s", repo), reason.RevisionNotFound)
	}

	match, err := highestMatching(tags, selector)
	if err != nil {
		return "", err
	}

	return match, nil
}

// Fetch pulls the chart at the given version, loading it from the local
// cache when it was pulled before.
func (s *registrySource) Fetch(_ context.Context, spec v1alpha1.SourceSpec, revision string) (*Snapshot, error) {
	cacheKey := spec.RepoURL + ":" + revision

	s.cacheMu.RLock()

	if cached, ok := s.charts[cacheKey]; ok {
		s.cacheMu.RUnlock()

		return &Snapshot{Revision: revision, Chart: cached}, nil
	}

	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if cached, ok := s.charts[cacheKey]; ok {
		return &Snapshot{Revision: revision, Chart: cached}, nil
	}

	s.logger.Info("pulling chart from registry", "ref", spec.RepoURL, "version", revision)

	pullConfig := &action.Configuration{
		RegistryClient: s.registryClient,
	}

	pullClient := action.NewPullWithOpts(action.WithConfig(pullConfig))
	pullClient.Settings = s.settings
	pullClient.Version = revision
	pullClient.DestDir = s.cacheDir

	output, err := pullClient.Run(spec.RepoURL)
	if err != nil {
		return nil, reason.Mark(errors.Wrapf(err, "failed to pull chart %s", spec.RepoURL), reason.SourceUnavailable)
	}

	s.logger.Debug("chart pulled", "output", output)

	chartName := filepath.Base(trimOCIPrefix(spec.RepoURL))
	chartPath := filepath.Join(s.cacheDir, chartName+"-"+revision+".tgz")

	loadedChart, err := loader.Load(chartPath)
	if err != nil {
		return nil, reason.Mark(errors.Wrapf(err, "failed to load chart from %s", chartPath), reason.SourceUnavailable)
	}

	s.charts[cacheKey] = loadedChart

	return &Snapshot{Revision: revision, Chart: loadedChart}, nil
}

// highestMatching picks the highest tag matching the selector. Bare, "*"
// and "latest" selectors take the highest stable version; a range admits
// prerelease tags only when it names a prerelease itself. Tags that do
// not parse as semver are skipped.
func highestMatching(tags []string, selector string) (string, error) {
	var constraint *semver.Constraints

	if selector != "" && selector != "*" && selector != "latest" {
		parsed, err := semver.NewConstraint(selector)
		if err != nil {
			return "", reason.Mark(
				errors.Wrapf(err, "target revision %q is neither a version nor a range", selector),
				reason.RevisionNotFound,
			)
		}

		constraint = parsed
	}

	versions := make([]*semver.Version, 0, len(tags))

	for _, tag := range tags {
		ver, parseErr := semver.NewVersion(tag)
		if parseErr != nil {
			continue
		}

		if constraint == nil {
			if ver.Prerelease() != "" {
				continue
			}
		} else if !constraint.Check(ver) {
			continue
		}

		versions = append(versions, ver)
	}

	if len(versions) == 0 {
		if constraint == nil {
			return "", reason.Mark(errors.New("no stable versions published"), reason.RevisionNotFound)
		}

		return "", reason.Mark(errors.Newf("no version matches %q", selector), reason.RevisionNotFound)
	}

	sort.Sort(semver.Collection(versions))

	return versions[len(versions)-1].Original(), nil
}

func trimOCIPrefix(chartRef string) string {
	return strings.TrimPrefix(chartRef, "oci://")
}
