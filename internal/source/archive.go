package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"helm.sh/helm/v3/pkg/chart/loader"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/reason"
)

const archiveRevisionPrefix = "sha256-"

// maxArchiveSize bounds chart archive downloads.
const maxArchiveSize = 64 << 20

// archiveSource downloads packaged chart archives over HTTP(S). Archives
// carry no tag list, so the revision is content-addressed.
type archiveSource struct {
	client *http.Client
	logger *slog.Logger

	// cache holds the last downloaded archive per URL so Fetch right after
	// Resolve does not download twice.
	cache   map[string]archiveEntry
	cacheMu sync.RWMutex
}

type archiveEntry struct {
	revision string
	data     []byte
}

func newArchiveSource(timeout time.Duration, logger *slog.Logger) *archiveSource {
	return &archiveSource{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "archive-source"),
		cache:  make(map[string]archiveEntry),
	}
}

// Resolve downloads the archive and derives its content revision. A
// non-empty target revision must match the computed digest.
func (s *archiveSource) Resolve(ctx context.Context, spec v1alpha1.SourceSpec) (string, error) {
	entry, err := s.download(ctx, spec.RepoURL)
	if err != nil {
		return "", err
	}

	if spec.TargetRevision != "" && spec.TargetRevision != entry.revision {
		return "", reason.Mark(
			errors.Newf("archive %s has revision %s, want %s", spec.RepoURL, entry.revision, spec.TargetRevision),
			reason.RevisionNotFound,
		)
	}

	return entry.revision, nil
}

// Fetch loads the chart from the archive at the given revision. When the
// content moved since Resolve, the fetch fails rather than silently
// rendering a different revision.
func (s *archiveSource) Fetch(ctx context.Context, spec v1alpha1.SourceSpec, revision string) (*Snapshot, error) {
	s.cacheMu.RLock()
	entry, ok := s.cache[spec.RepoURL]
	s.cacheMu.RUnlock()

	if !ok || entry.revision != revision {
		fresh, err := s.download(ctx, spec.RepoURL)
		if err != nil {
			return nil, err
		}

		if fresh.revision != revision {
			return nil, reason.Mark(
				errors.Newf("archive %s moved to revision %s while syncing %s", spec.RepoURL, fresh.revision, revision),
				reason.RevisionNotFound,
			)
		}

		entry = fresh
	}

	loadedChart, err := loader.LoadArchive(bytes.NewReader(entry.data))
	if err != nil {
		return nil, reason.Mark(errors.Wrapf(err, "failed to load chart archive from %s", spec.RepoURL), reason.SourceUnavailable)
	}

	return &Snapshot{Revision: revision, Chart: loadedChart}, nil
}

func (s *archiveSource) download(ctx context.Context, url string) (archiveEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return archiveEntry{}, reason.Mark(errors.Wrapf(err, "failed to build request for %s", url), reason.SourceUnavailable)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return archiveEntry{}, reason.Mark(errors.Wrapf(err, "failed to fetch archive from %s", url), reason.SourceUnavailable)
	}
	defer res.Body.Close() //nolint:errcheck // response body close on read path

	if res.StatusCode == http.StatusNotFound {
		return archiveEntry{}, reason.Mark(errors.Newf("archive %s not found", url), reason.RevisionNotFound)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return archiveEntry{}, reason.Mark(errors.Newf("failed to fetch archive from %s: %s", url, res.Status), reason.SourceUnavailable)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxArchiveSize))
	if err != nil {
		return archiveEntry{}, reason.Mark(errors.Wrapf(err, "failed to read archive from %s", url), reason.SourceUnavailable)
	}

	entry := archiveEntry{revision: contentRevision(archiveRevisionPrefix, data), data: data}

	s.cacheMu.Lock()
	s.cache[url] = entry
	s.cacheMu.Unlock()

	s.logger.Debug("archive downloaded", "url", url, "revision", entry.revision, "bytes", len(data))

	return entry, nil
}

// contentRevision derives a short content-addressed revision string.
func contentRevision(prefix string, data []byte) string {
	digest := sha256.Sum256(data)

	return prefix + hex.EncodeToString(digest[:])[:12]
}
