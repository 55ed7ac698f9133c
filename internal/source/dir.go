package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/projectionfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/reason"
)

const dirRevisionPrefix = "dir-"

// directorySource serves manifests from a local directory tree, typically a
// hostPath or volume mount kept up to date by an external process. The
// revision is a digest over the rendered subtree, so it only moves when
// relevant content changes.
type directorySource struct {
	base   vfs.FileSystem
	logger *slog.Logger
}

func newDirectorySource(logger *slog.Logger) *directorySource {
	return &directorySource{
		base:   osfs.New(),
		logger: logger.With("component", "directory-source"),
	}
}

// Resolve computes the content revision of the directory. A non-empty
// target revision must match the computed digest.
func (s *directorySource) Resolve(_ context.Context, spec v1alpha1.SourceSpec) (string, error) {
	root := s.root(spec)

	revision, err := s.hashTree(root)
	if err != nil {
		return "", err
	}

	if spec.TargetRevision != "" && spec.TargetRevision != revision {
		return "", reason.Mark(
			errors.Newf("directory %s has revision %s, want %s", root, revision, spec.TargetRevision),
			reason.RevisionNotFound,
		)
	}

	return revision, nil
}

// Fetch projects the directory into a snapshot filesystem after verifying
// the content still matches the resolved revision.
func (s *directorySource) Fetch(_ context.Context, spec v1alpha1.SourceSpec, revision string) (*Snapshot, error) {
	root := s.root(spec)

	current, err := s.hashTree(root)
	if err != nil {
		return nil, err
	}

	if current != revision {
		return nil, reason.Mark(
			errors.Newf("directory %s moved to revision %s while syncing %s", root, current, revision),
			reason.RevisionNotFound,
		)
	}

	projected, err := projectionfs.New(s.base, root)
	if err != nil {
		return nil, reason.Mark(errors.Wrapf(err, "failed to project directory %s", root), reason.SourceUnavailable)
	}

	return &Snapshot{Revision: revision, FS: projected, Root: "/"}, nil
}

func (s *directorySource) root(spec v1alpha1.SourceSpec) string {
	root := strings.TrimPrefix(spec.RepoURL, "file://")
	if spec.Path != "" {
		root = filepath.Join(root, spec.Path)
	}

	return root
}

// hashTree digests every regular file under root. vfs.Walk visits entries
// in lexical order, so the digest is stable for identical trees.
func (s *directorySource) hashTree(root string) (string, error) {
	hash := sha256.New()

	err := vfs.Walk(s.base, root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if info.IsDir() {
			return nil
		}

		data, readErr := vfs.ReadFile(s.base, path)
		if readErr != nil {
			return readErr
		}

		hash.Write([]byte(strings.TrimPrefix(path, root)))
		hash.Write([]byte{0})
		hash.Write(data)

		return nil
	})
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return "", reason.Mark(errors.Wrapf(err, "directory %s does not exist", root), reason.RevisionNotFound)
		}

		return "", reason.Mark(errors.Wrapf(err, "failed to hash directory %s", root), reason.SourceUnavailable)
	}

	return dirRevisionPrefix + hex.EncodeToString(hash.Sum(nil))[:12], nil
}
