package source

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/reason"
)

func newMemDirSource(t *testing.T, files map[string]string) *directorySource {
	t.Helper()

	fs := memoryfs.New()
	for path, content := range files {
		dir := path[:strings.LastIndex(path, "/")+1]
		if dir != "" {
			require.NoError(t, fs.MkdirAll(dir, os.ModePerm))
		}
		require.NoError(t, vfs.WriteFile(fs, path, []byte(content), os.ModePerm))
	}

	return &directorySource{base: fs, logger: slog.Default()}
}

func TestDirectoryResolveIsContentAddressed(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"/repo/manifests/cm.yaml":  "apiVersion: v1\nkind: ConfigMap\n",
		"/repo/manifests/svc.yaml": "apiVersion: v1\nkind: Service\n",
	}
	src := newMemDirSource(t, files)
	spec := v1alpha1.SourceSpec{RepoURL: "file:///repo", Path: "manifests"}

	first, err := src.Resolve(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "dir-"))
	assert.Len(t, first, len("dir-")+12)

	// Identical content resolves to the identical revision.
	again, err := src.Resolve(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// The same content in a second source instance also matches.
	other, err := newMemDirSource(t, files).Resolve(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, first, other)

	// Changed content moves the revision.
	require.NoError(t, vfs.WriteFile(src.base, "/repo/manifests/cm.yaml", []byte("changed"), os.ModePerm))

	moved, err := src.Resolve(context.Background(), spec)
	require.NoError(t, err)
	assert.NotEqual(t, first, moved)
}

func TestDirectoryResolvePin(t *testing.T) {
	t.Parallel()

	src := newMemDirSource(t, map[string]string{"/repo/cm.yaml": "data"})

	revision, err := src.Resolve(context.Background(), v1alpha1.SourceSpec{RepoURL: "file:///repo"})
	require.NoError(t, err)

	// Matching pin passes.
	_, err = src.Resolve(context.Background(), v1alpha1.SourceSpec{RepoURL: "file:///repo", TargetRevision: revision})
	require.NoError(t, err)

	// Mismatching pin fails.
	_, err = src.Resolve(context.Background(), v1alpha1.SourceSpec{RepoURL: "file:///repo", TargetRevision: "dir-000000000000"})
	require.Error(t, err)
	assert.Equal(t, reason.RevisionNotFound, reason.Classify(err))
}

func TestDirectoryResolveMissingPath(t *testing.T) {
	t.Parallel()

	src := newMemDirSource(t, map[string]string{"/repo/cm.yaml": "data"})

	_, err := src.Resolve(context.Background(), v1alpha1.SourceSpec{RepoURL: "file:///absent"})
	require.Error(t, err)
	assert.Equal(t, reason.RevisionNotFound, reason.Classify(err))
}

func TestDirectoryFetchProjectsTree(t *testing.T) {
	t.Parallel()

	src := newMemDirSource(t, map[string]string{
		"/repo/manifests/cm.yaml": "apiVersion: v1\nkind: ConfigMap\n",
	})
	spec := v1alpha1.SourceSpec{RepoURL: "file:///repo", Path: "manifests"}

	revision, err := src.Resolve(context.Background(), spec)
	require.NoError(t, err)

	snapshot, err := src.Fetch(context.Background(), spec, revision)
	require.NoError(t, err)
	assert.Equal(t, revision, snapshot.Revision)
	assert.Nil(t, snapshot.Chart)
	assert.Equal(t, "/", snapshot.Root)

	data, err := vfs.ReadFile(snapshot.FS, "/cm.yaml")
	require.NoError(t, err)
	assert.Equal(t, "apiVersion: v1\nkind: ConfigMap\n", string(data))
}

func TestDirectoryFetchDetectsMovedContent(t *testing.T) {
	t.Parallel()

	src := newMemDirSource(t, map[string]string{"/repo/cm.yaml": "v1"})
	spec := v1alpha1.SourceSpec{RepoURL: "file:///repo"}

	revision, err := src.Resolve(context.Background(), spec)
	require.NoError(t, err)

	require.NoError(t, vfs.WriteFile(src.base, "/repo/cm.yaml", []byte("v2"), os.ModePerm))

	_, err = src.Fetch(context.Background(), spec, revision)
	require.Error(t, err)
	assert.Equal(t, reason.RevisionNotFound, reason.Classify(err))
	assert.Contains(t, err.Error(), "moved to revision")
}
