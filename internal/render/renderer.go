package render

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/engine"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/metrics"
	"github.com/gitopslab/sync-controller/internal/reason"
	"github.com/gitopslab/sync-controller/internal/resource"
	"github.com/gitopslab/sync-controller/internal/source"
)

// Renderer produces the desired object set from a source snapshot.
type Renderer struct {
	metrics metrics.Collector
	logger  *slog.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(metricsCollector metrics.Collector, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Renderer{
		metrics: metricsCollector,
		logger:  logger.With("component", "renderer"),
	}
}

// Render produces the desired objects for an application at the given
// snapshot, ordered by group, kind, namespace, name.
func (r *Renderer) Render(
	ctx context.Context,
	app *v1alpha1.Application,
	snapshot *source.Snapshot,
) ([]*unstructured.Unstructured, error) {
	start := time.Now()

	objects, err := r.render(app, snapshot)
	if err != nil {
		r.metrics.RecordRender(ctx, "error", time.Since(start))

		return nil, err
	}

	if err := rejectDuplicates(objects); err != nil {
		r.metrics.RecordRender(ctx, "error", time.Since(start))

		return nil, err
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return resource.Compare(resource.KeyFor(objects[i]), resource.KeyFor(objects[j])) < 0
	})

	r.metrics.RecordRender(ctx, "success", time.Since(start))
	r.logger.Debug("rendered desired state",
		"app", app.Name, "revision", snapshot.Revision, "objects", len(objects))

	return objects, nil
}

func (r *Renderer) render(app *v1alpha1.Application, snapshot *source.Snapshot) ([]*unstructured.Unstructured, error) {
	if snapshot.Chart != nil {
		return r.renderChart(app, snapshot)
	}

	if snapshot.FS != nil {
		return r.renderDirectory(app, snapshot)
	}

	return nil, reason.Mark(errors.New("snapshot carries neither a chart nor a file tree"), reason.ReconcilerFault)
}

func (r *Renderer) renderChart(app *v1alpha1.Application, snapshot *source.Snapshot) ([]*unstructured.Unstructured, error) {
	ch := snapshot.Chart

	userValues, err := overlayValues(app.Spec.Source.Helm, chartFileReader(ch))
	if err != nil {
		return nil, err
	}

	effective, err := chartutil.CoalesceValues(ch, userValues)
	if err != nil {
		return nil, reason.Mark(errors.Wrap(err, "failed to merge chart values"), reason.RenderError)
	}

	if err := validateAgainstSchema(ch.Schema, map[string]any(effective)); err != nil {
		return nil, err
	}

	options := chartutil.ReleaseOptions{
		Name:      app.Name,
		Namespace: app.Spec.Destination.Namespace,
		Revision:  0,
		IsInstall: true,
	}

	renderValues, err := chartutil.ToRenderValues(ch, userValues, options, nil)
	if err != nil {
		return nil, reason.Mark(errors.Wrap(err, "failed to build render values"), reason.RenderError)
	}

	files, err := engine.Render(ch, renderValues)
	if err != nil {
		return nil, reason.Mark(errors.Wrap(err, "failed to render chart templates"), reason.RenderError)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		if !isManifestFile(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	objects := make([]*unstructured.Unstructured, 0, len(names))

	for _, name := range names {
		decoded, decodeErr := decodeObjects(name, []byte(files[name]))
		if decodeErr != nil {
			return nil, decodeErr
		}

		objects = append(objects, decoded...)
	}

	return objects, nil
}

func (r *Renderer) renderDirectory(app *v1alpha1.Application, snapshot *source.Snapshot) ([]*unstructured.Unstructured, error) {
	values, err := overlayValues(app.Spec.Source.Helm, fsFileReader(snapshot.FS, snapshot.Root))
	if err != nil {
		return nil, err
	}

	schema, err := readDirectorySchema(snapshot.FS, snapshot.Root)
	if err != nil {
		return nil, err
	}

	if err := validateAgainstSchema(schema, values); err != nil {
		return nil, err
	}

	valueFiles := make(map[string]struct{})
	if app.Spec.Source.Helm != nil {
		for _, name := range app.Spec.Source.Helm.ValueFiles {
			valueFiles[strings.TrimPrefix(name, "/")] = struct{}{}
		}
	}

	templateData := map[string]any{
		"Values": values,
		"App": map[string]any{
			"Name":      app.Name,
			"Namespace": app.Spec.Destination.Namespace,
		},
		"Revision": snapshot.Revision,
	}

	var objects []*unstructured.Unstructured

	err = vfs.Walk(snapshot.FS, snapshot.Root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return reason.Mark(errors.Wrapf(walkErr, "failed to walk %s", path), reason.RenderError)
		}

		if info.IsDir() {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(path, snapshot.Root), "/")
		if rel == directorySchemaFile {
			return nil
		}

		if _, isValueFile := valueFiles[rel]; isValueFile {
			return nil
		}

		templated := strings.HasSuffix(path, ".yaml.tpl")
		if !templated && !isManifestFile(path) {
			return nil
		}

		data, readErr := vfs.ReadFile(snapshot.FS, path)
		if readErr != nil {
			return reason.Mark(errors.Wrapf(readErr, "failed to read %s", path), reason.RenderError)
		}

		if templated {
			data, readErr = renderTemplateFile(rel, data, templateData)
			if readErr != nil {
				return readErr
			}
		}

		decoded, decodeErr := decodeObjects(rel, data)
		if decodeErr != nil {
			return decodeErr
		}

		objects = append(objects, decoded...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("parsed directory manifests", "app", app.Name, "objects", len(objects))

	return objects, nil
}

// directorySchemaFile validates the merged values of a directory source,
// mirroring the values.schema.json convention of packaged charts.
const directorySchemaFile = "values.schema.json"

func readDirectorySchema(fs vfs.FileSystem, root string) ([]byte, error) {
	schema, err := vfs.ReadFile(fs, vfs.Join(fs, root, directorySchemaFile))
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return nil, nil
		}

		return nil, reason.Mark(errors.Wrap(err, "failed to read values schema"), reason.RenderError)
	}

	return schema, nil
}

// rejectDuplicates fails when two rendered documents map to the same
// resource identity. Applying both would make the outcome order-dependent.
func rejectDuplicates(objects []*unstructured.Unstructured) error {
	seen := make(map[resource.Key]struct{}, len(objects))

	for _, obj := range objects {
		key := resource.KeyFor(obj)
		if _, dup := seen[key]; dup {
			return reason.Mark(errors.Newf("duplicate resource %s in rendered output", key), reason.RenderError)
		}

		seen[key] = struct{}{}
	}

	return nil
}

// isManifestFile reports whether the file can hold Kubernetes manifests.
// Helm partials (_helpers.tpl) and NOTES.txt fall through this filter.
func isManifestFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
