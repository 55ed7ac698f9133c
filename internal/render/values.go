package render

import (
	"strings"

	"dario.cat/mergo"
	"github.com/cockroachdb/errors"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/xeipuuv/gojsonschema"
	"helm.sh/helm/v3/pkg/chart"
	"sigs.k8s.io/yaml"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/reason"
)

// fileReader resolves a value file name to its content. Chart sources read
// from the packaged files, directory sources from the snapshot tree.
type fileReader func(name string) ([]byte, error)

// overlayValues layers the configured value files in order, then the inline
// values block on top. Later layers override earlier ones key by key.
func overlayValues(helmSpec *v1alpha1.HelmSource, read fileReader) (map[string]any, error) {
	result := map[string]any{}

	if helmSpec == nil {
		return result, nil
	}

	for _, name := range helmSpec.ValueFiles {
		data, err := read(name)
		if err != nil {
			return nil, err
		}

		layer := map[string]any{}
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, reason.Mark(errors.Wrapf(err, "failed to parse value file %s", name), reason.RenderError)
		}

		if err := mergo.Merge(&result, layer, mergo.WithOverride); err != nil {
			return nil, reason.Mark(errors.Wrapf(err, "failed to merge value file %s", name), reason.RenderError)
		}
	}

	if helmSpec.Values != "" {
		inline := map[string]any{}
		if err := yaml.Unmarshal([]byte(helmSpec.Values), &inline); err != nil {
			return nil, reason.Mark(errors.Wrap(err, "failed to parse inline values"), reason.RenderError)
		}

		if err := mergo.Merge(&result, inline, mergo.WithOverride); err != nil {
			return nil, reason.Mark(errors.Wrap(err, "failed to merge inline values"), reason.RenderError)
		}
	}

	return result, nil
}

// validateAgainstSchema checks the effective values against the chart's
// values.schema.json, when the chart ships one.
func validateAgainstSchema(schema []byte, values map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewGoLoader(values),
	)
	if err != nil {
		return reason.Mark(errors.Wrap(err, "failed to evaluate values schema"), reason.RenderError)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, validationErr := range result.Errors() {
			details = append(details, validationErr.String())
		}

		return reason.Mark(
			errors.Newf("values rejected by chart schema: %s", strings.Join(details, "; ")),
			reason.RenderError,
		)
	}

	return nil
}

func chartFileReader(ch *chart.Chart) fileReader {
	return func(name string) ([]byte, error) {
		clean := strings.TrimPrefix(name, "/")
		for _, file := range ch.Raw {
			if file.Name == clean {
				return file.Data, nil
			}
		}

		return nil, reason.Mark(
			errors.Newf("value file %s not found in chart %s", name, ch.Name()),
			reason.RenderError,
		)
	}
}

func fsFileReader(fs vfs.FileSystem, root string) fileReader {
	return func(name string) ([]byte, error) {
		data, err := vfs.ReadFile(fs, vfs.Join(fs, root, strings.TrimPrefix(name, "/")))
		if err != nil {
			return nil, reason.Mark(errors.Wrapf(err, "failed to read value file %s", name), reason.RenderError)
		}

		return data, nil
	}
}
