package render

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	yamlutil "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/gitopslab/sync-controller/internal/reason"
)

const decoderBufferSize = 1024

// decodeObjects splits a rendered file into its manifest documents. Empty
// documents are skipped; any document that fails to decode or lacks an
// identity fails the whole render.
func decodeObjects(name string, data []byte) ([]*unstructured.Unstructured, error) {
	var objects []*unstructured.Unstructured

	decoder := yamlutil.NewYAMLOrJSONDecoder(bytes.NewReader(data), decoderBufferSize)

	for index := 0; ; index++ {
		// A fresh map each pass: Decode merges into whatever keys are
		// already present, which would leak fields across documents.
		var decoded map[string]any

		if err := decoder.Decode(&decoded); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, reason.Mark(
				errors.Wrapf(err, "failed to decode document %d of %s", index, name),
				reason.RenderError,
			)
		}

		if len(decoded) == 0 {
			continue
		}

		obj := &unstructured.Unstructured{Object: decoded}
		if err := validateObject(name, index, obj); err != nil {
			return nil, err
		}

		objects = append(objects, obj)
	}

	return objects, nil
}

func validateObject(name string, index int, obj *unstructured.Unstructured) error {
	switch {
	case obj.GetAPIVersion() == "":
		return reason.Mark(
			errors.Newf("document %d of %s has no apiVersion", index, name),
			reason.RenderError,
		)
	case obj.GetKind() == "":
		return reason.Mark(
			errors.Newf("document %d of %s has no kind", index, name),
			reason.RenderError,
		)
	case obj.GetName() == "":
		return reason.Mark(
			errors.Newf("document %d of %s has no metadata.name", index, name),
			reason.RenderError,
		)
	}

	return nil
}
