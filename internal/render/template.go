package render

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"

	"github.com/gitopslab/sync-controller/internal/reason"
)

// templateFuncs is the sprig function map without the functions that read
// controller process state. Manifests must not depend on the environment
// the controller happens to run in.
func templateFuncs() template.FuncMap {
	funcs := sprig.FuncMap()
	delete(funcs, "env")
	delete(funcs, "expandenv")

	return funcs
}

// renderTemplateFile executes a *.yaml.tpl file against the render context.
func renderTemplateFile(name string, raw []byte, data map[string]any) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(raw))
	if err != nil {
		return nil, reason.Mark(errors.Wrapf(err, "failed to parse template %s", name), reason.RenderError)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, reason.Mark(errors.Wrapf(err, "failed to execute template %s", name), reason.RenderError)
	}

	return buf.Bytes(), nil
}
