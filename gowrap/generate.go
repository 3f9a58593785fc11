package gowrap

import (
	"bytes"
	"fmt"
	"text/template"

	"golang.org/x/tools/imports"
)

// GenOptions control GenerateRegistration.
type GenOptions struct {
	// Package is the package clause of the generated file. When it
	// differs from the model's package, type references are qualified
	// and the model's package is imported.
	Package string
	// Namespace, if set, names every class Namespace::Type.
	Namespace string
}

var registrationTmpl = template.Must(template.New("registration").Parse(`// Code generated by mmc -gen; DO NOT EDIT.

package {{.Package}}

import (
	"github.com/chazu/multimethod/typeid"
{{- if .Qualifier}}
	{{.Qualifier}} "{{.ImportPath}}"
{{- end}}
)

// RegisterTypes registers the class types of {{.ImportPath}}, bases first.
func RegisterTypes(r *typeid.Registry) {
{{- range .Classes}}
	r.Register((*{{$.Prefix}}{{.Name}})(nil){{if .Named}}, typeid.Named({{printf "%q" .Named}}){{end}}{{if .Abstract}}, typeid.Abstract(){{end}})
{{- end}}
}
`))

type genClass struct {
	Name     string
	Named    string
	Abstract bool
}

// GenerateRegistration emits a Go source file declaring
// RegisterTypes(*typeid.Registry) for the model's classes.
func GenerateRegistration(model *PackageModel, opts GenOptions) ([]byte, error) {
	if opts.Package == "" {
		opts.Package = model.Name
	}

	data := struct {
		Package    string
		ImportPath string
		Qualifier  string
		Prefix     string
		Classes    []genClass
	}{
		Package:    opts.Package,
		ImportPath: model.ImportPath,
	}
	if opts.Package != model.Name {
		data.Qualifier = model.Name
		data.Prefix = model.Name + "."
	}
	for _, c := range model.Ordered() {
		gc := genClass{Name: c.Name, Abstract: c.Abstract}
		if opts.Namespace != "" {
			gc.Named = ClassName(opts.Namespace, c.Name)
		}
		data.Classes = append(data.Classes, gc)
	}

	var buf bytes.Buffer
	if err := registrationTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}

	out, err := imports.Process("registration.go", buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("formatting generated code: %w\n%s", err, buf.Bytes())
	}
	return out, nil
}
