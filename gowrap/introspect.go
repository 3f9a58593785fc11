package gowrap

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Introspect loads the package matching pattern, resolved relative to dir,
// and returns its class model. Exported structs become classes; embedded
// exported structs of the same package become their bases.
func Introspect(dir, pattern string) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax,
		Dir:  dir,
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", pattern)
	}
	if len(pkgs) > 1 {
		return nil, fmt.Errorf("pattern %s matches %d packages, want one", pattern, len(pkgs))
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", pattern)
	}

	abstract := abstractTypes(pkg.Syntax)
	model := &PackageModel{
		ImportPath: pkg.PkgPath,
		Name:       pkg.Name,
	}

	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		st, ok := tn.Type().Underlying().(*types.Struct)
		if !ok {
			continue
		}
		model.Classes = append(model.Classes, ClassModel{
			Name:     name,
			Bases:    embeddedBases(st, pkg.Types),
			Abstract: abstract[name],
		})
	}

	return model, nil
}

// embeddedBases returns the exported same-package struct types embedded in
// st, by value or by pointer.
func embeddedBases(st *types.Struct, pkg *types.Package) []string {
	var bases []string
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Embedded() {
			continue
		}
		t := f.Type()
		if ptr, ok := t.(*types.Pointer); ok {
			t = ptr.Elem()
		}
		named, ok := t.(*types.Named)
		if !ok {
			continue
		}
		obj := named.Obj()
		if obj.Pkg() != pkg || !obj.Exported() {
			continue
		}
		if _, ok := named.Underlying().(*types.Struct); ok {
			bases = append(bases, obj.Name())
		}
	}
	return bases
}

// abstractTypes finds the type declarations whose doc comment carries
// AbstractMarker on a line of its own.
func abstractTypes(files []*ast.File) map[string]bool {
	result := make(map[string]bool)
	for _, f := range files {
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				if hasMarker(doc) {
					result[ts.Name.Name] = true
				}
			}
		}
	}
	return result
}

func hasMarker(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	// Raw comments, since Text drops directive-style lines.
	for _, c := range doc.List {
		text := strings.TrimPrefix(c.Text, "//")
		if strings.TrimSpace(text) == AbstractMarker {
			return true
		}
	}
	return false
}
