package chtl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

// fileImporter resolves [Import] nodes for one compilation unit. File imports
// parse into the unit's global map; module imports delegate to the loader
// (usually already satisfied by the pre-scan phase); raw imports wrap the
// file contents in an origin node.
type fileImporter struct {
	unit *unitState
}

func (fi *fileImporter) Import(n *syntax.Node, global *syntax.GlobalMap, sink *diag.Sink) ([]*syntax.Node, error) {
	u := fi.unit
	switch n.Tag {
	case syntax.TagChtl:
		if strings.HasSuffix(n.Value, ".chtl") {
			return fi.importChtlFile(n, global, sink)
		}
		_, err := u.loader.LoadByName(n.Value)
		return nil, err

	case syntax.TagCJmod:
		_, err := u.loader.LoadByName(n.Value)
		return nil, err

	case syntax.TagStyle, syntax.TagElement, syntax.TagVar:
		// Symbol import: parse the file so its declarations register, then
		// alias the requested symbol when asked. The import site itself
		// renders nothing.
		if _, err := fi.importChtlFile(n, global, sink); err != nil {
			return nil, err
		}
		if n.Symbol != "" && n.Alias != "" {
			fi.aliasSymbol(n, global, sink)
		}
		return nil, nil

	case syntax.TagHtml, syntax.TagJavaScript:
		return fi.importRaw(n)
	}
	return nil, fmt.Errorf("unsupported import kind %s", n.Tag)
}

func (fi *fileImporter) importChtlFile(n *syntax.Node, global *syntax.GlobalMap, sink *diag.Sink) ([]*syntax.Node, error) {
	path := fi.resolvePath(n.Value)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := syntax.NewParser(string(data), path, global, sink)
	root := p.Parse()
	return root.Children, nil
}

// aliasSymbol republishes an imported symbol under its "as" alias.
func (fi *fileImporter) aliasSymbol(n *syntax.Node, global *syntax.GlobalMap, sink *diag.Sink) {
	kinds := kindsForTag(n.Tag)
	for _, k := range kinds {
		if obj := global.Find(k, n.Symbol, nil); obj != nil {
			alias := *obj
			alias.QualifiedName = n.Alias
			alias.Namespace = nil
			if err := global.Register(&alias); err != nil {
				sink.Report(diag.Diagnostic{
					Kind:    diag.Resolution,
					File:    n.Source.File,
					Line:    n.Source.Span.Line,
					Column:  n.Source.Span.Column,
					Message: err.Error(),
				})
			}
			return
		}
	}
	sink.Report(diag.Diagnostic{
		Kind:    diag.Resolution,
		File:    n.Source.File,
		Line:    n.Source.Span.Line,
		Column:  n.Source.Span.Column,
		Message: fmt.Sprintf("imported symbol %s %s not found in %s", n.Tag, n.Symbol, n.Value),
	})
}

// importRaw wraps a foreign file in an origin node so the generators embed it
// verbatim.
func (fi *fileImporter) importRaw(n *syntax.Node) ([]*syntax.Node, error) {
	path := fi.resolvePath(n.Value)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	o := syntax.NewNode(syntax.KindOrigin, n.Source)
	o.Tag = n.Tag
	o.Name = n.Alias
	o.Value = string(data)
	return []*syntax.Node{o}, nil
}

func (fi *fileImporter) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(fi.unit.filename), p)
}

func kindsForTag(tag syntax.TypeTag) []syntax.ObjectKind {
	switch tag {
	case syntax.TagStyle:
		return []syntax.ObjectKind{syntax.ObjTemplateStyle, syntax.ObjCustomStyle}
	case syntax.TagElement:
		return []syntax.ObjectKind{syntax.ObjTemplateElement, syntax.ObjCustomElement}
	case syntax.TagVar:
		return []syntax.ObjectKind{syntax.ObjTemplateVar, syntax.ObjCustomVar}
	}
	return nil
}
