package cjmod

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

// LoadCMOD parses every CHTL source of a CMOD module and registers the
// exported symbols in the global map under the module's namespace. When the
// metadata has an [Export] block, each listed symbol must exist; symbols are
// published under "<ModuleName>.<Name>".
func LoadCMOD(m *Module, global *syntax.GlobalMap, sink *diag.Sink, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("cmod")

	files, err := m.SourceFiles(".chtl")
	if err != nil {
		return fmt.Errorf("module %s: %w", m.Name, err)
	}
	if len(files) == 0 && len(m.Subs) == 0 {
		return fmt.Errorf("module %s: no CHTL sources in src/", m.Name)
	}

	before := global.Len()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("module %s: read %s: %w", m.Name, f, err)
		}
		p := syntax.NewParser(string(data), f, global, sink)
		p.SetNamespace([]string{m.Name})
		p.Parse()
	}
	log.Debug("cmod sources parsed",
		zap.String("module", m.Name),
		zap.Int("files", len(files)),
		zap.Int("symbols", global.Len()-before))

	// Verify the export list against what actually registered.
	if m.Meta != nil {
		for _, exp := range m.Meta.Exports {
			if !exportResolves(global, m.Name, exp) {
				return fmt.Errorf("module %s: exported symbol %s %s not defined",
					m.Name, exp.Tag, exp.Name)
			}
		}
	}

	for _, sub := range m.Subs {
		if sub.Kind == KindCMOD || sub.Kind == KindMixed {
			if err := LoadCMOD(sub, global, sink, log); err != nil {
				return err
			}
		}
	}
	return nil
}

func exportResolves(global *syntax.GlobalMap, module string, exp Export) bool {
	ns := []string{module}
	var kinds []syntax.ObjectKind
	switch exp.Tag {
	case syntax.TagStyle:
		kinds = []syntax.ObjectKind{syntax.ObjTemplateStyle, syntax.ObjCustomStyle}
	case syntax.TagElement:
		kinds = []syntax.ObjectKind{syntax.ObjTemplateElement, syntax.ObjCustomElement}
	case syntax.TagVar:
		kinds = []syntax.ObjectKind{syntax.ObjTemplateVar, syntax.ObjCustomVar}
	}
	for _, k := range kinds {
		if global.Find(k, exp.Name, ns) != nil {
			return true
		}
	}
	return false
}
