package cjmod

import (
	"go.uber.org/zap"

	"github.com/dpotapov/chtl/chtljs"
	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/scanner"
	"github.com/dpotapov/chtl/syntax"
)

// Loader drives the full module lifecycle for one compilation unit:
// locate -> load -> validate -> parse metadata -> register. Loaded module
// handles live until Close, which releases them in reverse load order.
type Loader struct {
	locator *Locator
	global  *syntax.GlobalMap
	reg     *scanner.Registry
	exts    *chtljs.ExtensionSet
	sink    *diag.Sink
	log     *zap.Logger

	loaded []*Module
	byName map[string]*Module
}

func NewLoader(locator *Locator, global *syntax.GlobalMap, reg *scanner.Registry,
	exts *chtljs.ExtensionSet, sink *diag.Sink, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		locator: locator,
		global:  global,
		reg:     reg,
		exts:    exts,
		sink:    sink,
		log:     log.Named("loader"),
		byName:  make(map[string]*Module),
	}
}

// LoadByName locates and loads a module once; repeated loads are no-ops.
func (l *Loader) LoadByName(name string) (*Module, error) {
	if m, ok := l.byName[name]; ok {
		return m, nil
	}
	path, err := l.locator.Locate(name)
	if err != nil {
		return nil, err
	}
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := l.register(m); err != nil {
		m.Close()
		return nil, err
	}
	l.loaded = append(l.loaded, m)
	l.byName[name] = m
	return m, nil
}

// register wires a loaded module into the unit. Mixed modules load their
// CMOD half first so CMOD symbols are present when CJMOD init callbacks run.
func (l *Loader) register(m *Module) error {
	switch m.Kind {
	case KindCMOD:
		return LoadCMOD(m, l.global, l.sink, l.log)
	case KindCJMOD:
		return LoadCJMOD(m, l.reg, l.exts, l.log)
	case KindMixed:
		for _, sub := range m.Subs {
			if sub.Kind == KindCMOD {
				if err := LoadCMOD(sub, l.global, l.sink, l.log); err != nil {
					return err
				}
			}
		}
		for _, sub := range m.Subs {
			if sub.Kind == KindCJMOD {
				if err := LoadCJMOD(sub, l.reg, l.exts, l.log); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Close releases all loaded modules in reverse load order and cleans up
// extensions.
func (l *Loader) Close() {
	l.exts.Cleanup()
	for i := len(l.loaded) - 1; i >= 0; i-- {
		l.loaded[i].Close()
	}
	l.loaded = nil
	l.byName = make(map[string]*Module)
}
