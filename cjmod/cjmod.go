package cjmod

import (
	"fmt"
	"os"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/dpotapov/chtl/chtljs"
	"github.com/dpotapov/chtl/scanner"
	"github.com/dpotapov/chtl/syntax"
)

// LoadCJMOD loads a CJMOD extension module: its Go sources are evaluated in a
// yaegi interpreter (the portable stand-in for compiling and dlopen-ing a
// shared library), the entry-point factory is resolved, the ABI version is
// checked, the extension is initialized and its keywords register with the
// unified scanner.
//
// A failing module is recorded in the extension set rather than aborting; the
// dispatcher turns the failure fatal only when a source span matches one of
// the module's keywords.
func LoadCJMOD(m *Module, reg *scanner.Registry, exts *chtljs.ExtensionSet, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("cjmod")

	ext, err := instantiate(m)
	if err != nil {
		exts.MarkFailed(m.Name, err)
		return fmt.Errorf("module %s: %w", m.Name, err)
	}
	if err := ext.Initialize(); err != nil {
		exts.MarkFailed(m.Name, err)
		return fmt.Errorf("module %s: initialize: %w", m.Name, err)
	}
	if err := exts.Add(ext); err != nil {
		ext.Cleanup()
		exts.MarkFailed(m.Name, err)
		return fmt.Errorf("module %s: %w", m.Name, err)
	}
	for _, kw := range ext.Keywords() {
		if err := reg.Register(kw, m.Name); err != nil {
			exts.MarkFailed(m.Name, err)
			return fmt.Errorf("module %s: %w", m.Name, err)
		}
	}
	log.Info("extension loaded",
		zap.String("module", m.Name),
		zap.String("extension", ext.Name()),
		zap.Strings("keywords", ext.Keywords()))

	for _, sub := range m.Subs {
		if sub.Kind == KindCJMOD {
			if err := LoadCJMOD(sub, reg, exts, log); err != nil {
				return err
			}
		}
	}
	return nil
}

// instantiate evaluates the module sources and builds the Extension adapter.
func instantiate(m *Module) (chtljs.Extension, error) {
	files, err := m.SourceFiles(".go")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no Go sources in src/")
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("interpreter: %w", err)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if _, err := i.Eval(string(data)); err != nil {
			return nil, fmt.Errorf("build %s: %w", f, err)
		}
	}

	pkg := sourcePackage(files[0])

	// ABI check mirrors the native extension_abi_version symbol.
	abiVal, err := i.Eval(pkg + ".ExtensionABIVersion")
	if err != nil {
		return nil, fmt.Errorf("missing ExtensionABIVersion symbol: %w", err)
	}
	abiFn, ok := abiVal.Interface().(func() string)
	if !ok {
		return nil, fmt.Errorf("ExtensionABIVersion has wrong signature")
	}
	if abi := abiFn(); abi != chtljs.ABIVersion {
		return nil, fmt.Errorf("ABI version mismatch: module %s, compiler %s", abi, chtljs.ABIVersion)
	}

	entry := "CreateExtension"
	if m.Meta != nil && m.Meta.Info.EntryPoint != "" {
		entry = m.Meta.Info.EntryPoint
	}
	factoryVal, err := i.Eval(pkg + "." + entry)
	if err != nil {
		return nil, fmt.Errorf("missing entry point %s: %w", entry, err)
	}
	factory, ok := factoryVal.Interface().(func() map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("entry point %s has wrong signature", entry)
	}

	callbacks := factory()
	ext := &interpExtension{module: m.Name, callbacks: callbacks}
	if err := ext.check(); err != nil {
		return nil, err
	}
	return ext, nil
}

// sourcePackage reads the package clause of an interpreted source file.
func sourcePackage(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "main"
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "package ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "package "))
		}
	}
	return "main"
}

// interpExtension adapts the interpreted callback map to the Extension
// interface. Callbacks cross the interpreter boundary with stdlib-only
// signatures, the same way the original crosses its C ABI with plain types.
type interpExtension struct {
	module    string
	callbacks map[string]interface{}

	name     func() string
	version  func() string
	keywords func() []string
	matches  func(string, string) bool
	parse    func(string) (string, error)
	generate func(string) (string, error)
	initFn   func() error
	cleanup  func()
}

func (e *interpExtension) check() error {
	var ok bool
	if e.name, ok = e.callbacks["name"].(func() string); !ok {
		return fmt.Errorf("extension callback %q missing or mistyped", "name")
	}
	if e.version, ok = e.callbacks["version"].(func() string); !ok {
		return fmt.Errorf("extension callback %q missing or mistyped", "version")
	}
	if e.keywords, ok = e.callbacks["keywords"].(func() []string); !ok {
		return fmt.Errorf("extension callback %q missing or mistyped", "keywords")
	}
	// Optional callbacks degrade to permissive defaults.
	e.matches, _ = e.callbacks["matches"].(func(string, string) bool)
	if e.parse, ok = e.callbacks["parse"].(func(string) (string, error)); !ok {
		return fmt.Errorf("extension callback %q missing or mistyped", "parse")
	}
	if e.generate, ok = e.callbacks["generate"].(func(string) (string, error)); !ok {
		return fmt.Errorf("extension callback %q missing or mistyped", "generate")
	}
	e.initFn, _ = e.callbacks["init"].(func() error)
	e.cleanup, _ = e.callbacks["cleanup"].(func())
	return nil
}

func (e *interpExtension) Name() string       { return e.name() }
func (e *interpExtension) Version() string    { return e.version() }
func (e *interpExtension) Keywords() []string { return e.keywords() }

func (e *interpExtension) MatchesSyntax(pattern string, ctx *chtljs.ExtContext) bool {
	if e.matches == nil {
		return true
	}
	return e.matches(pattern, ctx.Region)
}

func (e *interpExtension) ParseSyntax(input string, ctx *chtljs.ExtContext) (*chtljs.Node, error) {
	payload, err := e.parse(input)
	if err != nil {
		return nil, err
	}
	n := chtljs.NewNode(chtljs.KindForeign, sourceFromCtx(ctx))
	n.Owner = e.module
	n.Payload = payload
	return n, nil
}

func (e *interpExtension) GenerateJavaScript(n *chtljs.Node, ctx *chtljs.ExtContext) (string, error) {
	payload := n.Payload
	if payload == "" {
		return "", chtljs.ErrForeignRejected
	}
	return e.generate(payload)
}

func (e *interpExtension) Initialize() error {
	if e.initFn == nil {
		return nil
	}
	return e.initFn()
}

func (e *interpExtension) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

func sourceFromCtx(ctx *chtljs.ExtContext) syntax.Source {
	return syntax.Source{
		File: ctx.File,
		Span: syntax.Span{Line: ctx.Line, Column: ctx.Column},
	}
}
