// Package chtl is the CHTL compiler: it turns a hierarchical, brace-structured
// markup source into HTML, CSS and JavaScript. The root package hosts the
// dispatching pipeline and the final document merger; the heavy lifting lives
// in the syntax, scanner, chtljs, gen and cjmod subpackages.
package chtl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dpotapov/chtl/chtljs"
	"github.com/dpotapov/chtl/cjmod"
	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/gen"
	"github.com/dpotapov/chtl/scanner"
	"github.com/dpotapov/chtl/syntax"
)

// Version is the compiler version advertised to modules.
const Version = "1.0.0"

// DefaultDeadline bounds a single compilation; it is checked between pipeline
// phases.
const DefaultDeadline = 30 * time.Second

// Options configure a Compiler. The zero value compiles minified output,
// picks SPA or full-page mode from the source (full page only when it has an
// html element or a "use html5;" directive), and looks for official modules
// next to the compiler executable.
type Options struct {
	// Pretty enables indented output; minified otherwise.
	Pretty bool

	// Fragment forces SPA output (no html/head/body shell) regardless of the
	// source's element structure.
	Fragment bool

	// Deadline bounds one compilation unit; zero means DefaultDeadline.
	Deadline time.Duration

	// OfficialModuleDir overrides the official module search directory. When
	// empty it resolves next to the compiler executable.
	OfficialModuleDir string

	// Logger receives structured diagnostics about pipeline progress. Nil
	// means no logging.
	Logger *zap.Logger

	// Debug appends pipeline phase and component to rendered diagnostics.
	Debug bool
}

// Result is the outcome of one compilation unit.
type Result struct {
	// Document is the merged output: a full HTML page, or in SPA mode the
	// style/fragment/script concatenation.
	Document string

	// HTML, CSS and JS are the unmerged per-language outputs.
	HTML string
	CSS  string
	JS   string

	// SPA reports whether the output was assembled without a page shell.
	SPA bool

	// Diagnostics holds every recorded problem in discovery order.
	Diagnostics []diag.Diagnostic
}

// Compiler compiles CHTL sources. A Compiler is safe for sequential reuse;
// each Compile call builds its own unit state (scanner keyword table
// snapshot, symbol map, module table), so distinct Compilers may run in
// parallel but a single unit's state is never shared.
type Compiler struct {
	opts Options
	log  *zap.Logger
}

// New returns a Compiler with the given options.
func New(opts Options) *Compiler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{opts: opts, log: log.Named("chtl")}
}

// CompileFile reads and compiles one source file.
func (c *Compiler) CompileFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c.Compile(ctx, string(data), path)
}

// CompileAll compiles multiple files as independent compilation units, each
// with its own symbol map, scanner table and module state.
func (c *Compiler) CompileAll(ctx context.Context, paths []string) (map[string]*Result, error) {
	results := make(map[string]*Result, len(paths))
	var g errgroup.Group
	out := make([]*Result, len(paths))
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			res, err := c.CompileFile(ctx, p)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, p := range paths {
		results[p] = out[i]
	}
	return results, nil
}

// importRe is the pre-scan pattern for [Import] statements. It is restricted
// to the well-known shapes; the parser re-verifies the same statements later.
var importRe = regexp.MustCompile(
	`\[Import\]\s*(@[A-Za-z]+)\s*(?:([A-Za-z_][A-Za-z0-9_]*)\s+)?from\s+("(?:[^"]*)"|[A-Za-z_][A-Za-z0-9_.]*)`)

// Compile runs the full pipeline on one source text.
func (c *Compiler) Compile(ctx context.Context, source, filename string) (*Result, error) {
	deadline := c.opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	unitID := uuid.NewString()
	log := c.log.With(zap.String("unit", unitID), zap.String("file", filename))
	log.Debug("compilation started")

	sink := diag.NewSink(filename)
	unit := &unitState{
		compiler: c,
		log:      log,
		sink:     sink,
		global:   syntax.NewGlobalMap(),
		registry: scanner.NewRegistry(),
		exts:     chtljs.NewExtensionSet(),
		source:   source,
		filename: filename,
	}
	official := c.opts.OfficialModuleDir
	if official == "" {
		official = cjmod.OfficialDirFromExecutable()
	}
	locator := cjmod.NewLocator(official, filepath.Dir(filename), log)
	unit.loader = cjmod.NewLoader(locator, unit.global, unit.registry, unit.exts, sink, log)
	defer unit.loader.Close()

	// Phase 1: pre-scan imports and load referenced modules.
	if err := unit.preScanImports(); err != nil {
		return unit.failed(err)
	}
	if err := checkDeadline(ctx, "import"); err != nil {
		return unit.timedOut(err)
	}

	// Phase 2: scanner pass.
	sc := scanner.New(unit.registry, log)
	frags := sc.Scan(source, filename, sink)
	scanner.ValidateIntegrity(frags, filename, sink)
	unit.fragments = frags
	if err := checkDeadline(ctx, "scan"); err != nil {
		return unit.timedOut(err)
	}

	// Phase 3: parse, resolve and generate.
	if err := unit.dispatch(ctx); err != nil {
		return unit.failed(err)
	}
	if err := checkDeadline(ctx, "dispatch"); err != nil {
		return unit.timedOut(err)
	}

	// Phase 4+5: SPA detection and merge.
	res := unit.merge()
	if err := checkDeadline(ctx, "merge"); err != nil {
		return unit.timedOut(err)
	}

	log.Debug("compilation finished",
		zap.Int("fragments", len(frags)),
		zap.Int("diagnostics", sink.Len()),
		zap.Bool("spa", res.SPA))
	return res, nil
}

// unitState is the explicit per-compilation context threaded through the
// pipeline; no scanner or symbol state is shared across units.
type unitState struct {
	compiler *Compiler
	log      *zap.Logger
	sink     *diag.Sink

	source   string
	filename string

	global   *syntax.GlobalMap
	registry *scanner.Registry
	exts     *chtljs.ExtensionSet
	loader   *cjmod.Loader

	fragments []*scanner.Fragment

	htmlOut  string
	cssOut   string
	jsOut    string
	pretty   bool
	sawHTML  bool
	useHTML5 bool
}

// preScanImports loads @Chtl and @CJmod modules named in [Import] statements
// so CJMOD keywords are registered before scanning begins.
func (u *unitState) preScanImports() error {
	for _, m := range importRe.FindAllStringSubmatch(u.source, -1) {
		marker, path := m[1], strings.Trim(m[3], `"`)
		if marker != "@Chtl" && marker != "@CJmod" {
			continue
		}
		if strings.HasSuffix(path, ".chtl") {
			continue // file imports expand during resolution
		}
		if _, err := u.loader.LoadByName(path); err != nil {
			if marker == "@CJmod" {
				// Non-fatal until a source token uses the failed module's
				// keywords; the extension set tracks the failure and the
				// dispatcher escalates on first use.
				u.exts.MarkFailed(path, err)
				u.log.Warn("cjmod load failed", zap.String("module", path), zap.Error(err))
				continue
			}
			u.sink.Report(diag.Diagnostic{
				Kind:      diag.Module,
				File:      u.filename,
				Line:      1,
				Column:    1,
				Message:   err.Error(),
				Phase:     "import",
				Component: "loader",
			})
			return fmt.Errorf("load module %s: %w", path, err)
		}
	}
	return nil
}

// dispatch runs parse, resolution and generation. It computes the optimal
// merge order of the scanned fragments but only logs it: the parser reads the
// whole source text, and script bodies reach the JS pipeline from the
// resolved AST rather than from the fragments.
func (u *unitState) dispatch(ctx context.Context) error {
	ordered := scanner.OptimalMergeOrder(u.fragments)
	u.log.Debug("dispatching fragments", zap.Int("count", len(ordered)))

	// The CHTL structural fragments parse as one source; the parser sees the
	// full text so raw captures (origins, scripts) stay byte-accurate.
	p := syntax.NewParser(u.source, u.filename, u.global, u.sink)
	root := p.Parse()

	cfg := syntax.DefaultConfig()
	for _, n := range root.Children {
		switch {
		case n.Kind == syntax.KindUse && n.Value == "html5":
			u.useHTML5 = true
		case n.Kind == syntax.KindConfiguration:
			cfg = syntax.EvalConfiguration(n, u.sink)
		}
	}
	pretty := u.compiler.opts.Pretty && !cfg.Bool("OUTPUT_MINIFIED")

	importer := &fileImporter{unit: u}
	resolver := syntax.NewResolver(u.global, u.sink, importer)
	resolved := resolver.Resolve(root)

	css := &gen.CSSCollector{}
	jsGen := gen.NewJS(u.exts, pretty, u.sink)
	htmlGen := gen.NewHTML(pretty, css, u.sink)
	htmlGen.GenerateComments = cfg.Bool("GENERATE_COMMENTS")
	htmlGen.OnScript = func(raw string, src syntax.Source) {
		u.routeScript(jsGen, raw, src)
	}

	htmlGen.Generate(resolved)

	u.pretty = pretty
	u.htmlOut = htmlGen.Output()
	u.cssOut = css.Output(pretty)
	u.jsOut = jsGen.Output()
	u.sawHTML = htmlGen.SawHTMLTag()

	if u.sink.HasFatal() {
		return fmt.Errorf("compilation failed:\n%s", u.sink.Format(u.compiler.opts.Debug))
	}
	return nil
}

// routeScript sends one script body to the right sub-compiler: plain JS
// passes through, CHTL-JS parses into constructs, CJMOD keywords carve
// foreign spans handled by their owning extensions.
func (u *unitState) routeScript(jsGen *gen.JSGenerator, raw string, src syntax.Source) {
	moduleKws := u.registry.ModuleKeywords()
	kind := scanner.ClassifyScript(raw)
	if kind == scanner.KindJS && !containsAnyKeyword(raw, moduleKws) {
		jsGen.AddRaw(raw)
		return
	}
	p := chtljs.NewParser(raw, src.File, src.Span, moduleKws, u.sink)
	script := p.Parse()
	u.attachForeignOwners(script)
	jsGen.AddScript(script)
}

// attachForeignOwners fills Owner on foreign nodes and runs the owning
// extension's parse callback. A span owned by a failed extension aborts the
// compile with a module error.
func (u *unitState) attachForeignOwners(script *chtljs.Node) {
	for _, n := range script.Children {
		if n.Kind != chtljs.KindForeign {
			continue
		}
		owner, _ := u.registry.Owner(n.Keyword)
		n.Owner = owner
		if err, failed := u.exts.Failed(owner); failed {
			u.sink.Report(diag.Diagnostic{
				Kind:      diag.Module,
				File:      n.Source.File,
				Line:      n.Source.Span.Line,
				Column:    n.Source.Span.Column,
				Message:   fmt.Sprintf("keyword %q belongs to failed module %s: %v", n.Keyword, owner, err),
				Phase:     "dispatch",
				Component: "loader",
			})
			continue
		}
		ext, ok := u.exts.ForKeyword(n.Keyword)
		if !ok {
			continue
		}
		ctx := &chtljs.ExtContext{
			File:   n.Source.File,
			Line:   n.Source.Span.Line,
			Column: n.Source.Span.Column,
			Region: "script_block",
		}
		if !ext.MatchesSyntax(n.Payload, ctx) {
			continue
		}
		parsed, err := ext.ParseSyntax(n.Payload, ctx)
		if err != nil {
			u.sink.Report(diag.Diagnostic{
				Kind:      diag.Generation,
				File:      n.Source.File,
				Line:      n.Source.Span.Line,
				Column:    n.Source.Span.Column,
				Message:   fmt.Sprintf("extension %s: %v", ext.Name(), err),
				Phase:     "dispatch",
				Component: "cjmod",
			})
			continue
		}
		if parsed != nil {
			n.Payload = parsed.Payload
		}
	}
}

func containsAnyKeyword(src string, kws []string) bool {
	for _, kw := range kws {
		if strings.Contains(src, kw) {
			return true
		}
	}
	return false
}

func (u *unitState) failed(err error) (*Result, error) {
	return &Result{Diagnostics: u.sink.All()}, err
}

func (u *unitState) timedOut(err error) (*Result, error) {
	u.sink.Report(diag.Diagnostic{
		Kind:    diag.Timeout,
		File:    u.filename,
		Line:    1,
		Column:  1,
		Message: err.Error(),
	})
	return &Result{Diagnostics: u.sink.All()}, err
}

// checkDeadline enforces the phase budget; exceeding it returns a timeout
// error with the phase name attached.
func checkDeadline(ctx context.Context, phase string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("compilation timed out in %s phase: %w", phase, ctx.Err())
	default:
		return nil
	}
}
