package gen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dpotapov/chtl/chtljs"
	"github.com/dpotapov/chtl/diag"
)

// JSGenerator emits JavaScript from CHTL-JS ASTs. Virtual-object functions
// collect into a prelude that precedes all script bodies; delegate blocks
// targeting the same parent and event coalesce into one listener.
type JSGenerator struct {
	exts   *chtljs.ExtensionSet
	pretty bool
	sink   *diag.Sink

	// vir name -> method -> generated top-level function name.
	virs     map[string]map[string]string
	virOrder []string
	virBody  map[string]string // function name -> body (raw handler JS)

	delegates     map[string]*delegateGroup
	delegateOrder []string

	bodies []string
}

type delegateGroup struct {
	parentExpr string
	event      string
	branches   []delegateBranch
}

type delegateBranch struct {
	selector string
	handler  string
}

// NewJS returns a generator. exts may be nil when no modules are loaded.
func NewJS(exts *chtljs.ExtensionSet, pretty bool, sink *diag.Sink) *JSGenerator {
	if exts == nil {
		exts = chtljs.NewExtensionSet()
	}
	if sink == nil {
		sink = diag.NewSink("")
	}
	return &JSGenerator{
		exts:      exts,
		pretty:    pretty,
		sink:      sink,
		virs:      make(map[string]map[string]string),
		virBody:   make(map[string]string),
		delegates: make(map[string]*delegateGroup),
	}
}

// AddRaw appends plain JavaScript (origin embeds, pure JS fragments) as one
// script body.
func (g *JSGenerator) AddRaw(js string) {
	if strings.TrimSpace(js) == "" {
		return
	}
	g.bodies = append(g.bodies, strings.TrimSpace(js))
}

// AddScript lowers one parsed CHTL-JS script into a body.
func (g *JSGenerator) AddScript(root *chtljs.Node) {
	w := NewWriter(g.pretty)
	for _, n := range root.Children {
		g.emit(w, n)
	}
	body := strings.TrimSpace(w.String())
	if body != "" {
		g.bodies = append(g.bodies, body)
	}
}

// VirFunctionCount returns the number of generated top-level functions.
func (g *JSGenerator) VirFunctionCount() int { return len(g.virBody) }

// Output assembles the final script: vir-generated functions first, then the
// coalesced delegate listeners, then the script bodies in order.
func (g *JSGenerator) Output() string {
	w := NewWriter(g.pretty)
	for _, fn := range g.virOrder {
		g.writeVirFunc(w, fn)
	}
	for _, key := range g.delegateOrder {
		g.writeDelegate(w, g.delegates[key])
	}
	for _, b := range g.bodies {
		if g.pretty {
			w.Line(b)
		} else {
			w.WriteString(b)
			if !strings.HasSuffix(b, ";") && !strings.HasSuffix(b, "}") {
				w.WriteString(";")
			}
		}
	}
	return strings.TrimRight(w.String(), "\n")
}

func (g *JSGenerator) emit(w *CodeWriter, n *chtljs.Node) {
	switch n.Kind {
	case chtljs.KindRaw:
		w.WriteString(n.Text)
	case chtljs.KindSelector:
		w.WriteString(g.selectorExpr(n))
	case chtljs.KindArrowAccess:
		w.WriteString(g.arrowExpr(n))
	case chtljs.KindListen:
		g.emitListen(w, n)
	case chtljs.KindDelegate:
		g.collectDelegate(n)
	case chtljs.KindAnimate:
		g.emitAnimate(w, n)
	case chtljs.KindVirDecl:
		g.collectVir(n)
	case chtljs.KindVirCall:
		g.emitVirCall(w, n)
	case chtljs.KindForeign:
		g.emitForeign(w, n)
	}
}

// selectorExpr lowers an enhanced selector to a DOM lookup. Mixed selectors
// emit a disambiguating shim with id priority.
func (g *JSGenerator) selectorExpr(n *chtljs.Node) string {
	switch n.Selector {
	case chtljs.SelTag:
		return fmt.Sprintf("document.querySelector(%q)", n.Text)
	case chtljs.SelClass:
		return fmt.Sprintf("document.querySelector(%q)", n.Text)
	case chtljs.SelID:
		return fmt.Sprintf("document.getElementById(%q)", strings.TrimPrefix(n.Text, "#"))
	case chtljs.SelIndexed:
		base := n.Text[:strings.IndexByte(n.Text, '[')]
		return fmt.Sprintf("document.querySelectorAll(%q)[%d]", base, n.Index)
	case chtljs.SelComplex:
		return fmt.Sprintf("document.querySelector(%q)", n.Text)
	default: // SelMixed: try id, then class, then tag
		return fmt.Sprintf("(document.getElementById(%[1]q) || document.querySelector(%[2]q) || document.querySelector(%[1]q))",
			n.Text, "."+n.Text)
	}
}

func (g *JSGenerator) arrowExpr(n *chtljs.Node) string {
	var b strings.Builder
	b.WriteString(g.targetExpr(n.Target))
	for _, call := range n.Calls {
		b.WriteByte('.')
		b.WriteString(call.Method)
		b.WriteByte('(')
		b.WriteString(call.Args)
		b.WriteByte(')')
	}
	return b.String()
}

func (g *JSGenerator) targetExpr(t *chtljs.Node) string {
	if t == nil {
		return "document"
	}
	switch t.Kind {
	case chtljs.KindSelector:
		return g.selectorExpr(t)
	case chtljs.KindRaw:
		return t.Text
	case chtljs.KindVirCall:
		w := NewWriter(false)
		g.emitVirCall(w, t)
		return w.String()
	default:
		return t.Text
	}
}

// emitListen expands listen({event: handler, ...}) into one addEventListener
// per binding.
func (g *JSGenerator) emitListen(w *CodeWriter, n *chtljs.Node) {
	target := g.targetExpr(n.Target)
	for _, b := range n.Bindings {
		line := fmt.Sprintf("%s.addEventListener(%q, %s);", target, b.Key, b.Value)
		w.Line(line)
	}
}

// collectDelegate merges the block into the per-(parent, event) groups; the
// listeners themselves emit once in Output.
func (g *JSGenerator) collectDelegate(n *chtljs.Node) {
	parent := g.targetExpr(n.Target)
	for _, b := range n.Bindings {
		key := parent + "\x00" + b.Key
		grp, ok := g.delegates[key]
		if !ok {
			grp = &delegateGroup{parentExpr: parent, event: b.Key}
			g.delegates[key] = grp
			g.delegateOrder = append(g.delegateOrder, key)
		}
		for _, sel := range n.Targets {
			grp.branches = append(grp.branches, delegateBranch{selector: sel, handler: b.Value})
		}
	}
}

func (g *JSGenerator) writeDelegate(w *CodeWriter, grp *delegateGroup) {
	w.Line(fmt.Sprintf("%s.addEventListener(%q, function(event) {", grp.parentExpr, grp.event))
	w.Indent()
	for _, br := range grp.branches {
		w.Line(fmt.Sprintf("if (event.target.matches(%q)) { (%s)(event); }", br.selector, br.handler))
	}
	w.Dedent()
	w.Line("});")
}

// emitAnimate lowers animate({...}) into a requestAnimationFrame loop over
// the configured keyframes and easing.
func (g *JSGenerator) emitAnimate(w *CodeWriter, n *chtljs.Node) {
	cfg := map[string]string{}
	for _, b := range n.Bindings {
		cfg[b.Key] = b.Value
	}
	duration := cfg["duration"]
	if duration == "" {
		duration = "1000"
	}
	target := g.targetExpr(n.Target)
	easing := easingExpr(cfg["easing"])

	w.Line("(function() {")
	w.Indent()
	w.Line(fmt.Sprintf("var el = %s;", target))
	w.Line(fmt.Sprintf("var duration = %s;", duration))
	if begin, ok := cfg["begin"]; ok {
		w.Line(fmt.Sprintf("Object.assign(el.style, %s);", begin))
	}
	w.Line("var start = null;")
	w.Line("function step(ts) {")
	w.Indent()
	w.Line("if (start === null) start = ts;")
	w.Line("var t = Math.min((ts - start) / duration, 1);")
	w.Line(fmt.Sprintf("var p = %s;", easing))
	if when, ok := cfg["when"]; ok {
		w.Line(fmt.Sprintf("var frames = %s;", when))
		w.Line("for (var i = 0; i < frames.length; i++) {")
		w.Indent()
		w.Line("if (p >= (frames[i].at || 0)) { Object.assign(el.style, frames[i]); }")
		w.Dedent()
		w.Line("}")
	}
	w.Line("if (t < 1) {")
	w.Indent()
	w.Line("requestAnimationFrame(step);")
	w.Dedent()
	if end, ok := cfg["end"]; ok {
		w.Line("} else {")
		w.Indent()
		w.Line(fmt.Sprintf("Object.assign(el.style, %s);", end))
		g.animateTail(w, cfg)
		w.Dedent()
		w.Line("}")
	} else {
		w.Line("}")
	}
	w.Dedent()
	w.Line("}")
	w.Line("requestAnimationFrame(step);")
	w.Dedent()
	w.Line("})();")
}

func (g *JSGenerator) animateTail(w *CodeWriter, cfg map[string]string) {
	if cb, ok := cfg["callback"]; ok {
		w.Line(fmt.Sprintf("(%s)();", cb))
	}
}

// easingExpr maps named easings onto expressions over normalized time t.
func easingExpr(name string) string {
	switch strings.Trim(name, "\"'") {
	case "", "linear":
		return "t"
	case "ease-in":
		return "t * t"
	case "ease-out":
		return "t * (2 - t)"
	case "ease-in-out":
		return "t < 0.5 ? 2 * t * t : -1 + (4 - 2 * t) * t"
	default:
		return "t"
	}
}

// collectVir registers a virtual object: every method key maps to a uniquely
// named top-level function emitted before all script bodies.
func (g *JSGenerator) collectVir(n *chtljs.Node) {
	name := n.Text
	if _, exists := g.virs[name]; exists {
		g.sink.Report(diag.Diagnostic{
			Kind:      diag.Generation,
			File:      n.Source.File,
			Line:      n.Source.Span.Line,
			Column:    n.Source.Span.Column,
			Message:   fmt.Sprintf("virtual object %q declared twice", name),
			Component: "jsgen",
		})
		return
	}
	methods := make(map[string]string)
	g.virs[name] = methods
	if len(n.Children) == 0 {
		return
	}
	src := n.Children[0]
	for _, b := range src.Bindings {
		fn := fmt.Sprintf("__chtl_vir_%s_%s", name, b.Key)
		if _, dup := g.virBody[fn]; dup {
			continue
		}
		methods[b.Key] = fn
		g.virBody[fn] = b.Value
		g.virOrder = append(g.virOrder, fn)
	}
}

func (g *JSGenerator) writeVirFunc(w *CodeWriter, fn string) {
	body := g.virBody[fn]
	w.Line(fmt.Sprintf("function %s() {", fn))
	w.Indent()
	w.Line(fmt.Sprintf("return (%s).apply(null, arguments);", body))
	w.Dedent()
	w.Line("}")
}

// emitVirCall resolves name->method() through the registry to a direct
// function call.
func (g *JSGenerator) emitVirCall(w *CodeWriter, n *chtljs.Node) {
	methods, ok := g.virs[n.Text]
	if !ok {
		g.sink.Report(diag.Diagnostic{
			Kind:      diag.Generation,
			File:      n.Source.File,
			Line:      n.Source.Span.Line,
			Column:    n.Source.Span.Column,
			Message:   fmt.Sprintf("unknown virtual object %q", n.Text),
			Component: "jsgen",
		})
		return
	}
	fn, ok := methods[n.Method]
	if !ok {
		g.sink.Report(diag.Diagnostic{
			Kind:      diag.Generation,
			File:      n.Source.File,
			Line:      n.Source.Span.Line,
			Column:    n.Source.Span.Column,
			Message:   fmt.Sprintf("virtual object %q has no method %q", n.Text, n.Method),
			Component: "jsgen",
		})
		return
	}
	w.WriteString(fmt.Sprintf("%s(%s);", fn, n.Args))
}

// emitForeign hands a foreign node to its owning extension.
func (g *JSGenerator) emitForeign(w *CodeWriter, n *chtljs.Node) {
	ext, ok := g.exts.ForKeyword(n.Keyword)
	if !ok {
		if err, failed := g.exts.Failed(n.Owner); failed {
			g.reportForeign(n, fmt.Sprintf("extension for keyword %q failed to load: %v", n.Keyword, err))
		} else {
			g.reportForeign(n, fmt.Sprintf("no extension owns keyword %q", n.Keyword))
		}
		return
	}
	ctx := &chtljs.ExtContext{
		File:   n.Source.File,
		Line:   n.Source.Span.Line,
		Column: n.Source.Span.Column,
		Region: "script_block",
	}
	js, err := ext.GenerateJavaScript(n, ctx)
	if err != nil {
		g.reportForeign(n, fmt.Sprintf("extension %s rejected node: %v", ext.Name(), err))
		return
	}
	w.WriteString(js)
}

func (g *JSGenerator) reportForeign(n *chtljs.Node, msg string) {
	g.sink.Report(diag.Diagnostic{
		Kind:      diag.Generation,
		File:      n.Source.File,
		Line:      n.Source.Span.Line,
		Column:    n.Source.Span.Column,
		Message:   msg,
		Component: "jsgen",
	})
}

// VirFunctions lists the generated function names sorted, mostly for tests.
func (g *JSGenerator) VirFunctions() []string {
	out := append([]string(nil), g.virOrder...)
	sort.Strings(out)
	return out
}
