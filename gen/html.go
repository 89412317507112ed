package gen

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

// voidTags are the self-closing HTML tags.
var voidTags = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Param: true, atom.Source: true,
	atom.Track: true, atom.Wbr: true,
}

// inlineTags affect whitespace placement in pretty mode.
var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Bdi: true, atom.Bdo: true,
	atom.Br: true, atom.Cite: true, atom.Code: true, atom.Data: true,
	atom.Dfn: true, atom.Em: true, atom.I: true, atom.Kbd: true, atom.Mark: true,
	atom.Q: true, atom.S: true, atom.Samp: true, atom.Small: true,
	atom.Span: true, atom.Strong: true, atom.Sub: true, atom.Sup: true,
	atom.Time: true, atom.U: true, atom.Var: true, atom.Wbr: true,
	atom.Img: true, atom.Input: true, atom.Button: true, atom.Label: true,
	atom.Select: true, atom.Textarea: true,
}

// HTMLGenerator walks the resolved AST and emits HTML. Element style blocks
// hoist into the CSS collector; script blocks hand their raw content to the
// OnScript callback (the dispatcher routes them to the JS pipeline).
type HTMLGenerator struct {
	w    *CodeWriter
	css  *CSSCollector
	sink *diag.Sink

	// OnScript receives raw script content found inside elements.
	OnScript func(raw string, src syntax.Source)

	// GenerateComments controls whether generator comments ("--") become
	// HTML comments in the output.
	GenerateComments bool

	autoClassN int

	// seenHTMLTag is set when an <html> element is generated; the merger uses
	// it for SPA detection.
	seenHTMLTag bool
}

// NewHTML returns a generator writing into a fresh writer.
func NewHTML(pretty bool, css *CSSCollector, sink *diag.Sink) *HTMLGenerator {
	if css == nil {
		css = &CSSCollector{}
	}
	if sink == nil {
		sink = diag.NewSink("")
	}
	return &HTMLGenerator{
		w:                NewWriter(pretty),
		css:              css,
		sink:             sink,
		GenerateComments: true,
	}
}

// CSS exposes the collector the generator hoists into.
func (g *HTMLGenerator) CSS() *CSSCollector { return g.css }

// SawHTMLTag reports whether an <html> element was generated.
func (g *HTMLGenerator) SawHTMLTag() bool { return g.seenHTMLTag }

// Output returns the generated HTML.
func (g *HTMLGenerator) Output() string { return g.w.String() }

// Generate emits all element-bearing nodes under root.
func (g *HTMLGenerator) Generate(root *syntax.Node) {
	for _, n := range root.Children {
		g.node(n)
	}
}

func (g *HTMLGenerator) node(n *syntax.Node) {
	switch n.Kind {
	case syntax.KindElement:
		g.element(n)
	case syntax.KindText:
		g.w.WriteString(html.EscapeString(n.Value))
	case syntax.KindComment:
		if n.CommentKind == syntax.CommentGenerator && g.GenerateComments {
			g.w.Line("<!-- " + n.Value + " -->")
		}
	case syntax.KindOrigin:
		g.origin(n)
	case syntax.KindStyleBlock:
		// Global style block reached through the AST path: aggregate as-is.
		g.css.AddStyleNode(n, "")
	case syntax.KindScriptBlock:
		if g.OnScript != nil {
			g.OnScript(n.Value, n.Source)
		}
	case syntax.KindNamespace:
		for _, c := range n.Children {
			g.node(c)
		}
	case syntax.KindTemplate, syntax.KindCustom, syntax.KindConfiguration,
		syntax.KindImport, syntax.KindUse, syntax.KindConstraint:
		// Declarations produce no output.
	case syntax.KindTemplateRef, syntax.KindCustomRef:
		g.sink.Report(diag.Diagnostic{
			Kind:      diag.Generation,
			File:      n.Source.File,
			Line:      n.Source.Span.Line,
			Column:    n.Source.Span.Column,
			Message:   fmt.Sprintf("unresolved reference %s %s reached the generator", n.Tag, n.Name),
			Component: "htmlgen",
		})
	}
}

func (g *HTMLGenerator) element(n *syntax.Node) {
	tag := strings.ToLower(n.Name)
	a := atom.Lookup([]byte(tag))
	if a == atom.Html {
		g.seenHTMLTag = true
	}
	void := voidTags[a]
	inline := inlineTags[a]

	g.hoistStyles(n)

	var open strings.Builder
	open.WriteByte('<')
	open.WriteString(tag)
	for _, attr := range n.Attrs {
		fmt.Fprintf(&open, " %s=%q", attr.Name, attr.Value)
	}

	if void && !hasRenderableChildren(n) {
		open.WriteString(" />")
		g.w.Line(open.String())
		return
	}
	open.WriteByte('>')

	blockChildren := hasBlockChildren(n)
	if inline && !blockChildren {
		// Inline elements render on one line.
		g.w.WriteString(open.String())
		for _, c := range n.Children {
			g.inlineChild(c)
		}
		g.w.WriteString("</" + tag + ">")
		if g.w.Pretty() {
			g.w.WriteString("\n")
		}
		return
	}

	if onlyTextChildren(n) {
		g.w.WriteString(open.String())
		for _, c := range n.Children {
			g.inlineChild(c)
		}
		g.w.Line("</" + tag + ">")
		return
	}

	g.w.Line(open.String())
	g.w.Indent()
	for _, c := range n.Children {
		if c.Kind == syntax.KindStyleBlock {
			continue // already hoisted
		}
		g.node(c)
	}
	g.w.Dedent()
	g.w.Line("</" + tag + ">")
}

// inlineChild renders a child without line breaks (text runs, inline nested
// elements, scripts and styles still route to their collectors).
func (g *HTMLGenerator) inlineChild(n *syntax.Node) {
	switch n.Kind {
	case syntax.KindText:
		g.w.WriteString(html.EscapeString(n.Value))
	case syntax.KindElement:
		g.element(n)
	case syntax.KindScriptBlock:
		if g.OnScript != nil {
			g.OnScript(n.Value, n.Source)
		}
	case syntax.KindStyleBlock:
		// Already hoisted by the enclosing element.
	case syntax.KindComment:
		g.node(n)
	case syntax.KindOrigin:
		g.origin(n)
	}
}

// hoistStyles lifts the element's style blocks into the global CSS stream.
// Blocks with bare properties (or ampersand selectors) wrap in a selector
// derived from the element's id, or an auto-generated class appended to the
// element; selector-only blocks hoist verbatim.
func (g *HTMLGenerator) hoistStyles(n *syntax.Node) {
	for _, c := range n.Children {
		if c.Kind != syntax.KindStyleBlock {
			continue
		}
		base := ""
		if styleNeedsBase(c) {
			base = g.deriveSelector(n, c)
		}
		g.css.AddStyleNode(c, base)
	}
}

// styleNeedsBase reports whether the block carries bare properties or
// ampersand selectors, both of which attach to the owning element.
func styleNeedsBase(sb *syntax.Node) bool {
	for _, c := range sb.Children {
		if c.Kind == syntax.KindProperty {
			return true
		}
		if c.Kind == syntax.KindSelector && c.Selector == syntax.SelAmpersand {
			return true
		}
	}
	return false
}

func (g *HTMLGenerator) deriveSelector(el, sb *syntax.Node) string {
	if id := el.Attr("id"); id != nil {
		return "#" + id.Value
	}
	// Auto-generated class.
	g.autoClassN++
	name := fmt.Sprintf("chtl-%d", g.autoClassN)
	if cls := el.Attr("class"); cls != nil {
		cls.Value += " " + name
	} else {
		attr := syntax.NewNode(syntax.KindAttribute, el.Source)
		attr.Name = "class"
		attr.Value = name
		el.AddAttr(attr)
	}
	return "." + name
}

func (g *HTMLGenerator) origin(n *syntax.Node) {
	switch n.Tag {
	case syntax.TagHtml, syntax.TagCustomOrigin:
		raw := strings.TrimSpace(n.Value)
		if raw != "" {
			g.w.Line(raw)
		}
	case syntax.TagStyle:
		g.css.AddRaw(n.Value, n.Source.Span.Offset)
	case syntax.TagJavaScript:
		if g.OnScript != nil {
			g.OnScript(n.Value, n.Source)
		}
	}
}

func hasRenderableChildren(n *syntax.Node) bool {
	for _, c := range n.Children {
		switch c.Kind {
		case syntax.KindElement, syntax.KindText, syntax.KindOrigin:
			return true
		}
	}
	return false
}

func hasBlockChildren(n *syntax.Node) bool {
	for _, c := range n.Children {
		if c.Kind == syntax.KindElement {
			if !inlineTags[atom.Lookup([]byte(strings.ToLower(c.Name)))] {
				return true
			}
		}
	}
	return false
}

func onlyTextChildren(n *syntax.Node) bool {
	sawText := false
	for _, c := range n.Children {
		switch c.Kind {
		case syntax.KindText:
			sawText = true
		case syntax.KindStyleBlock, syntax.KindScriptBlock, syntax.KindComment:
			// These do not render inline content.
		default:
			return false
		}
	}
	return sawText
}
