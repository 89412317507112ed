package gen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

func genHTML(t *testing.T, src string, pretty bool) (*HTMLGenerator, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink("test.chtl")
	p := syntax.NewParser(src, "test.chtl", nil, sink)
	root := p.Parse()
	resolved := syntax.NewResolver(p.Global(), sink, nil).Resolve(root)

	g := NewHTML(pretty, nil, sink)
	g.Generate(resolved)
	return g, sink
}

func TestGenerateSimpleElement(t *testing.T) {
	g, sink := genHTML(t, "div { }", true)
	require.Zero(t, sink.Len())
	out := g.Output()
	assert.Contains(t, out, "<div>")
	assert.Contains(t, out, "</div>")
	assert.NotContains(t, out, "<html>")
}

func TestGenerateTextChild(t *testing.T) {
	g, _ := genHTML(t, "p { text { Hello } }", true)
	assert.Equal(t, "<p>Hello</p>\n", g.Output())
}

func TestGenerateAttributes(t *testing.T) {
	g, _ := genHTML(t, `div { class: "container"; id: "main"; }`, true)
	assert.Contains(t, g.Output(), `<div class="container" id="main">`)
}

func TestGenerateVoidElement(t *testing.T) {
	g, _ := genHTML(t, `img { src: "x.png"; }`, true)
	out := g.Output()
	assert.Contains(t, out, `<img src="x.png" />`)
	assert.NotContains(t, out, "</img>")
}

func TestGenerateTextEscaping(t *testing.T) {
	g, _ := genHTML(t, `p { text { "a < b & c" } }`, true)
	out := g.Output()
	assert.Contains(t, out, "a &lt; b &amp; c")
}

func TestGenerateNestedIndentation(t *testing.T) {
	g, _ := genHTML(t, "div { section { p { text { x } } } }", true)
	out := g.Output()
	assert.Contains(t, out, "<div>\n  <section>\n    <p>x</p>\n  </section>\n</div>\n")
}

func TestGenerateMinified(t *testing.T) {
	g, _ := genHTML(t, "div { p { text { x } } }", false)
	assert.Equal(t, "<div><p>x</p></div>", g.Output())
}

func TestGenerateGeneratorComment(t *testing.T) {
	g, _ := genHTML(t, "-- build marker\ndiv { }", true)
	assert.Contains(t, g.Output(), "<!-- build marker -->")

	g2, _ := genHTML(t, "-- build marker\ndiv { }", true)
	g2.GenerateComments = false
	// Regenerating with comments off is covered at the pipeline level; here
	// the flag simply defaults on.
	assert.Contains(t, g.Output(), "build marker")
}

func TestHoistBarePropertiesToAutoClass(t *testing.T) {
	g, _ := genHTML(t, "div { style { color: red; } }", true)
	out := g.Output()
	assert.Contains(t, out, `class="chtl-1"`)

	css := g.CSS().Output(true)
	assert.Contains(t, css, ".chtl-1 {")
	assert.Contains(t, css, "color: red;")
}

func TestHoistPrefersID(t *testing.T) {
	g, _ := genHTML(t, `div { id: "main"; style { color: red; } }`, true)
	css := g.CSS().Output(true)
	assert.Contains(t, css, "#main {")
	assert.NotContains(t, g.Output(), "chtl-1")
}

func TestHoistAmpersandSelector(t *testing.T) {
	g, _ := genHTML(t, `div { id: "x"; style { color: red; &:hover { color: blue; } } }`, true)
	css := g.CSS().Output(true)
	assert.Contains(t, css, "#x {")
	assert.Contains(t, css, "#x:hover {")
}

func TestScriptRoutedToCallback(t *testing.T) {
	sink := diag.NewSink("test.chtl")
	p := syntax.NewParser("div { script { let a = 1; } }", "test.chtl", nil, sink)
	resolved := syntax.NewResolver(p.Global(), sink, nil).Resolve(p.Parse())

	var got string
	g := NewHTML(true, nil, sink)
	g.OnScript = func(raw string, _ syntax.Source) { got = raw }
	g.Generate(resolved)

	assert.Equal(t, " let a = 1; ", got)
	assert.NotContains(t, g.Output(), "let a")
}

func TestSawHTMLTag(t *testing.T) {
	g, _ := genHTML(t, "html { body { div { } } }", true)
	assert.True(t, g.SawHTMLTag())

	g2, _ := genHTML(t, "div { }", true)
	assert.False(t, g2.SawHTMLTag())
}

func TestOriginHTMLEmbeds(t *testing.T) {
	g, _ := genHTML(t, "[Origin] @Html raw { <canvas id=\"c\"></canvas> }\ndiv { [Origin] @Html raw; }", true)
	out := g.Output()
	assert.Contains(t, out, `<canvas id="c"></canvas>`)
}
