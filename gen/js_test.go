package gen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/chtljs"
	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

func jsFromScript(t *testing.T, src string, kws []string, exts *chtljs.ExtensionSet) (*JSGenerator, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink("test.chtl")
	p := chtljs.NewParser(src, "test.chtl", syntax.Span{Line: 1, Column: 1}, kws, sink)
	g := NewJS(exts, true, sink)
	g.AddScript(p.Parse())
	return g, sink
}

func TestEnhancedSelectorLowering(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"{{button}}->listen({click: f})", `document.querySelector("button").addEventListener("click", f);`},
		{"{{.box}}->listen({click: f})", `document.querySelector(".box").addEventListener("click", f);`},
		{"{{#main}}->listen({click: f})", `document.getElementById("main").addEventListener("click", f);`},
		{"{{li[2]}}->listen({click: f})", `document.querySelectorAll("li")[2].addEventListener("click", f);`},
	}
	for _, tt := range tests {
		g, sink := jsFromScript(t, tt.src, nil, nil)
		require.Zero(t, sink.Len(), tt.src)
		assert.Contains(t, g.Output(), tt.want, tt.src)
	}
}

func TestMixedSelectorShim(t *testing.T) {
	g, _ := jsFromScript(t, "{{box}}->listen({click: f})", nil, nil)
	out := g.Output()
	// Id wins, then class, then tag.
	assert.Contains(t, out, `document.getElementById("box")`)
	assert.Contains(t, out, `document.querySelector(".box")`)
	assert.Contains(t, out, `document.querySelector("box")`)
	idIdx := strings.Index(out, "getElementById")
	classIdx := strings.Index(out, `querySelector(".box")`)
	assert.Less(t, idIdx, classIdx)
}

func TestListenMultipleBindings(t *testing.T) {
	g, _ := jsFromScript(t, "{{button}}->listen({click: a, mouseover: b})", nil, nil)
	out := g.Output()
	assert.Contains(t, out, `addEventListener("click", a);`)
	assert.Contains(t, out, `addEventListener("mouseover", b);`)
}

func TestArrowBecomesDot(t *testing.T) {
	g, _ := jsFromScript(t, `el->focus()`, nil, nil)
	assert.Contains(t, g.Output(), "el.focus()")
}

func TestDelegateCoalescing(t *testing.T) {
	src := `{{#list}}->delegate({target: {{.a}}, click: fa});
{{#list}}->delegate({target: {{.b}}, click: fb});`
	g, sink := jsFromScript(t, src, nil, nil)
	require.Zero(t, sink.Len())
	out := g.Output()

	// One listener on the shared parent+event with both branches merged.
	assert.Equal(t, 1, strings.Count(out, "addEventListener(\"click\""))
	assert.Contains(t, out, `event.target.matches(".a")`)
	assert.Contains(t, out, `event.target.matches(".b")`)
	assert.Contains(t, out, "(fa)(event);")
	assert.Contains(t, out, "(fb)(event);")
}

func TestAnimateGeneratesRAFLoop(t *testing.T) {
	g, sink := jsFromScript(t, `{{.box}}->animate({duration: 500, easing: "ease-in"})`, nil, nil)
	require.Zero(t, sink.Len())
	out := g.Output()
	assert.Contains(t, out, "requestAnimationFrame(step)")
	assert.Contains(t, out, "var duration = 500;")
	assert.Contains(t, out, "t * t")
}

func TestVirGeneratesTopLevelFunctions(t *testing.T) {
	src := `vir v = listen({print: () => { log(); }, clear: c});
v->print();`
	g, sink := jsFromScript(t, src, nil, nil)
	require.Zero(t, sink.Len())
	out := g.Output()

	assert.Equal(t, 2, g.VirFunctionCount())
	assert.Contains(t, out, "function __chtl_vir_v_print()")
	assert.Contains(t, out, "function __chtl_vir_v_clear()")
	assert.Contains(t, out, "__chtl_vir_v_print();")

	// Vir functions precede all script bodies.
	fnIdx := strings.Index(out, "function __chtl_vir_v_print")
	callIdx := strings.Index(out, "__chtl_vir_v_print();")
	assert.Less(t, fnIdx, callIdx)
}

func TestVirUnknownMethod(t *testing.T) {
	src := `vir v = listen({print: f});
v->missing();`
	_, sink := jsFromScript(t, src, nil, nil)
	require.NotZero(t, sink.Len())
	assert.Equal(t, diag.Generation, sink.All()[0].Kind)
}

func TestRawJSPreserved(t *testing.T) {
	g, _ := jsFromScript(t, "const a = 1;\nconsole.log(a);", nil, nil)
	out := g.Output()
	assert.Contains(t, out, "const a = 1;")
	assert.Contains(t, out, "console.log(a);")
}

// stubExtension is a host-side Extension for generator tests.
type stubExtension struct {
	rejectAll bool
}

func (s *stubExtension) Name() string       { return "stub" }
func (s *stubExtension) Version() string    { return "0.0.1" }
func (s *stubExtension) Keywords() []string { return []string{"magicWord"} }
func (s *stubExtension) MatchesSyntax(string, *chtljs.ExtContext) bool { return true }

func (s *stubExtension) ParseSyntax(input string, ctx *chtljs.ExtContext) (*chtljs.Node, error) {
	n := chtljs.NewNode(chtljs.KindForeign, syntax.Source{})
	n.Payload = input
	return n, nil
}

func (s *stubExtension) GenerateJavaScript(n *chtljs.Node, ctx *chtljs.ExtContext) (string, error) {
	if s.rejectAll {
		return "", errors.New("nope")
	}
	return "/* magic */ console.log(" + strings.TrimSuffix(n.Payload, ";") + ");", nil
}

func (s *stubExtension) Initialize() error { return nil }
func (s *stubExtension) Cleanup()          {}

func TestForeignNodeGeneration(t *testing.T) {
	exts := chtljs.NewExtensionSet()
	require.NoError(t, exts.Add(&stubExtension{}))

	g, sink := jsFromScript(t, "magicWord(1, 2);", []string{"magicWord"}, exts)
	require.Zero(t, sink.Len())
	assert.Contains(t, g.Output(), "/* magic */")
}

func TestForeignNodeRejected(t *testing.T) {
	exts := chtljs.NewExtensionSet()
	require.NoError(t, exts.Add(&stubExtension{rejectAll: true}))

	_, sink := jsFromScript(t, "magicWord();", []string{"magicWord"}, exts)
	require.NotZero(t, sink.Len())
	assert.Equal(t, diag.Generation, sink.All()[0].Kind)
}
