package chtljs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

func parseJS(t *testing.T, src string) (*Node, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink("test.chtl")
	p := NewParser(src, "test.chtl", syntax.Span{Line: 1, Column: 1}, nil, sink)
	return p.Parse(), sink
}

func parseJSClean(t *testing.T, src string) *Node {
	t.Helper()
	root, sink := parseJS(t, src)
	require.Zero(t, sink.Len(), "unexpected diagnostics: %s", sink.Format(false))
	return root
}

func constructs(root *Node) []*Node {
	var out []*Node
	for _, c := range root.Children {
		if c.Kind != KindRaw {
			out = append(out, c)
		}
	}
	return out
}

func TestClassifySelector(t *testing.T) {
	tests := []struct {
		text string
		want SelectorKind
		idx  int
	}{
		{"button", SelTag, 0},
		{"div", SelTag, 0},
		{".box", SelClass, 0},
		{"#main", SelID, 0},
		{"box", SelMixed, 0},
		{"button[2]", SelIndexed, 2},
		{".nav li a", SelComplex, 0},
		{"div > span", SelComplex, 0},
	}
	for _, tt := range tests {
		kind, idx := classifySelector(tt.text)
		assert.Equal(t, tt.want, kind, tt.text)
		assert.Equal(t, tt.idx, idx, tt.text)
	}
}

func TestParseEnhancedSelector(t *testing.T) {
	root := parseJSClean(t, "{{.box}}")
	cs := constructs(root)
	require.Len(t, cs, 1)
	assert.Equal(t, KindSelector, cs[0].Kind)
	assert.Equal(t, ".box", cs[0].Text)
	assert.Equal(t, SelClass, cs[0].Selector)
}

func TestParseListen(t *testing.T) {
	root := parseJSClean(t, `{{button}}->listen({ click: () => { go(); }, mouseover: handler })`)
	cs := constructs(root)
	require.Len(t, cs, 1)
	n := cs[0]
	assert.Equal(t, KindListen, n.Kind)
	require.NotNil(t, n.Target)
	assert.Equal(t, KindSelector, n.Target.Kind)
	require.Len(t, n.Bindings, 2)
	assert.Equal(t, "click", n.Bindings[0].Key)
	assert.Equal(t, "() => { go(); }", n.Bindings[0].Value)
	assert.Equal(t, "mouseover", n.Bindings[1].Key)
	assert.Equal(t, "handler", n.Bindings[1].Value)
}

func TestParseDelegate(t *testing.T) {
	root := parseJSClean(t, `{{#list}}->delegate({ target: [{{.item}}, {{.other}}], click: f })`)
	cs := constructs(root)
	require.Len(t, cs, 1)
	n := cs[0]
	assert.Equal(t, KindDelegate, n.Kind)
	assert.Equal(t, []string{".item", ".other"}, n.Targets)
	require.Len(t, n.Bindings, 1)
	assert.Equal(t, "click", n.Bindings[0].Key)
}

func TestParseAnimate(t *testing.T) {
	root := parseJSClean(t, `{{.box}}->animate({ duration: 500, easing: "ease-in" })`)
	cs := constructs(root)
	require.Len(t, cs, 1)
	n := cs[0]
	assert.Equal(t, KindAnimate, n.Kind)
	require.Len(t, n.Bindings, 2)
	assert.Equal(t, "500", n.Bindings[0].Value)
}

func TestParseVirDeclAndCall(t *testing.T) {
	root := parseJSClean(t, `vir v = listen({ print: () => { log(); }, clear: c });
v->print();`)
	cs := constructs(root)
	require.Len(t, cs, 2)

	decl := cs[0]
	assert.Equal(t, KindVirDecl, decl.Kind)
	assert.Equal(t, "v", decl.Text)
	assert.Equal(t, []string{"print", "clear"}, decl.MethodKeys())

	call := cs[1]
	assert.Equal(t, KindVirCall, call.Kind)
	assert.Equal(t, "v", call.Text)
	assert.Equal(t, "print", call.Method)
}

func TestParseArrowAccessOnIdent(t *testing.T) {
	root := parseJSClean(t, `el->focus();`)
	cs := constructs(root)
	require.Len(t, cs, 1)
	n := cs[0]
	assert.Equal(t, KindArrowAccess, n.Kind)
	assert.Equal(t, "el", n.Target.Text)
	require.Len(t, n.Calls, 1)
	assert.Equal(t, "focus", n.Calls[0].Method)
}

func TestParseArrowChain(t *testing.T) {
	root := parseJSClean(t, `{{#app}}->querySelector(".x")->focus()`)
	cs := constructs(root)
	require.Len(t, cs, 1)
	n := cs[0]
	assert.Equal(t, KindArrowAccess, n.Kind)
	require.Len(t, n.Calls, 2)
	assert.Equal(t, "querySelector", n.Calls[0].Method)
	assert.Equal(t, `".x"`, n.Calls[0].Args)
	assert.Equal(t, "focus", n.Calls[1].Method)
}

func TestRawJSPassesThrough(t *testing.T) {
	root := parseJSClean(t, "const a = 1;\n{{.x}}->listen({click: f});\nconst b = 2;")
	require.GreaterOrEqual(t, len(root.Children), 3)
	assert.Equal(t, KindRaw, root.Children[0].Kind)
	assert.Contains(t, root.Children[0].Text, "const a = 1;")
	last := root.Children[len(root.Children)-1]
	assert.Equal(t, KindRaw, last.Kind)
	assert.Contains(t, last.Text, "const b = 2;")
}

func TestParseForeignSpan(t *testing.T) {
	sink := diag.NewSink("test.chtl")
	p := NewParser(`before(); printMylove({speed: 2}); after();`, "test.chtl",
		syntax.Span{Line: 1, Column: 1}, []string{"printMylove"}, sink)
	root := p.Parse()
	require.Zero(t, sink.Len())

	cs := constructs(root)
	require.Len(t, cs, 1)
	n := cs[0]
	assert.Equal(t, KindForeign, n.Kind)
	assert.Equal(t, "printMylove", n.Keyword)
	assert.Equal(t, "printMylove({speed: 2});", n.Payload)
}

func TestInvalidTransitionRecovers(t *testing.T) {
	// A dangling arrow with no method records an error and parsing continues.
	root, sink := parseJS(t, "a->; b();")
	assert.NotZero(t, sink.Len())
	require.NotNil(t, root)
}

func TestStateMachineTable(t *testing.T) {
	sink := diag.NewSink("test.chtl")
	m := newMachine("test.chtl", sink)

	assert.Equal(t, StateEnhancedSelector, m.on(Token{Kind: OpenSelector}))
	assert.Equal(t, StateInitial, m.on(Token{Kind: CloseSelector}))
	assert.Equal(t, StateVirtualObject, m.on(Token{Kind: KwVir}))
	assert.Equal(t, StateInitial, m.on(Token{Kind: Semicolon}))
	assert.Zero(t, sink.Len())

	// listen out of nowhere is a valid Initial transition...
	assert.Equal(t, StateListen, m.on(Token{Kind: KwListen}))
	assert.Equal(t, StateInitial, m.on(Token{Kind: RParen}))
	// ...but an identifier inside listen state is not a construct trigger
	// and leaves the state alone.
	m.state = StateListen
	assert.Equal(t, StateListen, m.on(Token{Kind: Ident}))
}
