package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/diag"
)

func resolve(t *testing.T, src string) (*Node, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink("test.chtl")
	p := NewParser(src, "test.chtl", nil, sink)
	root := p.Parse()
	r := NewResolver(p.Global(), sink, nil)
	return r.Resolve(root), sink
}

func resolveClean(t *testing.T, src string) *Node {
	t.Helper()
	out, sink := resolve(t, src)
	require.Zero(t, sink.Len(), "unexpected diagnostics: %s", sink.Format(false))
	return out
}

// findKind returns all nodes of the given kind in the tree.
func findKind(root *Node, kind NodeKind) []*Node {
	var out []*Node
	Inspect(root, func(n *Node) bool {
		if n.Kind == kind {
			out = append(out, n)
		}
		return true
	})
	return out
}

func propsOf(n *Node) map[string]string {
	out := map[string]string{}
	for _, c := range n.Children {
		if c.Kind == KindProperty {
			out[c.Name] = c.Value
		}
	}
	return out
}

func TestResolveStyleReference(t *testing.T) {
	out := resolveClean(t, `
[Template] @Style Base { color: red; margin: 0; }
div { style { @Style Base; } }
`)
	sb := findKind(out, KindStyleBlock)
	require.Len(t, sb, 1)
	got := propsOf(sb[0])
	assert.Equal(t, "red", got["color"])
	assert.Equal(t, "0", got["margin"])
}

func TestResolveThreeLevelInheritance(t *testing.T) {
	out := resolveClean(t, `
[Template] @Var Theme { base: 4px; }
[Template] @Style A { color: red; margin: Theme(base); }
[Template] @Style B { inherit @Style A; color: blue; }
[Template] @Style C { inherit @Style B; padding: Theme(base); }
div { style { @Style C; } }
`)
	sb := findKind(out, KindStyleBlock)
	require.Len(t, sb, 1)
	got := propsOf(sb[0])
	// B overrides A's color; C adds padding; order merges parents first.
	assert.Equal(t, "blue", got["color"])
	assert.Equal(t, "4px", got["margin"])
	assert.Equal(t, "4px", got["padding"])
}

func TestResolveVarDefault(t *testing.T) {
	out := resolveClean(t, `
[Template] @Var Theme { primary: #336; }
div { style { color: Theme(primary); gap: Theme(spacing=8px); } }
`)
	sb := findKind(out, KindStyleBlock)
	got := propsOf(sb[0])
	// Variable values substitute as written; colors are not rewritten.
	assert.Equal(t, "#336", got["color"])
	assert.Equal(t, "8px", got["gap"])
}

func TestResolveVarUnsetKey(t *testing.T) {
	_, sink := resolve(t, `
[Template] @Var Theme { primary: #336; }
div { style { color: Theme(missing); } }
`)
	require.NotZero(t, sink.Len())
	assert.Contains(t, sink.All()[0].Message, "not set")
}

func TestResolvePlainFunctionCallUntouched(t *testing.T) {
	// calc() does not resolve to a @Var group, so the shape passes through.
	out := resolveClean(t, `div { style { width: calc(100% - 10px); } }`)
	sb := findKind(out, KindStyleBlock)
	got := propsOf(sb[0])
	assert.Contains(t, got["width"], "calc(")
}

func TestResolveElementTemplate(t *testing.T) {
	out := resolveClean(t, `
[Template] @Element Card { div { class: "card"; } span { } }
body { @Element Card; }
`)
	body := out.Children[1]
	require.Equal(t, "body", body.Name)
	require.Len(t, body.Children, 2)
	assert.Equal(t, "div", body.Children[0].Name)
	assert.Equal(t, "span", body.Children[1].Name)
}

func TestResolveCustomSpecialization(t *testing.T) {
	out := resolveClean(t, `
[Custom] @Element Box { div { } span { } }
body { @Element Box { delete span; insert after div[0] { p { } } } }
`)
	body := out.Children[1]
	require.Len(t, body.Children, 2)
	assert.Equal(t, "div", body.Children[0].Name)
	assert.Equal(t, "p", body.Children[1].Name)
}

func TestResolveInsertTopBottom(t *testing.T) {
	out := resolveClean(t, `
[Custom] @Element List { li { id: mid; } }
ul { @Element List { insert at top { li { id: first; } } insert at bottom { li { id: last; } } } }
`)
	ul := out.Children[1]
	require.Len(t, ul.Children, 3)
	assert.Equal(t, "first", ul.Children[0].Attr("id").Value)
	assert.Equal(t, "mid", ul.Children[1].Attr("id").Value)
	assert.Equal(t, "last", ul.Children[2].Attr("id").Value)
}

func TestResolveConflictingReplace(t *testing.T) {
	_, sink := resolve(t, `
[Custom] @Element Box { div { } }
body { @Element Box { insert replace div[0] { p { } } insert replace div[0] { a { } } } }
`)
	require.NotZero(t, sink.Len())
	found := false
	for _, d := range sink.All() {
		if d.Kind == diag.Resolution {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResolveUnknownSymbol(t *testing.T) {
	_, sink := resolve(t, `div { style { @Style Nope; } }`)
	require.NotZero(t, sink.Len())
	assert.Contains(t, sink.All()[0].Message, "unknown symbol")
}

func TestResolveInheritanceCycle(t *testing.T) {
	_, sink := resolve(t, `
[Template] @Style A { inherit @Style B; }
[Template] @Style B { inherit @Style A; }
div { style { @Style A; } }
`)
	require.NotZero(t, sink.Len())
	found := false
	for _, d := range sink.All() {
		if d.Kind == diag.Resolution {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResolveTypeMismatch(t *testing.T) {
	_, sink := resolve(t, `
[Template] @Element E { div { } }
[Template] @Style S { inherit @Element E; }
div { style { @Style S; } }
`)
	require.NotZero(t, sink.Len())
}

func TestResolveIsIdempotent(t *testing.T) {
	src := `
[Template] @Style Base { color: red; }
div { style { @Style Base; } }
`
	sink := diag.NewSink("test.chtl")
	p := NewParser(src, "test.chtl", nil, sink)
	root := p.Parse()
	r := NewResolver(p.Global(), sink, nil)
	once := r.Resolve(root)

	r2 := NewResolver(p.Global(), sink, nil)
	twice := r2.Resolve(once)
	require.Zero(t, sink.Len())

	assert.Equal(t, dumpTree(once), dumpTree(twice))
}

func TestResolveNamespaceQualifiedReference(t *testing.T) {
	out := resolveClean(t, `
[Namespace] ui { [Template] @Style Button { color: blue; } }
div { style { @Style ui.Button; } }
`)
	sb := findKind(out, KindStyleBlock)
	require.Len(t, sb, 1)
	assert.Equal(t, "blue", propsOf(sb[0])["color"])
}

func TestResolveConstraintExcept(t *testing.T) {
	_, sink := resolve(t, `
[Namespace] pure {
    except [Custom];
    [Custom] @Style S { color: red; }
}
`)
	require.NotZero(t, sink.Len())
	assert.Contains(t, sink.All()[0].Message, "excludes")
}

func TestResolveOriginalTreeUnchanged(t *testing.T) {
	src := `
[Template] @Style Base { color: red; }
div { style { @Style Base; } }
`
	sink := diag.NewSink("test.chtl")
	p := NewParser(src, "test.chtl", nil, sink)
	root := p.Parse()
	before := dumpTree(root)
	NewResolver(p.Global(), sink, nil).Resolve(root)
	assert.Equal(t, before, dumpTree(root))
}
