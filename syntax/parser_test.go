package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/diag"
)

func parse(t *testing.T, src string) (*Node, *GlobalMap, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink("test.chtl")
	p := NewParser(src, "test.chtl", nil, sink)
	root := p.Parse()
	require.NotNil(t, root)
	return root, p.Global(), sink
}

func parseClean(t *testing.T, src string) (*Node, *GlobalMap) {
	t.Helper()
	root, global, sink := parse(t, src)
	require.Zero(t, sink.Len(), "unexpected diagnostics: %s", sink.Format(false))
	return root, global
}

func TestParseEmptySource(t *testing.T) {
	root, _ := parseClean(t, "")
	assert.Equal(t, KindRoot, root.Kind)
	assert.Empty(t, root.Children)
}

func TestParseOnlyComments(t *testing.T) {
	root, _ := parseClean(t, "// nothing\n/* here */\n")
	assert.Empty(t, root.Children)
}

func TestParseOnlyGeneratorComment(t *testing.T) {
	root, _ := parseClean(t, "-- hello\n")
	require.Len(t, root.Children, 1)
	c := root.Children[0]
	assert.Equal(t, KindComment, c.Kind)
	assert.Equal(t, CommentGenerator, c.CommentKind)
	assert.Equal(t, "hello", c.Value)
}

func TestParseSimpleElement(t *testing.T) {
	root, _ := parseClean(t, "div { }")
	require.Len(t, root.Children, 1)
	el := root.Children[0]
	assert.Equal(t, KindElement, el.Kind)
	assert.Equal(t, "div", el.Name)
	assert.Empty(t, el.Attrs)
	assert.Empty(t, el.Children)
}

func TestParseAttributes(t *testing.T) {
	root, _ := parseClean(t, `div { class: "container"; id = main; }`)
	el := root.Children[0]
	require.Len(t, el.Attrs, 2)
	assert.Equal(t, "class", el.Attrs[0].Name)
	assert.Equal(t, "container", el.Attrs[0].Value)
	assert.False(t, el.Attrs[0].AssignedWith)
	assert.Equal(t, "id", el.Attrs[1].Name)
	assert.Equal(t, "main", el.Attrs[1].Value)
	assert.True(t, el.Attrs[1].AssignedWith)
}

func TestParseTextBlock(t *testing.T) {
	root, _ := parseClean(t, "p { text { Hello World } }")
	el := root.Children[0]
	require.Len(t, el.Children, 1)
	txt := el.Children[0]
	assert.Equal(t, KindText, txt.Kind)
	assert.Equal(t, "Hello World", txt.Value)
	assert.True(t, txt.Literal)
}

func TestParseQuotedText(t *testing.T) {
	root, _ := parseClean(t, `p { text { "Hello" } }`)
	txt := root.Children[0].Children[0]
	assert.Equal(t, "Hello", txt.Value)
	assert.False(t, txt.Literal)
}

func TestParseNestedElements(t *testing.T) {
	root, _ := parseClean(t, "div { span { text { x } } p { } }")
	el := root.Children[0]
	require.Len(t, el.Children, 2)
	assert.Equal(t, "span", el.Children[0].Name)
	assert.Equal(t, "p", el.Children[1].Name)
}

func TestParseStyleBlock(t *testing.T) {
	root, _ := parseClean(t, `div { style { color: red; .box { margin: 0; } &:hover { color: blue; } } }`)
	el := root.Children[0]
	require.Len(t, el.Children, 1)
	sb := el.Children[0]
	assert.Equal(t, KindStyleBlock, sb.Kind)
	assert.True(t, sb.Local)
	require.Len(t, sb.Children, 3)

	prop := sb.Children[0]
	assert.Equal(t, KindProperty, prop.Kind)
	assert.Equal(t, "color", prop.Name)
	assert.Equal(t, "red", prop.Value)

	cls := sb.Children[1]
	assert.Equal(t, KindSelector, cls.Kind)
	assert.Equal(t, SelClass, cls.Selector)
	assert.Equal(t, ".box", cls.Name)

	amp := sb.Children[2]
	assert.Equal(t, SelAmpersand, amp.Selector)
	assert.Equal(t, "&:hover", amp.Name)
}

func TestParseGlobalStyle(t *testing.T) {
	root, _ := parseClean(t, "style { body { margin: 0; } }")
	sb := root.Children[0]
	assert.Equal(t, KindStyleBlock, sb.Kind)
	assert.False(t, sb.Local)
	sel := sb.Children[0]
	assert.Equal(t, SelElement, sel.Selector)
	assert.Equal(t, "body", sel.Name)
}

func TestParseScriptBlockRaw(t *testing.T) {
	src := "div { script { let a = {x: 1}; } }"
	root, _ := parseClean(t, src)
	sc := root.Children[0].Children[0]
	assert.Equal(t, KindScriptBlock, sc.Kind)
	assert.True(t, sc.Local)
	assert.Equal(t, " let a = {x: 1}; ", sc.Value)
}

func TestParseTemplateStyle(t *testing.T) {
	_, global := parseClean(t, "[Template] @Style Base { color: red; margin: 0; }")
	obj := global.Find(ObjTemplateStyle, "Base", nil)
	require.NotNil(t, obj)
	assert.Equal(t, "Base", obj.QualifiedName)
	require.Len(t, obj.Body.Children, 2)
}

func TestParseTemplateVar(t *testing.T) {
	_, global := parseClean(t, "[Template] @Var Theme { primary: #336; spacing: 4px; }")
	obj := global.Find(ObjTemplateVar, "Theme", nil)
	require.NotNil(t, obj)
	assert.Equal(t, "#336", obj.Body.Children[0].Value)
	assert.Equal(t, "4px", obj.Body.Children[1].Value)
}

func TestParseTemplateInheritance(t *testing.T) {
	_, global := parseClean(t, `
[Template] @Style A { color: red; }
[Template] @Style B { inherit @Style A; margin: 0; }
[Template] @Style C { @Style B; }
`)
	b := global.Find(ObjTemplateStyle, "B", nil)
	require.NotNil(t, b)
	require.Len(t, b.Body.Inherits, 1)
	assert.Equal(t, "A", b.Body.Inherits[0].Name)
	assert.True(t, b.Body.Inherits[0].Explicit)

	c := global.Find(ObjTemplateStyle, "C", nil)
	require.NotNil(t, c)
	require.Len(t, c.Body.Inherits, 1)
	assert.False(t, c.Body.Inherits[0].Explicit)
}

func TestParseCustomWithSpecialization(t *testing.T) {
	root, global := parseClean(t, `
[Custom] @Element Box { div { } span { } }
body { @Element Box { delete span; insert after div[0] { p { } } } }
`)
	require.NotNil(t, global.Find(ObjCustomElement, "Box", nil))

	body := root.Children[1]
	require.Len(t, body.Children, 1)
	ref := body.Children[0]
	assert.Equal(t, KindCustomRef, ref.Kind)
	assert.Equal(t, "Box", ref.Name)
	require.Len(t, ref.Children, 2)

	del := ref.Children[0]
	assert.Equal(t, KindDeletion, del.Kind)
	assert.Equal(t, []string{"span"}, del.Targets)

	ins := ref.Children[1]
	assert.Equal(t, KindInsertion, ins.Kind)
	assert.Equal(t, InsAfter, ins.Insert)
	assert.Equal(t, "div[0]", ins.Name)
	require.Len(t, ins.Children, 1)
	assert.Equal(t, "p", ins.Children[0].Name)
}

func TestParseInsertPositions(t *testing.T) {
	root, _ := parseClean(t, `
[Custom] @Element List { li { } }
ul { @Element List { insert at top { li { } } insert at bottom { li { } } } }
`)
	ref := root.Children[1].Children[0]
	require.Len(t, ref.Children, 2)
	assert.Equal(t, InsAtTop, ref.Children[0].Insert)
	assert.Equal(t, InsAtBottom, ref.Children[1].Insert)
}

func TestParseOriginDeclarationAndUse(t *testing.T) {
	root, global := parseClean(t, `
[Origin] @Html box { <b>bold</b> }
div { [Origin] @Html box; }
`)
	obj := global.Find(ObjOrigin, "box", nil)
	require.NotNil(t, obj)
	assert.Equal(t, " <b>bold</b> ", obj.Body.Value)

	use := root.Children[1].Children[0]
	assert.Equal(t, KindTemplateRef, use.Kind)
	assert.Equal(t, "origin", use.Value)
	assert.Equal(t, "box", use.Name)
}

func TestParseOriginRawNotReparsed(t *testing.T) {
	// Braces and CHTL-looking content inside the origin body stay verbatim.
	_, global, sink := parse(t, `[Origin] @JavaScript lib { function f() { return {a: 1}; } }`)
	require.Zero(t, sink.Len())
	obj := global.Find(ObjOrigin, "lib", nil)
	require.NotNil(t, obj)
	assert.Contains(t, obj.Body.Value, "return {a: 1};")
}

func TestParseConfiguration(t *testing.T) {
	root, _ := parseClean(t, `[Configuration] { INDEX_INITIAL_COUNT = 1 + 1; DEBUG_MODE = true; Group { KEY = "v"; } }`)
	cfgNode := root.Children[0]
	assert.Equal(t, KindConfiguration, cfgNode.Kind)

	cfg := EvalConfiguration(cfgNode, nil)
	assert.Equal(t, 2, cfg.Int("INDEX_INITIAL_COUNT"))
	assert.True(t, cfg.Bool("DEBUG_MODE"))
	require.Contains(t, cfg.Groups, "Group")
	assert.Equal(t, "v", cfg.Groups["Group"].Settings["KEY"])
}

func TestParseNamespace(t *testing.T) {
	_, global := parseClean(t, `
[Namespace] ui {
    [Template] @Style Button { color: blue; }
    [Namespace] inner {
        [Template] @Style Link { color: green; }
    }
}
`)
	require.NotNil(t, global.Find(ObjTemplateStyle, "ui.Button", nil))
	require.NotNil(t, global.Find(ObjTemplateStyle, "ui.inner.Link", nil))
	// Upward search from the inner namespace finds the outer declaration.
	require.NotNil(t, global.Find(ObjTemplateStyle, "Button", []string{"ui", "inner"}))
}

func TestParseImportForms(t *testing.T) {
	root, _ := parseClean(t, `
[Import] @Chtl from "lib.chtl";
[Import] @Style Base from "styles.chtl" as Common;
[Import] @CJmod from Chtholly;
`)
	require.Len(t, root.Children, 3)

	imp := root.Children[0]
	assert.Equal(t, KindImport, imp.Kind)
	assert.Equal(t, TagChtl, imp.Tag)
	assert.Equal(t, "lib.chtl", imp.Value)

	sym := root.Children[1]
	assert.Equal(t, TagStyle, sym.Tag)
	assert.Equal(t, "Base", sym.Symbol)
	assert.Equal(t, "Common", sym.Alias)

	mod := root.Children[2]
	assert.Equal(t, TagCJmod, mod.Tag)
	assert.Equal(t, "Chtholly", mod.Value)
}

func TestParseUseDirective(t *testing.T) {
	root, _ := parseClean(t, "use html5;\ndiv { }")
	assert.Equal(t, KindUse, root.Children[0].Kind)
	assert.Equal(t, "html5", root.Children[0].Value)
}

func TestParseErrorRecovery(t *testing.T) {
	// The missing value is reported but the second element still parses.
	root, _, sink := parse(t, "div { class: ; } span { }")
	assert.NotZero(t, sink.Len())
	require.Len(t, root.Children, 2)
	assert.Equal(t, "span", root.Children[1].Name)
}

func TestParseDuplicateRegistration(t *testing.T) {
	_, _, sink := parse(t, `
[Template] @Style A { color: red; }
[Template] @Style A { color: blue; }
`)
	require.NotZero(t, sink.Len())
	assert.Contains(t, sink.All()[0].Message, "already defined")
}

func TestParsePositionsNested(t *testing.T) {
	root, _ := parseClean(t, "div {\n  span { }\n}")
	el := root.Children[0]
	sp := el.Children[0]
	assert.Equal(t, 1, el.Source.Span.Line)
	assert.Equal(t, 2, sp.Source.Span.Line)
	// A child's span lies within its parent's span.
	assert.True(t, el.Source.Span.Contains(sp.Source.Span))
}
