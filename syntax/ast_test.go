package syntax

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dumpIndent(w io.Writer, level int) {
	_, _ = io.WriteString(w, "| ")
	for i := 0; i < level; i++ {
		_, _ = io.WriteString(w, "  ")
	}
}

// dumpLevel renders one node and its subtree, one node per line, for
// structural comparisons that ignore position metadata.
func dumpLevel(w io.Writer, n *Node, level int) {
	dumpIndent(w, level)
	fmt.Fprintf(w, "%s", n.Kind)
	if n.Name != "" {
		fmt.Fprintf(w, " %q", n.Name)
	}
	if n.Value != "" {
		fmt.Fprintf(w, " = %q", n.Value)
	}
	if n.Tag != TagNone {
		fmt.Fprintf(w, " %s", n.Tag)
	}
	fmt.Fprintln(w)
	for _, a := range n.Attrs {
		dumpLevel(w, a, level+1)
	}
	for _, c := range n.Children {
		dumpLevel(w, c, level+1)
	}
}

func dumpTree(n *Node) string {
	var b strings.Builder
	for _, c := range n.Children {
		dumpLevel(&b, c, 0)
	}
	return b.String()
}

func TestWalkOrder(t *testing.T) {
	root, _ := parseClean(t, "div { id: x; span { } p { } }")
	var order []string
	Walk(root, visitorFuncs{
		enter: func(n *Node) bool {
			order = append(order, "+"+n.Kind.String())
			return true
		},
		leave: func(n *Node) {
			order = append(order, "-"+n.Kind.String())
		},
	})
	want := []string{
		"+Root",
		"+Element", "+Attribute", "-Attribute",
		"+Element", "-Element",
		"+Element", "-Element",
		"-Element",
		"-Root",
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
}

type visitorFuncs struct {
	enter func(*Node) bool
	leave func(*Node)
}

func (v visitorFuncs) Enter(n *Node) bool { return v.enter(n) }
func (v visitorFuncs) Leave(n *Node)      { v.leave(n) }

func TestInspectSkipsChildren(t *testing.T) {
	root, _ := parseClean(t, "div { span { p { } } }")
	var seen []string
	Inspect(root, func(n *Node) bool {
		if n.Kind == KindElement {
			seen = append(seen, n.Name)
		}
		return n.Name != "span" // stop below span
	})
	assert.Equal(t, []string{"div", "span"}, seen)
}

func TestCloneIsDeep(t *testing.T) {
	root, _ := parseClean(t, `div { class: "a"; span { } }`)
	el := root.Children[0]
	c := el.Clone()
	c.Attrs[0].Value = "b"
	c.Children[0].Name = "p"
	assert.Equal(t, "a", el.Attrs[0].Value)
	assert.Equal(t, "span", el.Children[0].Name)
}

func TestCloneForUseRebasesPositions(t *testing.T) {
	root, _ := parseClean(t, "div { span { } }")
	el := root.Children[0]
	site := Source{File: "use.chtl", Span: Span{Offset: 100, Line: 7, Column: 3}}
	c := el.CloneForUse(site)

	require.Equal(t, site, c.Source)
	// Every node in the clone points at the reference site.
	Inspect(c, func(n *Node) bool {
		assert.Equal(t, "use.chtl", n.Source.File)
		assert.Equal(t, 7, n.Source.Span.Line)
		return true
	})
	// The original keeps its own positions.
	assert.Equal(t, "test.chtl", el.Children[0].Source.File)
}
