package gen

import (
	"strings"

	"github.com/dpotapov/chtl/syntax"
)

// Rule is one CSS rule block accumulated for the final stylesheet.
type Rule struct {
	Selector string
	Props    []Prop
	Offset   int // source offset of the contributing block
}

// Prop is a single CSS declaration.
type Prop struct {
	Name  string
	Value string
}

// CSSCollector aggregates hoisted element styles, structured style blocks and
// raw CSS fragments into one stylesheet. Entries record their source offsets,
// but Output does not sort by them: hoisted blocks and user-written global
// CSS interleave in the order they were collected.
type CSSCollector struct {
	entries []cssEntry
}

type cssEntry struct {
	offset int
	rule   *Rule
	raw    string
}

// AddRule appends a structured rule.
func (c *CSSCollector) AddRule(r Rule) {
	c.entries = append(c.entries, cssEntry{offset: r.Offset, rule: &r})
}

// AddRaw appends verbatim CSS (global style fragments, @Style origins).
func (c *CSSCollector) AddRaw(css string, offset int) {
	if strings.TrimSpace(css) == "" {
		return
	}
	c.entries = append(c.entries, cssEntry{offset: offset, raw: css})
}

// AddStyleNode converts a resolved style-block AST into rules. base is the
// selector bare properties attach to ("" suppresses them); ampersand
// selectors expand against base.
func (c *CSSCollector) AddStyleNode(sb *syntax.Node, base string) {
	var bare []Prop
	for _, child := range sb.Children {
		switch child.Kind {
		case syntax.KindProperty:
			bare = append(bare, Prop{Name: child.Name, Value: child.Value})
		case syntax.KindSelector:
			c.addSelectorNode(child, base)
		}
	}
	if len(bare) > 0 && base != "" {
		c.AddRule(Rule{Selector: base, Props: bare, Offset: sb.Source.Span.Offset})
	}
}

func (c *CSSCollector) addSelectorNode(sel *syntax.Node, base string) {
	selector := sel.Name
	if sel.Selector == syntax.SelAmpersand {
		selector = base + strings.TrimPrefix(sel.Name, "&")
	}
	var props []Prop
	for _, child := range sel.Children {
		switch child.Kind {
		case syntax.KindProperty:
			props = append(props, Prop{Name: child.Name, Value: child.Value})
		case syntax.KindSelector:
			c.addSelectorNode(child, selector)
		}
	}
	if len(props) > 0 {
		c.AddRule(Rule{Selector: selector, Props: props, Offset: sel.Source.Span.Offset})
	}
}

// Empty reports whether nothing has been collected.
func (c *CSSCollector) Empty() bool { return len(c.entries) == 0 }

// Output renders the aggregated stylesheet. Entries emit in the order they
// were collected, which the dispatcher arranges to follow source order.
func (c *CSSCollector) Output(pretty bool) string {
	w := NewWriter(pretty)
	for _, e := range c.entries {
		if e.raw != "" {
			raw := strings.TrimSpace(e.raw)
			if pretty {
				w.Line(raw)
			} else {
				w.WriteString(raw)
			}
			continue
		}
		writeRule(w, e.rule, pretty)
	}
	return w.String()
}

func writeRule(w *CodeWriter, r *Rule, pretty bool) {
	if pretty {
		w.Line(r.Selector + " {")
		w.Indent()
		for _, p := range r.Props {
			w.Line(p.Name + ": " + p.Value + ";")
		}
		w.Dedent()
		w.Line("}")
		return
	}
	w.WriteString(r.Selector + "{")
	for i, p := range r.Props {
		if i > 0 {
			w.WriteString(";")
		}
		w.WriteString(p.Name + ":" + p.Value)
	}
	w.WriteString("}")
}
