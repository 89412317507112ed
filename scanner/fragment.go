// Package scanner segments a mixed-dialect CHTL source stream into typed,
// position-tagged fragments that the dispatcher routes to sub-compilers.
package scanner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dpotapov/chtl/syntax"
)

// Kind assigns a fragment to exactly one sub-compiler.
type Kind int

const (
	KindUnknown Kind = iota
	KindCHTL
	KindCHTLJS
	KindCSS
	KindJS
)

func (k Kind) String() string {
	switch k {
	case KindCHTL:
		return "chtl"
	case KindCHTLJS:
		return "chtljs"
	case KindCSS:
		return "css"
	case KindJS:
		return "js"
	}
	return "unknown"
}

// Integrity describes whether a fragment spans an enclosing construct.
type Integrity int

const (
	Complete Integrity = iota
	ContinuesNext
	ContinuedFromPrev
	Partial
)

func (i Integrity) String() string {
	switch i {
	case Complete:
		return "complete"
	case ContinuesNext:
		return "continues_next"
	case ContinuedFromPrev:
		return "continued_from_prev"
	case Partial:
		return "partial"
	}
	return "unknown"
}

// Context records the syntactic surroundings of a fragment.
type Context int

const (
	CtxTopLevel Context = iota
	CtxInsideElement
	CtxInsideStyle
	CtxInsideScript
	CtxInsideBraceExpr
)

func (c Context) String() string {
	switch c {
	case CtxTopLevel:
		return "top_level"
	case CtxInsideElement:
		return "inside_element"
	case CtxInsideStyle:
		return "inside_style"
	case CtxInsideScript:
		return "inside_script"
	case CtxInsideBraceExpr:
		return "inside_brace_expression"
	}
	return "unknown"
}

// Fragment is one typed segment of source. Fragment IDs increase
// monotonically; Seq is the 0-based sequence index within a compilation unit.
// Concatenating fragment contents in source order reconstructs the source
// byte-for-byte.
type Fragment struct {
	ID        int
	Seq       int
	Kind      Kind
	Content   string
	Start     syntax.Span
	End       syntax.Span
	Integrity Integrity
	Context   Context

	// Keyword is set on CHTLJS fragments carved out for a CJMOD-contributed
	// keyword; it names the keyword that triggered the split.
	Keyword string
}

func (f *Fragment) String() string {
	return fmt.Sprintf("#%d %s %s %s [%d:%d]", f.ID, f.Kind, f.Integrity, f.Context,
		f.Start.Line, f.Start.Column)
}

// SourceOrder returns the fragments sorted by fragment ID ascending.
func SourceOrder(frags []*Fragment) []*Fragment {
	out := append([]*Fragment(nil), frags...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reconstruct concatenates fragment contents in source order. The result is
// byte-identical to the scanned source.
func Reconstruct(frags []*Fragment) string {
	var b strings.Builder
	for _, f := range SourceOrder(frags) {
		b.WriteString(f.Content)
	}
	return b.String()
}

// OptimalMergeOrder returns a permutation suited for dispatch: CHTL
// structural fragments keep document order, CSS fragments group together, JS
// and CHTL-JS fragments group together, and every continues_next /
// continued_from_prev pair stays adjacent. The result is a valid topological
// order of the fragment dependency graph.
func OptimalMergeOrder(frags []*Fragment) []*Fragment {
	src := SourceOrder(frags)
	var chtl, css, js []*Fragment
	for _, f := range src {
		switch f.Kind {
		case KindCSS:
			css = append(css, f)
		case KindJS, KindCHTLJS:
			js = append(js, f)
		default:
			chtl = append(chtl, f)
		}
	}
	out := make([]*Fragment, 0, len(src))
	out = append(out, chtl...)
	out = append(out, css...)
	out = append(out, js...)
	return out
}

// FindIncomplete returns fragments whose integrity is partial, or whose
// continues_next has no matching successor. The dispatcher treats these as
// recoverable only if the sub-compiler opts in.
func FindIncomplete(frags []*Fragment) []*Fragment {
	src := SourceOrder(frags)
	var out []*Fragment
	for i, f := range src {
		switch f.Integrity {
		case Partial:
			out = append(out, f)
		case ContinuesNext:
			if i+1 >= len(src) || src[i+1].Integrity != ContinuedFromPrev {
				out = append(out, f)
			}
		}
	}
	return out
}
