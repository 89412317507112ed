package chtljs

import "github.com/dpotapov/chtl/syntax"

// NodeKind tags the CHTL-JS AST variant.
type NodeKind int

const (
	KindScript NodeKind = iota // root: ordered mix of raw JS and constructs
	KindRaw                    // verbatim JS passthrough
	KindSelector
	KindArrowAccess
	KindListen
	KindDelegate
	KindAnimate
	KindVirDecl
	KindVirCall
	KindForeign // CJMOD-owned span, opaque to the core
)

// SelectorKind classifies an enhanced selector. Mixed selectors defer the
// tag/class/id decision to generated runtime code.
type SelectorKind int

const (
	SelTag SelectorKind = iota
	SelClass
	SelID
	SelMixed
	SelIndexed
	SelComplex
)

func (k SelectorKind) String() string {
	switch k {
	case SelTag:
		return "tag"
	case SelClass:
		return "class"
	case SelID:
		return "id"
	case SelMixed:
		return "mixed"
	case SelIndexed:
		return "indexed"
	case SelComplex:
		return "complex"
	}
	return "unknown"
}

// Binding is one key/value pair in a listen, delegate or animate block. The
// value is raw JS (often an arrow function) reproduced verbatim.
type Binding struct {
	Key   string
	Value string
}

// Call is one step of an arrow-access method chain.
type Call struct {
	Method string
	Args   string // raw argument text, parens excluded
}

// Node is the CHTL-JS AST node.
type Node struct {
	Kind   NodeKind
	Source syntax.Source

	// Raw JS for KindRaw; selector text for KindSelector; virtual object
	// name for KindVirDecl/KindVirCall.
	Text string

	Selector SelectorKind
	Index    int // SelIndexed: the [n] suffix

	Target *Node  // receiver of arrow access, listen, delegate
	Calls  []Call // arrow-access chain

	Bindings []Binding // listen/delegate event bindings, animate config
	Targets  []string  // delegate: target selector expressions

	Method string // KindVirCall
	Args   string // KindVirCall raw arguments

	// Foreign spans.
	Keyword string // the CJMOD keyword that owns this span
	Owner   string // owning module name
	Payload string // the raw matched text, handed to the extension

	Children []*Node // KindScript body, KindVirDecl source call
}

// NewNode returns a node of the given kind.
func NewNode(kind NodeKind, src syntax.Source) *Node {
	return &Node{Kind: kind, Source: src}
}

// MethodKeys returns the method names a vir declaration exposes: the binding
// keys of its source call.
func (n *Node) MethodKeys() []string {
	if n.Kind != KindVirDecl || len(n.Children) == 0 {
		return nil
	}
	src := n.Children[0]
	keys := make([]string, 0, len(src.Bindings))
	for _, b := range src.Bindings {
		keys = append(keys, b.Key)
	}
	return keys
}
