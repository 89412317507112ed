package syntax

import "fmt"

// NodeKind tags the AST variant.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindElement
	KindText
	KindAttribute
	KindComment

	KindTemplate
	KindCustom
	KindOrigin
	KindConfiguration
	KindNamespace
	KindImport

	KindStyleBlock
	KindSelector
	KindProperty
	KindScriptBlock

	KindInheritance
	KindDeletion
	KindInsertion
	KindIndexAccess
	KindConstraint
	KindTemplateRef
	KindCustomRef

	KindUse // top-level "use html5;" directive
)

func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "Root"
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindAttribute:
		return "Attribute"
	case KindComment:
		return "Comment"
	case KindTemplate:
		return "Template"
	case KindCustom:
		return "Custom"
	case KindOrigin:
		return "Origin"
	case KindConfiguration:
		return "Configuration"
	case KindNamespace:
		return "Namespace"
	case KindImport:
		return "Import"
	case KindStyleBlock:
		return "StyleBlock"
	case KindSelector:
		return "Selector"
	case KindProperty:
		return "Property"
	case KindScriptBlock:
		return "ScriptBlock"
	case KindInheritance:
		return "Inheritance"
	case KindDeletion:
		return "Deletion"
	case KindInsertion:
		return "Insertion"
	case KindIndexAccess:
		return "IndexAccess"
	case KindConstraint:
		return "Constraint"
	case KindTemplateRef:
		return "TemplateRef"
	case KindCustomRef:
		return "CustomRef"
	case KindUse:
		return "Use"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// TypeTag is the @-marker type attached to declarations, references and
// imports.
type TypeTag int

const (
	TagNone TypeTag = iota
	TagStyle
	TagElement
	TagVar
	TagHtml
	TagJavaScript
	TagChtl
	TagCJmod
	TagCustomOrigin // [Origin] @SomeUserType
)

func (t TypeTag) String() string {
	switch t {
	case TagStyle:
		return "@Style"
	case TagElement:
		return "@Element"
	case TagVar:
		return "@Var"
	case TagHtml:
		return "@Html"
	case TagJavaScript:
		return "@JavaScript"
	case TagChtl:
		return "@Chtl"
	case TagCJmod:
		return "@CJmod"
	case TagCustomOrigin:
		return "@<custom>"
	}
	return ""
}

// CommentKind distinguishes the comment variants.
type CommentKind int

const (
	CommentLine CommentKind = iota
	CommentBlock
	CommentGenerator // "--" comments, emitted into the generated HTML
)

// SelectorKind classifies selectors inside style blocks.
type SelectorKind int

const (
	SelClass SelectorKind = iota
	SelID
	SelPseudoClass
	SelPseudoElement
	SelAmpersand
	SelElement
)

// DeletionKind classifies delete operations inside custom specializations.
type DeletionKind int

const (
	DelProperty DeletionKind = iota
	DelInheritance
	DelElement
	DelElementInheritance
)

// InsertPos is the insertion position for custom specializations.
type InsertPos int

const (
	InsAfter InsertPos = iota
	InsBefore
	InsReplace
	InsAtTop
	InsAtBottom
)

func (p InsertPos) String() string {
	switch p {
	case InsAfter:
		return "after"
	case InsBefore:
		return "before"
	case InsReplace:
		return "replace"
	case InsAtTop:
		return "at top"
	case InsAtBottom:
		return "at bottom"
	}
	return ""
}

// ConstraintKind classifies namespace constraints.
type ConstraintKind int

const (
	ConsExcept ConstraintKind = iota
	ConsInherit
)

// Node is the CHTL AST node, a tagged variant. Only the fields relevant to the
// Kind are populated; Children is an ordered sequence and order is significant
// for generation and insertion operations.
type Node struct {
	Kind   NodeKind
	Source Source

	// Name is the tag name for elements, the declared name for templates,
	// customs, origins, namespaces and configurations, the attribute or
	// property name, the selector text, or the target name of operators.
	Name string

	// Value is the text content, attribute or property value, raw origin
	// content, raw script content, comment text or import path.
	Value string

	// Tag is the @-marker type for declarations, references and imports.
	Tag TypeTag

	// OriginTag names the user-declared origin type when Tag == TagCustomOrigin.
	OriginTag string

	// Attrs holds Attribute nodes for elements.
	Attrs []*Node

	// Children is the ordered body.
	Children []*Node

	// Inherits lists parent references for templates and customs, in
	// declaration order (later entries override earlier on merge).
	Inherits []*Node // KindInheritance nodes

	// Kind-specific scalar fields.
	CommentKind  CommentKind
	Selector     SelectorKind
	Deletion     DeletionKind
	Insert       InsertPos
	Constraint   ConstraintKind
	AssignedWith bool     // Attribute/Property: written with '=' instead of ':'
	Literal      bool     // Text: content was an unquoted literal
	Local        bool     // StyleBlock/ScriptBlock: declared inside an element
	Explicit     bool     // Inheritance: written with the "inherit" keyword
	FullyQual    bool     // references: name contained a namespace path
	Namespace    string   // references and inheritance: explicit namespace
	Symbol       string   // Import: imported symbol, empty for whole-file imports
	Alias        string   // Import: "as" alias
	Targets      []string // Deletion/Constraint targets
	Index        int      // IndexAccess
}

// NewNode returns a node of the given kind at the given source position.
func NewNode(kind NodeKind, src Source) *Node {
	return &Node{Kind: kind, Source: src}
}

// AppendChild appends c to the ordered children of n.
func (n *Node) AppendChild(c *Node) {
	n.Children = append(n.Children, c)
}

// AddAttr appends an attribute node.
func (n *Node) AddAttr(a *Node) {
	n.Attrs = append(n.Attrs, a)
}

// Attr returns the attribute with the given name, or nil.
func (n *Node) Attr(name string) *Node {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Clone deep-copies the node and its subtrees, keeping source positions.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Attrs = cloneNodes(n.Attrs)
	c.Children = cloneNodes(n.Children)
	c.Inherits = cloneNodes(n.Inherits)
	if n.Targets != nil {
		c.Targets = append([]string(nil), n.Targets...)
	}
	return &c
}

// CloneForUse deep-copies the node with every position rebased to the
// reference site, so errors in expanded bodies point at the use, not the
// definition.
func (n *Node) CloneForUse(site Source) *Node {
	c := n.Clone()
	c.rebase(site)
	return c
}

func (n *Node) rebase(site Source) {
	n.Source = site
	for _, a := range n.Attrs {
		a.rebase(site)
	}
	for _, ch := range n.Children {
		ch.rebase(site)
	}
	for _, in := range n.Inherits {
		in.rebase(site)
	}
}

func cloneNodes(ns []*Node) []*Node {
	if ns == nil {
		return nil
	}
	out := make([]*Node, len(ns))
	for i, n := range ns {
		out[i] = n.Clone()
	}
	return out
}

// Visitor is the uniform traversal contract shared by the resolution engine,
// the generators and validators. Enter is called before a node's children are
// visited; returning false skips them. Leave is called after.
type Visitor interface {
	Enter(n *Node) bool
	Leave(n *Node)
}

// Walk traverses n depth-first, visiting attributes before children.
func Walk(n *Node, v Visitor) {
	if n == nil {
		return
	}
	if !v.Enter(n) {
		v.Leave(n)
		return
	}
	for _, a := range n.Attrs {
		Walk(a, v)
	}
	for _, c := range n.Children {
		Walk(c, v)
	}
	v.Leave(n)
}

// inspector adapts a function to the Visitor interface.
type inspector func(n *Node) bool

func (f inspector) Enter(n *Node) bool { return f(n) }
func (f inspector) Leave(n *Node)      {}

// Inspect traverses n calling f on every node; returning false from f skips
// the node's children.
func Inspect(n *Node, f func(*Node) bool) {
	Walk(n, inspector(f))
}
