package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dpotapov/chtl/diag"
)

// Parser is a recursive-descent parser for CHTL fragments. Parse errors are
// non-fatal: on any expected-token mismatch the parser records a diagnostic,
// resynchronizes at the next ';' or matching '}' and continues, so a single
// run reports many errors.
//
// Declarations self-register in the global map as they are parsed; the map
// becomes read-only once parsing completes.
type Parser struct {
	src    string
	file   string
	toks   []Token
	i      int
	sink   *diag.Sink
	global *GlobalMap
	ns     []string // current namespace path
}

// NewParser prepares a parser over src. The global map may be shared with
// other files of the same compilation unit, never across units.
func NewParser(src, file string, global *GlobalMap, sink *diag.Sink) *Parser {
	if global == nil {
		global = NewGlobalMap()
	}
	if sink == nil {
		sink = diag.NewSink(file)
	}
	lx := NewLexer(src, file, sink)
	return &Parser{
		src:    src,
		file:   file,
		toks:   lx.Tokenize(),
		sink:   sink,
		global: global,
	}
}

// Global returns the symbol map the parser registers into.
func (p *Parser) Global() *GlobalMap { return p.global }

// SetNamespace fixes the root namespace for every declaration in this file.
// Module loaders use it to publish a module's symbols under its name.
func (p *Parser) SetNamespace(ns []string) {
	p.ns = append([]string(nil), ns...)
}

// Parse consumes the whole input and returns the document root.
func (p *Parser) Parse() *Node {
	root := NewNode(KindRoot, p.src0())
	for !p.atEnd() {
		n := p.parseTopLevel()
		if n != nil {
			root.AppendChild(n)
		}
	}
	root.Source.Span.Length = len(p.src)
	return root
}

// parseTopLevel handles one TopLevel production.
func (p *Parser) parseTopLevel() *Node {
	switch t := p.peek(); t.Kind {
	case KwTemplate:
		return p.parseTemplate(false)
	case KwCustom:
		return p.parseTemplate(true)
	case KwOrigin:
		return p.parseOrigin()
	case KwConfiguration:
		return p.parseConfiguration()
	case KwNamespace:
		return p.parseNamespace()
	case KwImport:
		return p.parseImport()
	case GeneratorComment:
		return p.parseGeneratorComment()
	case Ident:
		if t.Lexeme == "use" {
			return p.parseUse()
		}
		if t.Lexeme == "style" && p.peekAt(1).Kind == LBrace {
			return p.parseStyleBlock(false)
		}
		if t.Lexeme == "script" && p.peekAt(1).Kind == LBrace {
			return p.parseScriptBlock(false)
		}
		return p.parseElement()
	case EOF:
		return nil
	default:
		p.errorf(t, "unexpected %s at top level", t.Kind)
		p.advance()
		return nil
	}
}

// ---- declarations ----

// parseTemplate parses [Template] or [Custom] declarations:
//
//	[Template] @Style name { Property* }
//	[Template] @Element name { ElementContent* }
//	[Template] @Var name { VarBinding* }
//
// Customs share the shapes and additionally admit specialization operators
// inside the body.
func (p *Parser) parseTemplate(custom bool) *Node {
	kw := p.advance() // [Template] / [Custom]
	kind := KindTemplate
	if custom {
		kind = KindCustom
	}
	n := NewNode(kind, p.source(kw.Pos))

	tag, ok := p.expectTypeTag(TagStyle, TagElement, TagVar)
	if !ok {
		p.resync()
		return nil
	}
	n.Tag = tag

	name, ok := p.expectIdent("declaration name")
	if !ok {
		p.resync()
		return nil
	}
	n.Name = name.Lexeme

	if !p.expect(LBrace) {
		p.resync()
		return nil
	}

	switch tag {
	case TagStyle:
		p.parseStyleBody(n, custom)
	case TagElement:
		p.parseElementBody(n, custom)
	case TagVar:
		p.parseVarBody(n)
	}
	p.expect(RBrace)
	n.Source.Span.Length = p.prev().Pos.End() - n.Source.Span.Offset

	p.register(n)
	return n
}

// parseStyleBody fills a @Style template/custom body: properties, inherited
// style references and (for customs) deletion operators.
func (p *Parser) parseStyleBody(n *Node, custom bool) {
	for !p.check(RBrace) && !p.atEnd() {
		t := p.peek()
		switch {
		case t.Kind == AtStyle:
			n.Inherits = append(n.Inherits, p.parseInheritRef(false))
		case t.Kind == Ident && t.Lexeme == "inherit":
			p.advance()
			n.Inherits = append(n.Inherits, p.parseInheritRef(true))
		case t.Kind == Ident && t.Lexeme == "delete" && custom:
			if d := p.parseDeletion(); d != nil {
				n.AppendChild(d)
			}
		case t.Kind == Ident || t.Kind == Minus:
			if prop := p.parseProperty(); prop != nil {
				n.AppendChild(prop)
			}
		case t.Kind == GeneratorComment:
			n.AppendChild(p.parseGeneratorComment())
		default:
			p.errorf(t, "unexpected %s in style body", t.Kind)
			p.resync()
			return
		}
	}
}

// parseElementBody fills a @Element template/custom body.
func (p *Parser) parseElementBody(n *Node, custom bool) {
	for !p.check(RBrace) && !p.atEnd() {
		t := p.peek()
		switch {
		case t.Kind == Ident && t.Lexeme == "inherit":
			// Element bodies distinguish inheritance from usage by the
			// explicit keyword; a bare "@Element Name;" instantiates.
			p.advance()
			n.Inherits = append(n.Inherits, p.parseInheritRef(true))
		case t.Kind == Ident && t.Lexeme == "delete" && custom:
			if d := p.parseDeletion(); d != nil {
				n.AppendChild(d)
			}
		case t.Kind == Ident && t.Lexeme == "insert" && custom:
			if ins := p.parseInsertion(); ins != nil {
				n.AppendChild(ins)
			}
		default:
			c := p.parseElementContent()
			if c != nil {
				n.AppendChild(c)
			}
		}
	}
}

// parseVarBody fills a @Var group body with key/value bindings.
func (p *Parser) parseVarBody(n *Node) {
	for !p.check(RBrace) && !p.atEnd() {
		t := p.peek()
		if t.Kind != Ident && t.Kind != Minus {
			p.errorf(t, "expected variable name, got %s", t.Kind)
			p.resync()
			return
		}
		if prop := p.parseProperty(); prop != nil {
			n.AppendChild(prop)
		}
	}
}

// parseInheritRef parses "@Style Name;" / "@Element ns.Name;" in inheritance
// position.
func (p *Parser) parseInheritRef(explicit bool) *Node {
	start := p.peek()
	n := NewNode(KindInheritance, p.source(start.Pos))
	n.Explicit = explicit
	tag, ok := p.expectTypeTag(TagStyle, TagElement, TagVar)
	if !ok {
		p.resync()
		return n
	}
	n.Tag = tag
	n.Name, n.Namespace, n.FullyQual = p.parseQualifiedName()
	p.expect(Semicolon)
	return n
}

// parseQualifiedName reads a possibly dotted name; the namespace part is the
// path before the final component.
func (p *Parser) parseQualifiedName() (name, namespace string, qualified bool) {
	var parts []string
	for {
		t, ok := p.expectIdent("name")
		if !ok {
			break
		}
		parts = append(parts, t.Lexeme)
		if !p.check(Dot) {
			break
		}
		p.advance()
	}
	if len(parts) == 0 {
		return "", "", false
	}
	if len(parts) == 1 {
		return parts[0], "", false
	}
	return strings.Join(parts, NamespaceSep), strings.Join(parts[:len(parts)-1], NamespaceSep), true
}

// parseOrigin parses "[Origin] @Kind name? { raw }". The raw body is captured
// byte-for-byte and never re-parsed.
func (p *Parser) parseOrigin() *Node {
	kw := p.advance()
	n := NewNode(KindOrigin, p.source(kw.Pos))

	t := p.peek()
	switch t.Kind {
	case AtHtml:
		n.Tag = TagHtml
	case AtStyle:
		n.Tag = TagStyle
	case AtJavaScript:
		n.Tag = TagJavaScript
	case AtOther:
		n.Tag = TagCustomOrigin
		n.OriginTag = strings.TrimPrefix(t.Lexeme, "@")
	default:
		p.errorf(t, "expected origin type marker, got %s", t.Kind)
		p.resync()
		return nil
	}
	p.advance()

	if p.check(Ident) {
		n.Name = p.advance().Lexeme
	}

	// Use form: [Origin] @Kind Name;
	if p.check(Semicolon) {
		p.advance()
		if n.Name == "" {
			p.errorf(t, "origin reference requires a name")
			return nil
		}
		ref := NewNode(KindTemplateRef, n.Source)
		ref.Tag = n.Tag
		ref.OriginTag = n.OriginTag
		ref.Name = n.Name
		ref.Value = "origin"
		return ref
	}

	if !p.expect(LBrace) {
		p.resync()
		return nil
	}
	n.Value = p.captureRaw()
	p.register(n)
	return n
}

// parseConfiguration parses "[Configuration] name? { setting* }" where each
// setting is key = value; (or key : value;) and nested groups are
// "GroupName { setting* }".
func (p *Parser) parseConfiguration() *Node {
	kw := p.advance()
	n := NewNode(KindConfiguration, p.source(kw.Pos))
	if p.check(Ident) {
		n.Name = p.advance().Lexeme
	}
	if !p.expect(LBrace) {
		p.resync()
		return nil
	}
	p.parseConfigBody(n)
	p.expect(RBrace)
	p.register(n)
	return n
}

func (p *Parser) parseConfigBody(n *Node) {
	for !p.check(RBrace) && !p.atEnd() {
		t := p.peek()
		if t.Kind != Ident {
			p.errorf(t, "expected setting name, got %s", t.Kind)
			p.resync()
			return
		}
		if p.peekAt(1).Kind == LBrace {
			// Option group.
			g := NewNode(KindConfiguration, p.source(t.Pos))
			g.Name = p.advance().Lexeme
			p.advance() // '{'
			p.parseConfigBody(g)
			p.expect(RBrace)
			n.AppendChild(g)
			continue
		}
		if prop := p.parseProperty(); prop != nil {
			n.AppendChild(prop)
		}
	}
}

// parseNamespace parses "[Namespace] name { TopLevel* }". Nested namespaces
// are allowed; constraints attach as children.
func (p *Parser) parseNamespace() *Node {
	kw := p.advance()
	n := NewNode(KindNamespace, p.source(kw.Pos))
	name, ok := p.expectIdent("namespace name")
	if !ok {
		p.resync()
		return nil
	}
	n.Name = name.Lexeme
	if !p.expect(LBrace) {
		p.resync()
		return nil
	}
	p.ns = append(p.ns, n.Name)
	for !p.check(RBrace) && !p.atEnd() {
		if t := p.peek(); t.Kind == Ident && (t.Lexeme == "except" || t.Lexeme == "inherit") && p.isConstraintPosition() {
			if c := p.parseConstraint(); c != nil {
				n.AppendChild(c)
			}
			continue
		}
		if c := p.parseTopLevel(); c != nil {
			n.AppendChild(c)
		}
	}
	p.ns = p.ns[:len(p.ns)-1]
	p.expect(RBrace)
	return n
}

// isConstraintPosition distinguishes an "except"/"inherit" constraint
// statement from an element that happens to carry those tag names.
func (p *Parser) isConstraintPosition() bool {
	return p.peekAt(1).Kind != LBrace
}

// parseConstraint parses "except @Template;" style statements.
func (p *Parser) parseConstraint() *Node {
	kw := p.advance()
	n := NewNode(KindConstraint, p.source(kw.Pos))
	if kw.Lexeme == "inherit" {
		n.Constraint = ConsInherit
	} else {
		n.Constraint = ConsExcept
	}
	for !p.check(Semicolon) && !p.atEnd() {
		t := p.advance()
		switch t.Kind {
		case AtStyle, AtElement, AtVar, AtHtml, AtJavaScript, AtOther:
			n.Targets = append(n.Targets, t.Lexeme)
		case KwTemplate, KwCustom, KwOrigin:
			n.Targets = append(n.Targets, t.Lexeme)
		case Ident:
			n.Targets = append(n.Targets, t.Lexeme)
		case Comma:
		default:
			p.errorf(t, "unexpected %s in constraint", t.Kind)
		}
	}
	p.expect(Semicolon)
	return n
}

// parseImport parses "[Import] @Kind symbol? from path (as alias)? ;".
func (p *Parser) parseImport() *Node {
	kw := p.advance()
	n := NewNode(KindImport, p.source(kw.Pos))

	t := p.peek()
	switch t.Kind {
	case AtChtl:
		n.Tag = TagChtl
	case AtCJmod:
		n.Tag = TagCJmod
	case AtStyle:
		n.Tag = TagStyle
	case AtElement:
		n.Tag = TagElement
	case AtVar:
		n.Tag = TagVar
	case AtHtml:
		n.Tag = TagHtml
	case AtJavaScript:
		n.Tag = TagJavaScript
	default:
		p.errorf(t, "expected import type marker, got %s", t.Kind)
		p.resync()
		return nil
	}
	p.advance()

	// Optional symbol before "from".
	if p.check(Ident) && p.peek().Lexeme != "from" {
		n.Symbol = p.advance().Lexeme
	}

	if t := p.peek(); t.Kind == Ident && t.Lexeme == "from" {
		p.advance()
	} else {
		p.errorf(t, "expected 'from' in import")
		p.resync()
		return nil
	}

	switch t := p.peek(); t.Kind {
	case String:
		n.Value = p.advance().Lexeme
	case Ident:
		// Module names may be dotted (Chtholly.Space).
		name, _, _ := p.parseQualifiedName()
		n.Value = name
	default:
		p.errorf(t, "expected import path, got %s", t.Kind)
		p.resync()
		return nil
	}

	if t := p.peek(); t.Kind == Ident && t.Lexeme == "as" {
		p.advance()
		if alias, ok := p.expectIdent("import alias"); ok {
			n.Alias = alias.Lexeme
		}
	}
	p.expect(Semicolon)
	return n
}

// parseUse parses the "use html5;" directive.
func (p *Parser) parseUse() *Node {
	kw := p.advance()
	n := NewNode(KindUse, p.source(kw.Pos))
	if v, ok := p.expectIdent("use target"); ok {
		n.Value = v.Lexeme
	}
	p.expect(Semicolon)
	return n
}

// ---- elements ----

// parseElement parses "ident { ElementContent* }".
func (p *Parser) parseElement() *Node {
	name := p.advance()
	n := NewNode(KindElement, p.source(name.Pos))
	n.Name = name.Lexeme

	if !p.expect(LBrace) {
		p.resync()
		return nil
	}
	for !p.check(RBrace) && !p.atEnd() {
		c := p.parseElementContent()
		if c != nil {
			if c.Kind == KindAttribute {
				n.AddAttr(c)
			} else {
				n.AppendChild(c)
			}
		}
	}
	if !p.expect(RBrace) {
		return n // partially parsed node
	}
	n.Source.Span.Length = p.prev().Pos.End() - n.Source.Span.Offset
	return n
}

// parseElementContent handles one item inside an element body: attribute,
// text block, style block, script block, nested element, usage node, origin
// embed, or generator comment.
func (p *Parser) parseElementContent() *Node {
	t := p.peek()
	switch t.Kind {
	case GeneratorComment:
		return p.parseGeneratorComment()
	case AtStyle, AtElement, AtVar:
		return p.parseUsage()
	case KwOrigin:
		return p.parseOrigin()
	case Ident:
		switch {
		case t.Lexeme == "text" && p.peekAt(1).Kind == LBrace:
			return p.parseText()
		case t.Lexeme == "style" && p.peekAt(1).Kind == LBrace:
			return p.parseStyleBlock(true)
		case t.Lexeme == "script" && p.peekAt(1).Kind == LBrace:
			return p.parseScriptBlock(true)
		case p.peekAt(1).Kind == Colon || p.peekAt(1).Kind == Equals:
			return p.parseAttribute()
		case p.peekAt(1).Kind == LBrace:
			return p.parseElement()
		}
		p.errorf(t, "unexpected identifier %q in element body", t.Lexeme)
		p.advance()
		p.resync()
		return nil
	default:
		p.errorf(t, "unexpected %s in element body", t.Kind)
		p.advance()
		p.resync()
		return nil
	}
}

// parseAttribute parses "name : value ;" or "name = value ;".
func (p *Parser) parseAttribute() *Node {
	name := p.advance()
	n := NewNode(KindAttribute, p.source(name.Pos))
	n.Name = name.Lexeme

	sep := p.advance() // ':' or '='
	n.AssignedWith = sep.Kind == Equals

	var toks []Token
	for !p.check(Semicolon) && !p.check(RBrace) && !p.atEnd() {
		toks = append(toks, p.advance())
	}
	if len(toks) == 0 {
		p.errorf(sep, "expected attribute value")
	}
	if len(toks) == 1 && toks[0].Kind == String {
		n.Value = toks[0].Lexeme
	} else {
		n.Value = JoinValueTokens(toks)
		n.Literal = true
	}
	p.match(Semicolon)
	return n
}

// parseText parses "text { content }" capturing the body verbatim.
func (p *Parser) parseText() *Node {
	kw := p.advance() // text
	n := NewNode(KindText, p.source(kw.Pos))
	p.expect(LBrace)
	raw := strings.TrimSpace(p.captureRaw())
	if s, ok := unquoteWhole(raw); ok {
		n.Value = s
	} else {
		n.Value = raw
		n.Literal = true
	}
	return n
}

// parseStyleBlock parses "style { ... }" either inside an element (local) or
// at the top level (global). Content: properties, selectors with nested rule
// bodies, template/custom style usages.
func (p *Parser) parseStyleBlock(local bool) *Node {
	kw := p.advance() // style
	n := NewNode(KindStyleBlock, p.source(kw.Pos))
	n.Local = local
	p.expect(LBrace)
	p.parseStyleRuleBody(n)
	p.expect(RBrace)
	return n
}

// parseStyleRuleBody parses the inside of a style block or selector body.
func (p *Parser) parseStyleRuleBody(n *Node) {
	for !p.check(RBrace) && !p.atEnd() {
		t := p.peek()
		switch {
		case t.Kind == AtStyle || t.Kind == AtVar:
			n.AppendChild(p.parseUsage())
		case t.Kind == Ident && t.Lexeme == "delete":
			if d := p.parseDeletion(); d != nil {
				n.AppendChild(d)
			}
		case t.Kind == Dot, t.Kind == Hash, t.Kind == Ampersand:
			if sel := p.parseSelector(); sel != nil {
				n.AppendChild(sel)
			}
		case t.Kind == GeneratorComment:
			n.AppendChild(p.parseGeneratorComment())
		case t.Kind == Ident || t.Kind == Minus:
			// Bare element selector ("body { ... }") vs property
			// ("margin: 0;"): a following '{' means selector.
			if p.peekAt(1).Kind == LBrace {
				if sel := p.parseSelector(); sel != nil {
					n.AppendChild(sel)
				}
			} else if prop := p.parseProperty(); prop != nil {
				n.AppendChild(prop)
			}
		default:
			p.errorf(t, "unexpected %s in style block", t.Kind)
			p.advance()
			p.resync()
			return
		}
	}
}

// parseSelector parses one selector with its rule body. Forms: class (.x),
// id (#x), ampersand (&:hover, &::before), bare element.
func (p *Parser) parseSelector() *Node {
	start := p.peek()
	n := NewNode(KindSelector, p.source(start.Pos))

	var text strings.Builder
	switch start.Kind {
	case Dot:
		p.advance()
		n.Selector = SelClass
		text.WriteByte('.')
		if t, ok := p.expectIdent("class name"); ok {
			text.WriteString(t.Lexeme)
		}
	case Hash:
		p.advance()
		n.Selector = SelID
		text.WriteByte('#')
		if t, ok := p.expectIdent("id"); ok {
			text.WriteString(t.Lexeme)
		}
	case Ampersand:
		p.advance()
		n.Selector = SelAmpersand
		text.WriteByte('&')
		for p.check(Colon) {
			p.advance()
			text.WriteByte(':')
			if p.check(Colon) {
				p.advance()
				text.WriteByte(':')
				n.Selector = SelAmpersand // pseudo-element keeps ampersand kind
			}
			if t, ok := p.expectIdent("pseudo selector"); ok {
				text.WriteString(t.Lexeme)
			}
		}
	default:
		p.advance()
		n.Selector = SelElement
		text.WriteString(start.Lexeme)
	}
	n.Name = text.String()

	if !p.expect(LBrace) {
		p.resync()
		return nil
	}
	p.parseStyleRuleBody(n)
	p.expect(RBrace)
	return n
}

// parseProperty parses "name : value ;" or "name = value ;" in a style,
// var-group or configuration body.
func (p *Parser) parseProperty() *Node {
	var nameParts []string
	start := p.peek()
	for p.check(Ident) || p.check(Minus) {
		nameParts = append(nameParts, p.advance().Lexeme)
	}
	n := NewNode(KindProperty, p.source(start.Pos))
	n.Name = strings.Join(nameParts, "")

	sep := p.peek()
	if sep.Kind != Colon && sep.Kind != Equals {
		p.errorf(sep, "expected ':' or '=' after %q", n.Name)
		p.resync()
		return nil
	}
	p.advance()
	n.AssignedWith = sep.Kind == Equals

	var toks []Token
	for !p.check(Semicolon) && !p.check(RBrace) && !p.atEnd() {
		toks = append(toks, p.advance())
	}
	if len(toks) == 1 && toks[0].Kind == String {
		n.Value = `"` + toks[0].Lexeme + `"`
	} else {
		n.Value = JoinValueTokens(toks)
	}
	p.match(Semicolon)
	return n
}

// parseScriptBlock parses "script { ... }" capturing the body verbatim. The
// body is compiled by the CHTL-JS or JS sub-compiler, never here.
func (p *Parser) parseScriptBlock(local bool) *Node {
	kw := p.advance() // script
	n := NewNode(KindScriptBlock, p.source(kw.Pos))
	n.Local = local
	p.expect(LBrace)
	n.Value = p.captureRaw()
	return n
}

// parseUsage parses a usage node: "@Style name;", "@Element name;",
// "@Var name;", or "@Element name { specialization* }".
func (p *Parser) parseUsage() *Node {
	marker := p.advance()
	var tag TypeTag
	switch marker.Kind {
	case AtStyle:
		tag = TagStyle
	case AtElement:
		tag = TagElement
	case AtVar:
		tag = TagVar
	default:
		p.errorf(marker, "unexpected %s", marker.Kind)
		return nil
	}

	n := NewNode(KindTemplateRef, p.source(marker.Pos))
	n.Tag = tag
	n.Name, n.Namespace, n.FullyQual = p.parseQualifiedName()

	if p.check(LBrace) {
		// Specialization body makes this a custom reference.
		n.Kind = KindCustomRef
		p.advance()
		p.parseSpecializationBody(n)
		p.expect(RBrace)
		return n
	}
	p.expect(Semicolon)
	return n
}

// parseSpecializationBody parses per-reference specializations on a custom
// use site: property overrides, deletions, insertions and indexed child
// overrides.
func (p *Parser) parseSpecializationBody(n *Node) {
	for !p.check(RBrace) && !p.atEnd() {
		t := p.peek()
		switch {
		case t.Kind == Ident && t.Lexeme == "delete":
			if d := p.parseDeletion(); d != nil {
				n.AppendChild(d)
			}
		case t.Kind == Ident && t.Lexeme == "insert":
			if ins := p.parseInsertion(); ins != nil {
				n.AppendChild(ins)
			}
		case t.Kind == Ident && p.isIndexedOverride():
			if ov := p.parseIndexedOverride(); ov != nil {
				n.AppendChild(ov)
			}
		case t.Kind == Ident && p.peekAt(1).Kind == LBrace:
			if el := p.parseElement(); el != nil {
				n.AppendChild(el)
			}
		case t.Kind == Ident || t.Kind == Minus:
			if prop := p.parseProperty(); prop != nil {
				n.AppendChild(prop)
			}
		case t.Kind == AtStyle, t.Kind == AtElement, t.Kind == AtVar:
			n.AppendChild(p.parseUsage())
		default:
			p.errorf(t, "unexpected %s in specialization", t.Kind)
			p.advance()
			p.resync()
			return
		}
	}
}

// isIndexedOverride reports "name[" at the cursor.
func (p *Parser) isIndexedOverride() bool {
	return p.peekAt(1).Kind == Unquoted && p.peekAt(1).Lexeme == "["
}

// parseIndexedOverride parses "name[i] { body }".
func (p *Parser) parseIndexedOverride() *Node {
	name := p.advance()
	n := NewNode(KindIndexAccess, p.source(name.Pos))
	n.Name = name.Lexeme
	idx, ok := p.parseIndexSuffix()
	if !ok {
		p.resync()
		return nil
	}
	n.Index = idx
	if !p.expect(LBrace) {
		p.resync()
		return nil
	}
	for !p.check(RBrace) && !p.atEnd() {
		c := p.parseElementContent()
		if c != nil {
			n.AppendChild(c)
		}
	}
	p.expect(RBrace)
	return n
}

// parseIndexSuffix consumes "[n]" returning n.
func (p *Parser) parseIndexSuffix() (int, bool) {
	if !(p.check(Unquoted) && p.peek().Lexeme == "[") {
		return 0, false
	}
	p.advance()
	num := p.peek()
	if num.Kind != Number {
		p.errorf(num, "expected index, got %s", num.Kind)
		return 0, false
	}
	p.advance()
	idx, err := strconv.Atoi(num.Lexeme)
	if err != nil {
		p.errorf(num, "bad index %q", num.Lexeme)
		return 0, false
	}
	if !(p.check(Unquoted) && p.peek().Lexeme == "]") {
		p.errorf(p.peek(), "expected ']'")
		return 0, false
	}
	p.advance()
	return idx, true
}

// parseDeletion parses "delete target (, target)* ;". Targets may be property
// names, element names with optional index, or @-prefixed inheritance
// references.
func (p *Parser) parseDeletion() *Node {
	kw := p.advance() // delete
	n := NewNode(KindDeletion, p.source(kw.Pos))
	n.Deletion = DelProperty
	for !p.check(Semicolon) && !p.atEnd() {
		t := p.peek()
		switch t.Kind {
		case AtStyle, AtElement, AtVar:
			marker := p.advance()
			name, _, _ := p.parseQualifiedName()
			n.Targets = append(n.Targets, marker.Lexeme+" "+name)
			if marker.Kind == AtElement {
				n.Deletion = DelElementInheritance
			} else {
				n.Deletion = DelInheritance
			}
		case Ident:
			name := p.advance().Lexeme
			if p.check(Unquoted) && p.peek().Lexeme == "[" {
				if idx, ok := p.parseIndexSuffix(); ok {
					name = fmt.Sprintf("%s[%d]", name, idx)
					n.Deletion = DelElement
				}
			}
			n.Targets = append(n.Targets, name)
		case Comma:
			p.advance()
		default:
			p.errorf(t, "unexpected %s in delete", t.Kind)
			p.advance()
		}
	}
	p.expect(Semicolon)
	return n
}

// parseInsertion parses:
//
//	insert after  target { body }
//	insert before target { body }
//	insert replace target { body }
//	insert at top { body }
//	insert at bottom { body }
func (p *Parser) parseInsertion() *Node {
	kw := p.advance() // insert
	n := NewNode(KindInsertion, p.source(kw.Pos))

	pos, ok := p.expectIdent("insertion position")
	if !ok {
		p.resync()
		return nil
	}
	switch pos.Lexeme {
	case "after":
		n.Insert = InsAfter
	case "before":
		n.Insert = InsBefore
	case "replace":
		n.Insert = InsReplace
	case "at":
		where, ok2 := p.expectIdent("'top' or 'bottom'")
		if !ok2 {
			p.resync()
			return nil
		}
		switch where.Lexeme {
		case "top":
			n.Insert = InsAtTop
		case "bottom":
			n.Insert = InsAtBottom
		default:
			p.errorf(where, "expected 'top' or 'bottom', got %q", where.Lexeme)
			p.resync()
			return nil
		}
	default:
		p.errorf(pos, "bad insertion position %q", pos.Lexeme)
		p.resync()
		return nil
	}

	if n.Insert != InsAtTop && n.Insert != InsAtBottom {
		target, ok2 := p.expectIdent("insertion target")
		if !ok2 {
			p.resync()
			return nil
		}
		name := target.Lexeme
		if p.check(Unquoted) && p.peek().Lexeme == "[" {
			if idx, ok3 := p.parseIndexSuffix(); ok3 {
				name = fmt.Sprintf("%s[%d]", name, idx)
			}
		}
		n.Name = name
	}

	if !p.expect(LBrace) {
		p.resync()
		return nil
	}
	for !p.check(RBrace) && !p.atEnd() {
		c := p.parseElementContent()
		if c != nil {
			n.AppendChild(c)
		}
	}
	p.expect(RBrace)
	return n
}

func (p *Parser) parseGeneratorComment() *Node {
	t := p.advance()
	n := NewNode(KindComment, p.source(t.Pos))
	n.CommentKind = CommentGenerator
	n.Value = t.Lexeme
	return n
}

// ---- raw capture ----

// captureRaw consumes source bytes after an already-consumed '{' up to its
// balanced '}', skipping braces inside strings and comments. The token cursor
// is advanced past everything inside, including the closing brace.
func (p *Parser) captureRaw() string {
	start := p.prev().Pos.End() // byte after '{'
	depth := 1
	i := start
	for i < len(p.src) {
		c := p.src[i]
		switch c {
		case '"', '\'':
			i = skipString(p.src, i)
			continue
		case '/':
			if i+1 < len(p.src) && p.src[i+1] == '/' {
				for i < len(p.src) && p.src[i] != '\n' {
					i++
				}
				continue
			}
			if i+1 < len(p.src) && p.src[i+1] == '*' {
				i += 2
				for i+1 < len(p.src) && !(p.src[i] == '*' && p.src[i+1] == '/') {
					i++
				}
				i += 2
				continue
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				raw := p.src[start:i]
				p.skipTokensUntil(i + 1)
				return raw
			}
		}
		i++
	}
	p.errorf(p.prev(), "unterminated block")
	raw := p.src[start:]
	p.skipTokensUntil(len(p.src))
	return raw
}

// skipString returns the index just past a string literal starting at i.
func skipString(src string, i int) int {
	quote := src[i]
	i++
	for i < len(src) {
		if src[i] == '\\' {
			i += 2
			continue
		}
		if src[i] == quote {
			return i + 1
		}
		i++
	}
	return i
}

// skipTokensUntil advances the token cursor past all tokens that start before
// the byte offset.
func (p *Parser) skipTokensUntil(offset int) {
	for p.i < len(p.toks) && p.toks[p.i].Kind != EOF && p.toks[p.i].Pos.Offset < offset {
		p.i++
	}
}

// ---- registration ----

// register adds a declaration to the global map under the current namespace.
func (p *Parser) register(n *Node) {
	kind, ok := objectKindFor(n)
	if !ok {
		return
	}
	name := n.Name
	if name == "" && n.Kind == KindConfiguration {
		name = "default"
	}
	obj := &GlobalObject{
		Kind:          kind,
		QualifiedName: joinName(p.ns, name),
		Namespace:     append([]string(nil), p.ns...),
		File:          p.file,
		Pos:           n.Source.Span,
		Body:          n,
	}
	if err := p.global.Register(obj); err != nil {
		p.sink.Report(diag.Diagnostic{
			Kind:      diag.Parse,
			File:      p.file,
			Line:      n.Source.Span.Line,
			Column:    n.Source.Span.Column,
			Message:   err.Error(),
			Component: "parser",
		})
	}
}

// ---- token plumbing ----

func (p *Parser) src0() Source {
	return Source{File: p.file, Span: Span{Line: 1, Column: 1}}
}

func (p *Parser) source(sp Span) Source {
	return Source{File: p.file, Span: sp}
}

func (p *Parser) peek() Token {
	if p.i >= len(p.toks) {
		return Token{Kind: EOF}
	}
	return p.toks[p.i]
}

func (p *Parser) peekAt(n int) Token {
	if p.i+n >= len(p.toks) {
		return Token{Kind: EOF}
	}
	return p.toks[p.i+n]
}

func (p *Parser) prev() Token {
	if p.i == 0 {
		return p.toks[0]
	}
	return p.toks[p.i-1]
}

func (p *Parser) advance() Token {
	t := p.peek()
	if p.i < len(p.toks) {
		p.i++
	}
	return t
}

func (p *Parser) check(kind TokenKind) bool { return p.peek().Kind == kind }

func (p *Parser) match(kind TokenKind) bool {
	if p.check(kind) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(kind TokenKind) bool {
	if p.match(kind) {
		return true
	}
	p.errorf(p.peek(), "expected %s, got %s", kind, p.peek().Kind)
	return false
}

func (p *Parser) expectIdent(what string) (Token, bool) {
	if p.check(Ident) {
		return p.advance(), true
	}
	p.errorf(p.peek(), "expected %s, got %s", what, p.peek().Kind)
	return Token{}, false
}

func (p *Parser) expectTypeTag(allowed ...TypeTag) (TypeTag, bool) {
	t := p.peek()
	var tag TypeTag
	switch t.Kind {
	case AtStyle:
		tag = TagStyle
	case AtElement:
		tag = TagElement
	case AtVar:
		tag = TagVar
	default:
		p.errorf(t, "expected type marker, got %s", t.Kind)
		return TagNone, false
	}
	for _, a := range allowed {
		if tag == a {
			p.advance()
			return tag, true
		}
	}
	p.errorf(t, "type marker %s not allowed here", t.Kind)
	return TagNone, false
}

func (p *Parser) atEnd() bool { return p.peek().Kind == EOF }

// resync skips ahead to the next ';' or a '}' so parsing can continue after
// an error.
func (p *Parser) resync() {
	for !p.atEnd() {
		switch p.peek().Kind {
		case Semicolon:
			p.advance()
			return
		case RBrace:
			return
		}
		p.advance()
	}
}

func (p *Parser) errorf(at Token, format string, args ...any) {
	p.sink.Report(diag.Diagnostic{
		Kind:      diag.Parse,
		File:      p.file,
		Line:      at.Pos.Line,
		Column:    at.Pos.Column,
		Message:   fmt.Sprintf(format, args...),
		Component: "parser",
	})
}

// unquoteWhole returns the unquoted content when raw is exactly one quoted
// string.
func unquoteWhole(raw string) (string, bool) {
	if len(raw) >= 2 {
		q := raw[0]
		if (q == '"' || q == '\'') && raw[len(raw)-1] == q &&
			!strings.ContainsRune(raw[1:len(raw)-1], rune(q)) {
			return raw[1 : len(raw)-1], true
		}
	}
	return "", false
}
