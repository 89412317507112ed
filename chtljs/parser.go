package chtljs

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html/atom"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

// Parser turns CHTL-JS fragment content into an AST. Plain JavaScript flows
// through as raw nodes; dialect constructs become typed nodes. The state
// machine validates every construct transition; an invalid transition records
// an error and parsing resumes from the initial state.
type Parser struct {
	src  string
	file string
	base syntax.Span // fragment origin, for error positions
	toks []Token
	i    int
	sink *diag.Sink
	sm   *machine

	rawStart int

	// vir names declared so far; "name->method()" resolves through this.
	virs map[string]bool
}

// NewParser prepares a parser over fragment content. moduleKeywords forwards
// the CJMOD keyword set from the scanner registry.
func NewParser(src, file string, base syntax.Span, moduleKeywords []string, sink *diag.Sink) *Parser {
	if sink == nil {
		sink = diag.NewSink(file)
	}
	lx := NewLexer(src, file, moduleKeywords, sink)
	return &Parser{
		src:  src,
		file: file,
		base: base,
		toks: lx.Tokenize(),
		sink: sink,
		sm:   newMachine(file, sink),
		virs: make(map[string]bool),
	}
}

// Parse consumes the whole fragment and returns the script root.
func (p *Parser) Parse() *Node {
	root := NewNode(KindScript, p.source(0, 0))
	for !p.atEnd() {
		t := p.peek()
		switch t.Kind {
		case OpenSelector:
			p.flushRaw(root, t.Start)
			root.AppendTo(p.parseSelectorExpr())
		case KwVir:
			p.flushRaw(root, t.Start)
			root.AppendTo(p.parseVirDecl())
		case KwListen, KwDelegate, KwAnimate:
			p.flushRaw(root, t.Start)
			root.AppendTo(p.parseConstructCall(nil))
		case KwModule:
			p.flushRaw(root, t.Start)
			root.AppendTo(p.parseForeign())
		case Ident:
			if p.peekAt(1).Kind == Arrow {
				p.flushRaw(root, t.Start)
				root.AppendTo(p.parseIdentArrow())
				continue
			}
			p.advance()
		default:
			p.advance()
		}
	}
	p.flushRaw(root, len(p.src))
	return root
}

// AppendTo appends a child unless it is nil.
func (n *Node) AppendTo(c *Node) {
	if c != nil {
		n.Children = append(n.Children, c)
	}
}

// flushRaw emits the pending raw JS up to the byte offset end.
func (p *Parser) flushRaw(root *Node, end int) {
	if end <= p.rawStart {
		return
	}
	text := p.src[p.rawStart:end]
	p.rawStart = end
	if strings.TrimSpace(text) == "" && len(root.Children) == 0 {
		// Leading whitespace folds into the first construct.
		return
	}
	raw := NewNode(KindRaw, p.source(p.rawStart-len(text), len(text)))
	raw.Text = text
	root.AppendTo(raw)
}

// markConsumed advances the raw cursor past the last consumed token.
func (p *Parser) markConsumed() {
	if p.i > 0 {
		p.rawStart = p.toks[p.i-1].End
	}
}

// ---- enhanced selectors ----

// parseSelectorExpr parses "{{ selector }}" plus any arrow chain hanging off
// it.
func (p *Parser) parseSelectorExpr() *Node {
	open := p.advance() // {{
	p.sm.on(open)

	sel := p.parseSelectorBody(open)
	p.markConsumed()

	if p.peek().Kind == Arrow {
		return p.parseArrowChain(sel, "")
	}
	p.sm.reset()
	return sel
}

// parseSelectorBody consumes tokens through "}}" and classifies the selector.
func (p *Parser) parseSelectorBody(open Token) *Node {
	start := open.End
	end := start
	for !p.atEnd() && p.peek().Kind != CloseSelector {
		end = p.advance().End
	}
	if p.peek().Kind == CloseSelector {
		closeTok := p.advance()
		p.sm.on(closeTok)
	} else {
		p.errorf(open, "unterminated enhanced selector")
		p.sm.reset()
	}

	text := strings.TrimSpace(p.src[start:end])
	n := NewNode(KindSelector, p.source(open.Start, end-open.Start))
	n.Text = text
	n.Selector, n.Index = classifySelector(text)
	return n
}

// classifySelector implements the inference rules: a leading '.' or '#' pins
// the kind; "word[n]" is indexed; compound text is complex; a bare word is a
// tag when it names a known HTML tag, otherwise the decision is deferred to
// generated runtime code (mixed).
func classifySelector(text string) (SelectorKind, int) {
	switch {
	case text == "":
		return SelComplex, 0
	case strings.HasPrefix(text, "."):
		if strings.ContainsAny(text[1:], " .#>[:,") {
			return SelComplex, 0
		}
		return SelClass, 0
	case strings.HasPrefix(text, "#"):
		if strings.ContainsAny(text[1:], " .#>[:,") {
			return SelComplex, 0
		}
		return SelID, 0
	}
	if i := strings.IndexByte(text, '['); i > 0 && strings.HasSuffix(text, "]") {
		if idx, err := strconv.Atoi(text[i+1 : len(text)-1]); err == nil {
			if !strings.ContainsAny(text[:i], " .#>:,") {
				return SelIndexed, idx
			}
		}
	}
	if strings.ContainsAny(text, " .#>[:,") {
		return SelComplex, 0
	}
	if a := atom.Lookup([]byte(strings.ToLower(text))); a != 0 {
		return SelTag, 0
	}
	return SelMixed, 0
}

// ---- arrow access ----

// parseIdentArrow parses "name->..." where name is a plain identifier: a
// virtual object call when the name is a declared vir, arrow access
// otherwise.
func (p *Parser) parseIdentArrow() *Node {
	ident := p.advance()
	target := NewNode(KindRaw, p.source(ident.Start, ident.End-ident.Start))
	target.Text = ident.Lexeme
	return p.parseArrowChain(target, ident.Lexeme)
}

// parseArrowChain parses "->method(args)" chains off a target. Method names
// listen/delegate/animate produce their construct nodes; a chain rooted at a
// declared vir name produces a virtual call.
func (p *Parser) parseArrowChain(target *Node, targetName string) *Node {
	n := NewNode(KindArrowAccess, target.Source)
	n.Target = target

	for p.peek().Kind == Arrow {
		arrow := p.advance()
		p.sm.on(arrow)

		method := p.peek()
		switch method.Kind {
		case KwListen, KwDelegate, KwAnimate:
			p.sm.on(method)
			call := p.parseConstructCall(target)
			p.markConsumed()
			p.sm.reset()
			return call
		case Ident:
			p.sm.on(method)
			p.advance()
			args, hasArgs := p.parseArgList()
			if targetName != "" && p.virs[targetName] && len(n.Calls) == 0 {
				p.markConsumed()
				p.sm.reset()
				vc := NewNode(KindVirCall, target.Source)
				vc.Text = targetName
				vc.Method = method.Lexeme
				if hasArgs {
					vc.Args = args
				}
				return p.maybeChainMore(vc)
			}
			n.Calls = append(n.Calls, Call{Method: method.Lexeme, Args: args})
		default:
			p.errorf(method, "expected method name after '->', got %s", method.Kind)
			p.sm.reset()
			p.markConsumed()
			return n
		}
	}
	p.markConsumed()
	p.sm.reset()
	return n
}

// maybeChainMore continues an arrow chain after a virtual call
// ("v->method()->then()" keeps the tail as arrow access).
func (p *Parser) maybeChainMore(vc *Node) *Node {
	if p.peek().Kind != Arrow {
		return vc
	}
	return p.parseArrowChain(vc, "")
}

// parseArgList consumes "( raw )" returning the raw argument text.
func (p *Parser) parseArgList() (string, bool) {
	if p.peek().Kind != LParen {
		return "", false
	}
	open := p.advance()
	depth := 1
	start := open.End
	end := start
	for !p.atEnd() && depth > 0 {
		t := p.advance()
		switch t.Kind {
		case LParen:
			depth++
		case RParen:
			depth--
			if depth == 0 {
				return p.src[start:end], true
			}
		}
		end = t.End
	}
	p.errorf(open, "unterminated argument list")
	return p.src[start:end], true
}

// ---- listen / delegate / animate ----

// parseConstructCall parses listen/delegate/animate "( { bindings } )".
// target is nil for standalone calls.
func (p *Parser) parseConstructCall(target *Node) *Node {
	kw := p.advance()
	var kind NodeKind
	switch kw.Kind {
	case KwListen:
		kind = KindListen
	case KwDelegate:
		kind = KindDelegate
	case KwAnimate:
		kind = KindAnimate
	default:
		p.errorf(kw, "unexpected %s", kw.Kind)
		return nil
	}
	n := NewNode(kind, p.source(kw.Start, kw.End-kw.Start))
	n.Target = target

	if p.peek().Kind != LParen {
		p.errorf(kw, "expected '(' after %s", kw.Lexeme)
		p.markConsumed()
		return n
	}
	p.advance() // (
	if p.peek().Kind == LBrace {
		p.advance() // {
		p.parseBindings(n)
		if p.peek().Kind == RBrace {
			p.advance()
		} else {
			p.errorf(kw, "unterminated %s block", kw.Lexeme)
		}
	}
	if p.peek().Kind == RParen {
		closeTok := p.advance()
		p.sm.on(closeTok)
	} else {
		p.errorf(kw, "expected ')' to close %s", kw.Lexeme)
	}
	p.markConsumed()

	if kind == KindDelegate {
		p.splitDelegateTargets(n)
	}
	return n
}

// parseBindings reads "key: value," pairs; values are raw JS captured to the
// next comma at depth zero.
func (p *Parser) parseBindings(n *Node) {
	for !p.atEnd() && p.peek().Kind != RBrace {
		key := p.peek()
		if key.Kind != Ident && key.Kind != String && key.Kind != KwListen &&
			key.Kind != KwDelegate && key.Kind != KwAnimate {
			p.errorf(key, "expected binding key, got %s", key.Kind)
			p.advance()
			continue
		}
		p.advance()
		if p.peek().Kind != Colon {
			p.errorf(key, "expected ':' after binding key %q", key.Lexeme)
			p.skipToBindingEnd()
			continue
		}
		colon := p.advance()

		depth := 0
		start := colon.End
		end := start
		for !p.atEnd() {
			t := p.peek()
			if depth == 0 && (t.Kind == Comma || t.Kind == RBrace) {
				break
			}
			switch t.Kind {
			case LBrace, LParen, LBracket, OpenSelector:
				depth++
			case RBrace, RParen, RBracket, CloseSelector:
				depth--
			}
			end = p.advance().End
		}
		keyText := key.Lexeme
		if key.Kind == String {
			keyText = strings.Trim(keyText, "\"'`")
		}
		n.Bindings = append(n.Bindings, Binding{
			Key:   keyText,
			Value: strings.TrimSpace(p.src[start:end]),
		})
		if p.peek().Kind == Comma {
			p.advance()
		}
	}
}

func (p *Parser) skipToBindingEnd() {
	depth := 0
	for !p.atEnd() {
		t := p.peek()
		if depth == 0 && (t.Kind == Comma || t.Kind == RBrace) {
			return
		}
		switch t.Kind {
		case LBrace, LParen, LBracket:
			depth++
		case RBrace, RParen, RBracket:
			depth--
		}
		p.advance()
	}
}

// splitDelegateTargets pulls the "target" binding out of a delegate block
// into the node's target selector list. Values may be a single {{...}} or an
// array of them.
func (p *Parser) splitDelegateTargets(n *Node) {
	var rest []Binding
	for _, b := range n.Bindings {
		if b.Key != "target" {
			rest = append(rest, b)
			continue
		}
		v := strings.TrimSpace(b.Value)
		v = strings.TrimPrefix(v, "[")
		v = strings.TrimSuffix(v, "]")
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			part = strings.TrimPrefix(part, "{{")
			part = strings.TrimSuffix(part, "}}")
			if part != "" {
				n.Targets = append(n.Targets, strings.TrimSpace(part))
			}
		}
	}
	n.Bindings = rest
}

// ---- virtual objects ----

// parseVirDecl parses "vir name = expr;". The source call's binding keys
// become the virtual object's methods.
func (p *Parser) parseVirDecl() *Node {
	kw := p.advance()
	p.sm.on(kw)

	n := NewNode(KindVirDecl, p.source(kw.Start, kw.End-kw.Start))
	name := p.peek()
	if name.Kind != Ident {
		p.errorf(name, "expected virtual object name, got %s", name.Kind)
		p.sm.reset()
		return nil
	}
	p.advance()
	n.Text = name.Lexeme

	if eq := p.peek(); eq.Kind == Punct && eq.Lexeme == "=" {
		p.advance()
	} else {
		p.errorf(eq, "expected '=' in vir declaration")
	}

	switch p.peek().Kind {
	case KwListen, KwDelegate, KwAnimate:
		n.AppendTo(p.parseConstructCall(nil))
	case LBrace:
		obj := NewNode(KindListen, p.source(p.peek().Start, 0))
		p.advance()
		p.parseBindings(obj)
		if p.peek().Kind == RBrace {
			p.advance()
		}
		n.AppendTo(obj)
	default:
		p.errorf(p.peek(), "expected construct call or object in vir declaration")
	}

	if semi := p.peek(); semi.Kind == Semicolon {
		p.sm.on(semi)
		p.advance()
	}
	p.markConsumed()
	p.sm.reset()
	p.virs[n.Text] = true
	return n
}

// ---- foreign spans ----

// parseForeign captures a CJMOD-owned span: the keyword plus balanced
// parens/braces through the terminating ';'. The payload is handed to the
// owning extension verbatim.
func (p *Parser) parseForeign() *Node {
	kw := p.advance()
	n := NewNode(KindForeign, p.source(kw.Start, kw.End-kw.Start))
	n.Keyword = kw.Lexeme

	depth := 0
	end := kw.End
loop:
	for !p.atEnd() {
		t := p.peek()
		switch t.Kind {
		case LParen, LBrace, LBracket:
			depth++
		case RParen, RBrace, RBracket:
			if depth == 0 {
				break loop
			}
			depth--
		case Semicolon:
			if depth == 0 {
				end = p.advance().End
				break loop
			}
		}
		end = p.advance().End
	}
	n.Payload = p.src[kw.Start:end]
	n.Source.Span.Length = end - kw.Start
	p.markConsumed()
	return n
}

// ---- plumbing ----

func (p *Parser) source(off, length int) syntax.Source {
	return syntax.Source{
		File: p.file,
		Span: syntax.Span{
			Offset: p.base.Offset + off,
			Line:   p.base.Line,
			Column: p.base.Column,
			Length: length,
		},
	}
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

func (p *Parser) advance() Token {
	t := p.peek()
	if p.i < len(p.toks) {
		p.i++
	}
	return t
}

func (p *Parser) atEnd() bool { return p.peek().Kind == EOF }

func (p *Parser) errorf(at Token, format string, args ...any) {
	p.sink.Report(diag.Diagnostic{
		Kind:      diag.Parse,
		File:      p.file,
		Line:      p.base.Line + at.Line - 1,
		Column:    at.Column,
		Message:   fmt.Sprintf(format, args...),
		Component: "chtljs",
	})
}
