package chtljs

import (
	"github.com/dpotapov/chtl/diag"
)

// Lexer tokenizes CHTL-JS fragment content. Whitespace and comments are not
// emitted; tokens keep byte offsets so the parser can reproduce the raw JS
// between constructs verbatim.
type Lexer struct {
	src       string
	file      string
	sink      *diag.Sink
	moduleKws map[string]bool // CJMOD-contributed keywords forwarded by the scanner

	i    int
	line int
	col  int
}

// NewLexer prepares a lexer. moduleKeywords may be nil.
func NewLexer(src, file string, moduleKeywords []string, sink *diag.Sink) *Lexer {
	kws := make(map[string]bool, len(moduleKeywords))
	for _, kw := range moduleKeywords {
		kws[kw] = true
	}
	return &Lexer{src: src, file: file, sink: sink, moduleKws: kws, line: 1, col: 1}
}

// Tokenize lexes the whole input, appending the EOF token.
func (l *Lexer) Tokenize() []Token {
	var toks []Token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.Kind == EOF {
			return toks
		}
	}
}

func (l *Lexer) next() Token {
	l.skipTrivia()
	if l.i >= len(l.src) {
		return Token{Kind: EOF, Start: l.i, End: l.i, Line: l.line, Column: l.col}
	}
	start, line, col := l.i, l.line, l.col
	mk := func(kind TokenKind, lexeme string) Token {
		return Token{Kind: kind, Lexeme: lexeme, Start: start, End: l.i, Line: line, Column: col}
	}

	c := l.src[l.i]
	switch {
	case c == '{' && l.peek(1) == '{':
		l.adv()
		l.adv()
		return mk(OpenSelector, "{{")
	case c == '}' && l.peek(1) == '}':
		l.adv()
		l.adv()
		return mk(CloseSelector, "}}")
	case c == '-' && l.peek(1) == '>':
		l.adv()
		l.adv()
		return mk(Arrow, "->")
	case c == '=' && l.peek(1) == '>':
		l.adv()
		l.adv()
		return mk(FatArrow, "=>")
	case c == '"' || c == '\'' || c == '`':
		return l.readString(c, mk)
	case c >= '0' && c <= '9':
		for l.i < len(l.src) && (isWordByte(l.src[l.i]) || l.src[l.i] == '.') {
			l.adv()
		}
		return mk(Number, l.src[start:l.i])
	case isWordStart(c):
		for l.i < len(l.src) && isWordByte(l.src[l.i]) {
			l.adv()
		}
		word := l.src[start:l.i]
		switch word {
		case "vir":
			return mk(KwVir, word)
		case "listen":
			return mk(KwListen, word)
		case "delegate":
			return mk(KwDelegate, word)
		case "animate":
			return mk(KwAnimate, word)
		}
		if l.moduleKws[word] {
			return mk(KwModule, word)
		}
		return mk(Ident, word)
	}

	l.adv()
	switch c {
	case '{':
		return mk(LBrace, "{")
	case '}':
		return mk(RBrace, "}")
	case '(':
		return mk(LParen, "(")
	case ')':
		return mk(RParen, ")")
	case '[':
		return mk(LBracket, "[")
	case ']':
		return mk(RBracket, "]")
	case ':':
		return mk(Colon, ":")
	case ';':
		return mk(Semicolon, ";")
	case ',':
		return mk(Comma, ",")
	case '.':
		return mk(Dot, ".")
	}
	return mk(Punct, string(c))
}

func (l *Lexer) readString(quote byte, mk func(TokenKind, string) Token) Token {
	l.adv() // opening quote
	for l.i < len(l.src) {
		c := l.src[l.i]
		if c == '\\' {
			l.adv()
			l.adv()
			continue
		}
		if c == quote {
			l.adv()
			t := mk(String, "")
			t.Lexeme = l.src[t.Start:t.End]
			return t
		}
		if c == '\n' && quote != '`' {
			break
		}
		l.adv()
	}
	if l.sink != nil {
		l.sink.Report(diag.Diagnostic{
			Kind:      diag.Lexical,
			File:      l.file,
			Line:      l.line,
			Column:    l.col,
			Message:   "unterminated string",
			Component: "chtljs",
		})
	}
	t := mk(String, "")
	t.Lexeme = l.src[t.Start:t.End]
	return t
}

func (l *Lexer) skipTrivia() {
	for l.i < len(l.src) {
		c := l.src[l.i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.adv()
		case c == '/' && l.peek(1) == '/':
			for l.i < len(l.src) && l.src[l.i] != '\n' {
				l.adv()
			}
		case c == '/' && l.peek(1) == '*':
			l.adv()
			l.adv()
			for l.i < len(l.src) {
				if l.src[l.i] == '*' && l.peek(1) == '/' {
					l.adv()
					l.adv()
					break
				}
				l.adv()
			}
		default:
			return
		}
	}
}

func (l *Lexer) adv() {
	if l.i >= len(l.src) {
		return
	}
	if l.src[l.i] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.i++
}

func (l *Lexer) peek(n int) byte {
	if l.i+n >= len(l.src) {
		return 0
	}
	return l.src[l.i+n]
}

func isWordStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordByte(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
