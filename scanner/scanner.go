package scanner

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

// Scanner segments mixed-dialect source into fragments. It is single-pass and
// character-indexed, with a stack of active regions; the top region decides
// which lexical rules apply. Brace counting ignores braces inside strings,
// comments and origin-raw bodies.
//
// The keyword registry must be fully populated (CJMOD registration included)
// before Scan is called; it is read-only during scanning.
type Scanner struct {
	registry *Registry
	log      *zap.Logger
}

// New returns a scanner over the given registry. A nil registry gets the base
// keyword set; a nil logger is replaced with a nop logger.
func New(registry *Registry, log *zap.Logger) *Scanner {
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{registry: registry, log: log.Named("scanner")}
}

// Registry exposes the scanner's keyword table for pre-scan registration.
func (s *Scanner) Registry() *Registry { return s.registry }

// Scan produces the fragment sequence for src. Concatenating the contents of
// the result in source order reconstructs src byte-for-byte.
func (s *Scanner) Scan(src, file string, sink *diag.Sink) []*Fragment {
	if sink == nil {
		sink = diag.NewSink(file)
	}
	r := &scanRun{
		Scanner: s,
		src:     src,
		file:    file,
		sink:    sink,
		line:    1,
		col:     1,
	}
	r.fragStartSpan = syntax.Span{Offset: 0, Line: 1, Column: 1}
	r.run()
	s.log.Debug("scan complete",
		zap.String("file", file),
		zap.Int("fragments", len(r.frags)),
		zap.Int("errors", sink.Len()))
	return r.frags
}

// region is one entry of the scanner's region stack.
type region struct {
	kind       RegionKind
	openLine   int
	openColumn int
	braceDepth int
}

type scanRun struct {
	*Scanner
	src  string
	file string
	sink *diag.Sink

	i    int // byte cursor
	line int
	col  int

	frags         []*Fragment
	nextID        int
	fragStart     int
	fragStartSpan syntax.Span
	nextIntegrity Integrity

	regions []region // element/template bodies only; style/script handled inline
}

func (r *scanRun) run() {
	for r.i < len(r.src) {
		c := r.src[r.i]
		switch {
		case c == '"' || c == '\'':
			r.skipString(c)
		case c == '/' && r.peekAt(1) == '/':
			r.skipLine()
		case c == '/' && r.peekAt(1) == '*':
			r.skipBlockComment()
		case c == '-' && r.peekAt(1) == '-':
			r.skipLine() // generator comment, stays in the CHTL fragment
		case c == '[':
			if r.matchOriginHeader() {
				continue
			}
			r.advance()
		case c == '{':
			r.pushRegion(RegionElementBody)
			r.advance()
		case c == '}':
			if len(r.regions) == 0 {
				r.errorf("mismatched '}' at top level")
				r.advance()
				continue
			}
			r.regions = r.regions[:len(r.regions)-1]
			r.advance()
		case isWordByte(c):
			word := r.peekWord()
			if (word == "style" || word == "script") && r.braceFollows(len(word)) {
				r.scanEmbeddedBlock(word)
				continue
			}
			r.advanceBy(len(word))
		default:
			r.advance()
		}
	}
	if len(r.regions) > 0 {
		top := r.regions[len(r.regions)-1]
		r.sink.Report(diag.Diagnostic{
			Kind:      diag.Scan,
			File:      r.file,
			Line:      top.openLine,
			Column:    top.openColumn,
			Message:   "unterminated " + top.kind.String() + " region",
			Component: "scanner",
		})
		r.emit(KindCHTL, r.i, Partial)
	} else {
		r.emit(KindCHTL, r.i, Complete)
	}
}

// scanEmbeddedBlock handles "style {" / "script {" at the cursor: the current
// CHTL fragment closes at the '{' boundary, the block contents become CSS or
// JS/CHTL-JS fragments, and the closing '}' starts the next CHTL fragment.
func (r *scanRun) scanEmbeddedBlock(word string) {
	blockRegion := RegionStyleBlock
	if word == "script" {
		blockRegion = RegionScriptBlock
	}
	if len(r.regions) == 0 {
		if blockRegion == RegionStyleBlock {
			blockRegion = RegionGlobalStyle
		} else {
			blockRegion = RegionGlobalScript
		}
	}
	outerCtx := CtxTopLevel
	if len(r.regions) > 0 {
		outerCtx = CtxInsideElement
	}

	// Consume the keyword, interword space and '{'.
	r.advanceBy(len(word))
	for r.i < len(r.src) && isSpaceByte(r.src[r.i]) {
		r.advance()
	}
	openLine, openCol := r.line, r.col
	r.advance() // '{'

	// Close the CHTL fragment at the '{' boundary.
	f := r.emit(KindCHTL, r.i, Complete)
	f.Context = outerCtx

	// Find the balanced close of this region.
	closeIdx, ok := r.findRegionClose(r.i, blockRegion)
	if !ok {
		r.sink.Report(diag.Diagnostic{
			Kind:      diag.Scan,
			File:      r.file,
			Line:      openLine,
			Column:    openCol,
			Message:   "unterminated " + blockRegion.String() + " region",
			Component: "scanner",
		})
		closeIdx = len(r.src)
	}

	if blockRegion == RegionStyleBlock || blockRegion == RegionGlobalStyle {
		r.advanceTo(closeIdx)
		r.emitCtx(KindCSS, closeIdx, integrityFor(ok), CtxInsideStyle)
	} else {
		r.scanScriptContent(closeIdx, ok)
	}

	// The closing '}' belongs to the resumed CHTL fragment.
	if ok {
		r.advance()
	}
}

func integrityFor(closed bool) Integrity {
	if closed {
		return Complete
	}
	return Partial
}

// scanScriptContent emits the fragments for a script region body ending at
// closeIdx. Pure JS emits as one JS fragment; a base CHTL-JS form anywhere
// upgrades the fragment to CHTL-JS; a CJMOD keyword splits the stream into a
// continues_next prefix, the extension-handled span, and the continuation.
func (r *scanRun) scanScriptContent(closeIdx int, closed bool) {
	for r.i < closeIdx {
		kwStart, kwEnd, kw := r.findModuleKeyword(r.i, closeIdx)
		if kwStart < 0 {
			break
		}
		if kwStart > r.i {
			prefixKind := r.classifyScript(r.i, kwStart)
			r.advanceTo(kwStart)
			r.emitCtx(prefixKind, kwStart, ContinuesNext, CtxInsideScript)
		}
		spanEnd := r.extensionSpanEnd(kwEnd, closeIdx)
		r.advanceTo(spanEnd)
		ext := r.emitCtx(KindCHTLJS, spanEnd, ContinuedFromPrev, CtxInsideScript)
		ext.Keyword = kw
		r.log.Debug("extension span",
			zap.String("keyword", kw),
			zap.Int("line", ext.Start.Line))
	}
	if r.i < closeIdx || r.fragStart < closeIdx {
		kind := r.classifyScript(r.i, closeIdx)
		r.advanceTo(closeIdx)
		r.emitCtx(kind, closeIdx, integrityFor(closed), CtxInsideScript)
	}
}

// classifyScript decides JS vs CHTL-JS for a script span by looking for base
// keywords outside strings and comments.
func (r *scanRun) classifyScript(start, end int) Kind {
	i := start
	for i < end {
		c := r.src[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipStringAt(r.src, i)
		case c == '/' && i+1 < end && r.src[i+1] == '/':
			for i < end && r.src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < end && r.src[i+1] == '*':
			i += 2
			for i+1 < end && !(r.src[i] == '*' && r.src[i+1] == '/') {
				i++
			}
			i += 2
		case c == '{' && i+1 < end && r.src[i+1] == '{':
			return KindCHTLJS
		case c == '-' && i+1 < end && r.src[i+1] == '>':
			return KindCHTLJS
		case c == '=' && i+1 < end && r.src[i+1] == '>':
			return KindCHTLJS
		case isWordByte(c):
			j := i
			for j < end && isWordByte(r.src[j]) {
				j++
			}
			switch r.src[i:j] {
			case "listen", "delegate", "animate", "vir":
				return KindCHTLJS
			}
			i = j
		default:
			i++
		}
	}
	return KindJS
}

// findModuleKeyword locates the next CJMOD-registered keyword between start
// and end, outside strings and comments. Returns (-1, -1, "") when none.
func (r *scanRun) findModuleKeyword(start, end int) (int, int, string) {
	if len(r.registry.ModuleKeywords()) == 0 {
		return -1, -1, ""
	}
	i := start
	for i < end {
		c := r.src[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipStringAt(r.src, i)
		case c == '/' && i+1 < end && (r.src[i+1] == '/' || r.src[i+1] == '*'):
			if r.src[i+1] == '/' {
				for i < end && r.src[i] != '\n' {
					i++
				}
			} else {
				i += 2
				for i+1 < end && !(r.src[i] == '*' && r.src[i+1] == '/') {
					i++
				}
				i += 2
			}
		case isWordByte(c):
			j := i
			for j < end && isWordByte(r.src[j]) {
				j++
			}
			word := r.src[i:j]
			if owner, ok := r.registry.Owner(word); ok && owner != "" {
				if r.registry.ActiveIn(word, RegionScriptBlock) {
					return i, j, word
				}
				r.sink.Report(diag.Diagnostic{
					Kind:      diag.Scan,
					File:      r.file,
					Line:      r.line,
					Column:    r.col,
					Message:   "keyword " + word + " used outside its active region",
					Component: "scanner",
				})
			}
			i = j
		default:
			i++
		}
	}
	return -1, -1, ""
}

// extensionSpanEnd finds the end of a CJMOD keyword's matched span: the
// keyword plus any balanced parens/braces, through the terminating ';' when
// present at depth zero.
func (r *scanRun) extensionSpanEnd(after, end int) int {
	depth := 0
	i := after
	for i < end {
		c := r.src[i]
		switch c {
		case '"', '\'', '`':
			i = skipStringAt(r.src, i)
			continue
		case '(', '{':
			depth++
		case ')', '}':
			depth--
			if depth < 0 {
				return i
			}
		case ';':
			if depth == 0 {
				return i + 1
			}
		case '\n':
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return end
}

// matchOriginHeader detects "[Origin]" at the cursor and swallows the whole
// block, including its raw body, without re-scanning the contents. Origin
// blocks stay inside the enclosing CHTL fragment.
func (r *scanRun) matchOriginHeader() bool {
	const kw = "[Origin]"
	if !strings.HasPrefix(r.src[r.i:], kw) {
		return false
	}
	r.advanceBy(len(kw))
	// Scan forward to the opening '{' or a terminating ';' (use form).
	for r.i < len(r.src) {
		c := r.src[r.i]
		if c == '{' {
			r.advance()
			r.skipOriginRaw()
			return true
		}
		if c == ';' || c == '\n' {
			r.advance()
			return true
		}
		r.advance()
	}
	return true
}

// skipOriginRaw consumes bytes through the balanced '}' of an origin body.
// Only string literals are honored; everything else is opaque.
func (r *scanRun) skipOriginRaw() {
	depth := 1
	for r.i < len(r.src) {
		c := r.src[r.i]
		switch c {
		case '"', '\'':
			r.skipString(c)
			continue
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				r.advance()
				return
			}
		}
		r.advance()
	}
	r.errorf("unterminated origin block")
}

// findRegionClose returns the byte index of the '}' closing a style/script
// region starting at start (depth already 1). Braces inside strings, comments
// and {{ }} expressions do not disturb the count.
func (r *scanRun) findRegionClose(start int, kind RegionKind) (int, bool) {
	depth := 1
	i := start
	for i < len(r.src) {
		c := r.src[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipStringAt(r.src, i)
			continue
		case c == '/' && i+1 < len(r.src) && r.src[i+1] == '/':
			for i < len(r.src) && r.src[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(r.src) && r.src[i+1] == '*':
			i += 2
			for i+1 < len(r.src) && !(r.src[i] == '*' && r.src[i+1] == '/') {
				i++
			}
			i += 2
			continue
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
		i++
	}
	return len(r.src), false
}

// ---- emission ----

// emit closes the current fragment at end (exclusive) with the context
// derived from the region stack.
func (r *scanRun) emit(kind Kind, end int, integrity Integrity) *Fragment {
	ctx := CtxTopLevel
	if len(r.regions) > 0 {
		ctx = CtxInsideElement
	}
	return r.emitCtx(kind, end, integrity, ctx)
}

func (r *scanRun) emitCtx(kind Kind, end int, integrity Integrity, ctx Context) *Fragment {
	if end <= r.fragStart {
		return &Fragment{} // nothing accumulated; discard silently
	}
	start := r.fragStartSpan
	start.Length = end - start.Offset
	f := &Fragment{
		ID:        r.nextID,
		Seq:       len(r.frags),
		Kind:      kind,
		Content:   r.src[r.fragStart:end],
		Start:     start,
		End:       syntax.Span{Offset: end, Line: r.line, Column: r.col},
		Integrity: integrity,
		Context:   ctx,
	}
	r.nextID++
	r.frags = append(r.frags, f)
	r.fragStart = end
	r.fragStartSpan = syntax.Span{Offset: end, Line: r.line, Column: r.col}
	return f
}

// ---- cursor ----

func (r *scanRun) pushRegion(kind RegionKind) {
	r.regions = append(r.regions, region{kind: kind, openLine: r.line, openColumn: r.col})
}

func (r *scanRun) advance() {
	if r.i >= len(r.src) {
		return
	}
	if r.src[r.i] == '\n' {
		r.line++
		r.col = 1
	} else if !utf8.RuneStart(r.src[r.i]) {
		// Continuation byte: no column advance.
	} else {
		r.col++
	}
	r.i++
}

func (r *scanRun) advanceBy(n int) {
	for j := 0; j < n; j++ {
		r.advance()
	}
}

func (r *scanRun) advanceTo(j int) {
	for r.i < j {
		r.advance()
	}
}

func (r *scanRun) peekAt(n int) byte {
	if r.i+n >= len(r.src) {
		return 0
	}
	return r.src[r.i+n]
}

func (r *scanRun) peekWord() string {
	j := r.i
	for j < len(r.src) && isWordByte(r.src[j]) {
		j++
	}
	return r.src[r.i:j]
}

func (r *scanRun) braceFollows(wordLen int) bool {
	j := r.i + wordLen
	for j < len(r.src) && isSpaceByte(r.src[j]) {
		j++
	}
	return j < len(r.src) && r.src[j] == '{'
}

func (r *scanRun) skipString(quote byte) {
	r.advance() // opening quote
	for r.i < len(r.src) {
		c := r.src[r.i]
		if c == '\\' {
			r.advance()
			r.advance()
			continue
		}
		if c == quote {
			r.advance()
			return
		}
		if c == '\n' && quote != '`' {
			r.errorf("unterminated string")
			return
		}
		r.advance()
	}
	r.errorf("unterminated string")
}

func (r *scanRun) skipLine() {
	for r.i < len(r.src) && r.src[r.i] != '\n' {
		r.advance()
	}
}

func (r *scanRun) skipBlockComment() {
	startLine, startCol := r.line, r.col
	r.advance()
	r.advance()
	for r.i < len(r.src) {
		if r.src[r.i] == '*' && r.peekAt(1) == '/' {
			r.advance()
			r.advance()
			return
		}
		r.advance()
	}
	r.sink.Report(diag.Diagnostic{
		Kind:      diag.Scan,
		File:      r.file,
		Line:      startLine,
		Column:    startCol,
		Message:   "unterminated block comment",
		Component: "scanner",
	})
}

func (r *scanRun) errorf(msg string) {
	r.sink.Report(diag.Diagnostic{
		Kind:      diag.Scan,
		File:      r.file,
		Line:      r.line,
		Column:    r.col,
		Message:   msg,
		Component: "scanner",
	})
}

// skipStringAt returns the index just past the string literal starting at i.
func skipStringAt(src string, i int) int {
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

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ClassifyScript reports whether standalone script content is plain JS or
// CHTL-JS, using the same rules the scanner applies inside script regions.
func ClassifyScript(content string) Kind {
	r := &scanRun{src: content, line: 1, col: 1, sink: diag.NewSink("")}
	return r.classifyScript(0, len(content))
}

// ValidateIntegrity checks the fragment chain: every continues_next must be
// immediately followed in sequence by a continued_from_prev with the same
// outer context. Violations are scanner errors.
func ValidateIntegrity(frags []*Fragment, file string, sink *diag.Sink) {
	src := SourceOrder(frags)
	for i, f := range src {
		if f.Integrity != ContinuesNext {
			continue
		}
		if i+1 >= len(src) || src[i+1].Integrity != ContinuedFromPrev || src[i+1].Context != f.Context {
			sink.Report(diag.Diagnostic{
				Kind:      diag.Scan,
				File:      file,
				Line:      f.Start.Line,
				Column:    f.Start.Column,
				Message:   "fragment marked continues_next has no matching continuation",
				Component: "scanner",
			})
		}
	}
}
