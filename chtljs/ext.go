package chtljs

import (
	"errors"
	"fmt"
)

// ABIVersion is the extension interface version. A CJMOD built against a
// different version fails to load.
const ABIVersion = "1"

// ErrForeignRejected is returned by extensions that refuse a node handed to
// them at generation time.
var ErrForeignRejected = errors.New("foreign node rejected by its extension")

// ExtContext carries positional and environmental information into extension
// callbacks.
type ExtContext struct {
	File   string
	Line   int
	Column int

	// Region names the scanner region the keyword appeared in.
	Region string
}

// Extension is the contract a CJMOD implements. Extensions contribute
// keywords to the unified scanner and own the parsing and JavaScript
// generation of the spans their keywords match.
type Extension interface {
	Name() string
	Version() string

	// Keywords returns the keywords the scanner should recognise.
	Keywords() []string

	// MatchesSyntax is a quick filter for dispatch: it reports whether the
	// extension will accept the pattern in the given context.
	MatchesSyntax(pattern string, ctx *ExtContext) bool

	// ParseSyntax parses a matched span into a foreign AST node. The
	// resolution engine treats the result opaquely.
	ParseSyntax(input string, ctx *ExtContext) (*Node, error)

	// GenerateJavaScript is called by the JS generator on foreign nodes the
	// extension owns.
	GenerateJavaScript(n *Node, ctx *ExtContext) (string, error)

	Initialize() error
	Cleanup()
}

// ExtensionSet indexes loaded extensions by the keywords they own. One set
// belongs to one compilation unit.
type ExtensionSet struct {
	byKeyword map[string]Extension
	order     []Extension
	failed    map[string]error // extension name -> load/init failure
}

func NewExtensionSet() *ExtensionSet {
	return &ExtensionSet{
		byKeyword: make(map[string]Extension),
		failed:    make(map[string]error),
	}
}

// Add registers an extension and its keywords. A keyword already owned by
// another extension is a duplicate-registration error.
func (s *ExtensionSet) Add(ext Extension) error {
	for _, kw := range ext.Keywords() {
		if prev, ok := s.byKeyword[kw]; ok {
			return fmt.Errorf("keyword %q already owned by extension %s", kw, prev.Name())
		}
	}
	for _, kw := range ext.Keywords() {
		s.byKeyword[kw] = ext
	}
	s.order = append(s.order, ext)
	return nil
}

// MarkFailed records a failed extension. The failure is non-fatal until a
// source span matches one of the extension's keywords.
func (s *ExtensionSet) MarkFailed(name string, err error) {
	s.failed[name] = err
}

// Failed returns the recorded failure for an extension name, if any.
func (s *ExtensionSet) Failed(name string) (error, bool) {
	err, ok := s.failed[name]
	return err, ok
}

// ForKeyword returns the extension owning a keyword.
func (s *ExtensionSet) ForKeyword(kw string) (Extension, bool) {
	e, ok := s.byKeyword[kw]
	return e, ok
}

// Keywords returns all registered keywords.
func (s *ExtensionSet) Keywords() []string {
	out := make([]string, 0, len(s.byKeyword))
	for kw := range s.byKeyword {
		out = append(out, kw)
	}
	return out
}

// Cleanup releases all extensions in reverse registration order.
func (s *ExtensionSet) Cleanup() {
	for i := len(s.order) - 1; i >= 0; i-- {
		s.order[i].Cleanup()
	}
	s.order = nil
	s.byKeyword = make(map[string]Extension)
}
