// Package diag collects compiler diagnostics. A single Sink is threaded
// through every pipeline phase so that reported errors keep discovery order.
package diag

import (
	"fmt"
	"strings"
)

// Kind classifies a diagnostic. Lexical, scan, parse and resolution errors are
// recoverable; module, generation, timeout and I/O errors abort the
// compilation unit at the next phase boundary.
type Kind int

const (
	Lexical Kind = iota
	Scan
	Parse
	Resolution
	Module
	Generation
	Timeout
	IO
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lexical error"
	case Scan:
		return "scan error"
	case Parse:
		return "parse error"
	case Resolution:
		return "resolution error"
	case Module:
		return "module error"
	case Generation:
		return "generation error"
	case Timeout:
		return "timeout error"
	case IO:
		return "io error"
	}
	return "error"
}

// Fatal reports whether diagnostics of this kind abort the compilation unit.
func (k Kind) Fatal() bool {
	switch k {
	case Module, Generation, Timeout, IO:
		return true
	}
	return false
}

// Diagnostic is a single reported problem with a source position.
type Diagnostic struct {
	Kind    Kind
	File    string
	Line    int // 1-based
	Column  int // 1-based, in runes
	Message string

	// Phase and Component are filled for debug output only.
	Phase     string
	Component string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Kind, d.Message)
}

// Sink accumulates diagnostics in discovery order.
type Sink struct {
	diags []Diagnostic

	// DefaultFile is used when a reporter has no file of its own.
	DefaultFile string
}

func NewSink(file string) *Sink {
	return &Sink{DefaultFile: file}
}

// Report appends a diagnostic. A zero file falls back to the sink default.
func (s *Sink) Report(d Diagnostic) {
	if d.File == "" {
		d.File = s.DefaultFile
	}
	s.diags = append(s.diags, d)
}

// Reportf is a convenience formatter for Report.
func (s *Sink) Reportf(kind Kind, line, col int, format string, args ...any) {
	s.Report(Diagnostic{
		Kind:    kind,
		Line:    line,
		Column:  col,
		Message: fmt.Sprintf(format, args...),
	})
}

// All returns the accumulated diagnostics in discovery order.
func (s *Sink) All() []Diagnostic {
	return s.diags
}

// HasFatal reports whether any accumulated diagnostic aborts the unit.
func (s *Sink) HasFatal() bool {
	for _, d := range s.diags {
		if d.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Len returns the number of accumulated diagnostics.
func (s *Sink) Len() int { return len(s.diags) }

// Format renders all diagnostics one per line followed by a summary count.
// With debug set, the pipeline phase and component are appended to each line.
func (s *Sink) Format(debug bool) string {
	var b strings.Builder
	for _, d := range s.diags {
		b.WriteString(d.Error())
		if debug && (d.Phase != "" || d.Component != "") {
			fmt.Fprintf(&b, " [phase=%s component=%s]", d.Phase, d.Component)
		}
		b.WriteByte('\n')
	}
	if n := len(s.diags); n == 1 {
		b.WriteString("1 error\n")
	} else if n > 1 {
		fmt.Fprintf(&b, "%d errors\n", n)
	}
	return b.String()
}
