package diag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticFormat(t *testing.T) {
	d := Diagnostic{Kind: Parse, File: "a.chtl", Line: 3, Column: 7, Message: "expected '{'"}
	assert.Equal(t, "a.chtl:3:7: parse error: expected '{'", d.Error())
}

func TestSinkOrderAndSummary(t *testing.T) {
	s := NewSink("a.chtl")
	s.Reportf(Lexical, 1, 1, "bad token")
	s.Reportf(Parse, 2, 5, "expected %s", "';'")
	assert.Equal(t, 2, s.Len())

	out := s.Format(false)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "bad token")
	assert.Contains(t, lines[1], "expected ';'")
	assert.Equal(t, "2 errors", lines[2])
}

func TestSinkDefaultFile(t *testing.T) {
	s := NewSink("main.chtl")
	s.Reportf(Scan, 1, 1, "x")
	assert.Equal(t, "main.chtl", s.All()[0].File)
}

func TestFatalKinds(t *testing.T) {
	s := NewSink("a.chtl")
	s.Reportf(Parse, 1, 1, "recoverable")
	assert.False(t, s.HasFatal())
	s.Reportf(Module, 1, 1, "fatal")
	assert.True(t, s.HasFatal())

	assert.False(t, Resolution.Fatal())
	assert.True(t, Timeout.Fatal())
	assert.True(t, IO.Fatal())
	assert.True(t, Generation.Fatal())
}

func TestDebugFormatAppendsPhase(t *testing.T) {
	s := NewSink("a.chtl")
	s.Report(Diagnostic{Kind: Scan, Line: 1, Column: 1, Message: "m", Phase: "scan", Component: "scanner"})
	assert.Contains(t, s.Format(true), "[phase=scan component=scanner]")
	assert.NotContains(t, s.Format(false), "phase=")
}
