package cjmod

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/chtljs"
	"github.com/dpotapov/chtl/scanner"
)

const extensionSource = `package main

import "fmt"

func ExtensionABIVersion() string { return "1" }

func CreateExtension() map[string]interface{} {
	return map[string]interface{}{
		"name":     func() string { return "chtholly" },
		"version":  func() string { return "0.1.0" },
		"keywords": func() []string { return []string{"printMylove"} },
		"parse": func(input string) (string, error) {
			return input, nil
		},
		"generate": func(payload string) (string, error) {
			return fmt.Sprintf("console.log(%q);", payload), nil
		},
		"init":    func() error { return nil },
		"cleanup": func() {},
	}
}
`

const badABISource = `package main

func ExtensionABIVersion() string { return "99" }

func CreateExtension() map[string]interface{} {
	return map[string]interface{}{}
}
`

func writeCJMOD(t *testing.T, dir, name, source string) *Module {
	t.Helper()
	root := writeModule(t, dir, name, map[string]string{name + ".go": source},
		`[Info] { name = "`+name+`"; version = "0.1.0"; entryPoint = "CreateExtension"; }`)
	m, err := Load(root)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	require.Equal(t, KindCJMOD, m.Kind)
	return m
}

func TestLoadCJMODExtension(t *testing.T) {
	m := writeCJMOD(t, t.TempDir(), "Chtholly", extensionSource)

	reg := scanner.NewRegistry()
	exts := chtljs.NewExtensionSet()
	require.NoError(t, LoadCJMOD(m, reg, exts, nil))

	owner, ok := reg.Owner("printMylove")
	require.True(t, ok)
	assert.Equal(t, "Chtholly", owner)

	ext, ok := exts.ForKeyword("printMylove")
	require.True(t, ok)
	assert.Equal(t, "chtholly", ext.Name())
	assert.Equal(t, "0.1.0", ext.Version())

	ctx := &chtljs.ExtContext{File: "test.chtl", Line: 1, Column: 1, Region: "script_block"}
	n, err := ext.ParseSyntax("printMylove({speed: 2});", ctx)
	require.NoError(t, err)
	js, err := ext.GenerateJavaScript(n, ctx)
	require.NoError(t, err)
	assert.Contains(t, js, "console.log")
	assert.Contains(t, js, "printMylove")
}

func TestLoadCJMODABIMismatch(t *testing.T) {
	m := writeCJMOD(t, t.TempDir(), "OldMod", badABISource)

	reg := scanner.NewRegistry()
	exts := chtljs.NewExtensionSet()
	err := LoadCJMOD(m, reg, exts, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ABI version mismatch")

	// The failure is recorded for later keyword matches.
	_, failed := exts.Failed("OldMod")
	assert.True(t, failed)
}

func TestLoadCJMODDuplicateKeyword(t *testing.T) {
	dir := t.TempDir()
	m1 := writeCJMOD(t, dir, "ModA", extensionSource)
	m2 := writeCJMOD(t, dir, "ModB", extensionSource)

	reg := scanner.NewRegistry()
	exts := chtljs.NewExtensionSet()
	require.NoError(t, LoadCJMOD(m1, reg, exts, nil))

	err := LoadCJMOD(m2, reg, exts, nil)
	require.Error(t, err)
}

func TestMixedModuleLoadsCMODFirst(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "Mixed")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "CMOD"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "CJMOD"), 0o755))
	writeModule(t, filepath.Join(root, "CMOD"), "Styles",
		map[string]string{"Styles.chtl": "[Template] @Style S { color: red; }"},
		`[Info] { name = "Styles"; version = "1.0.0"; }`)
	writeModule(t, filepath.Join(root, "CJMOD"), "Ext",
		map[string]string{"Ext.go": extensionSource},
		`[Info] { name = "Ext"; version = "1.0.0"; entryPoint = "CreateExtension"; }`)

	m, err := Load(root)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, KindMixed, m.Kind)
	require.Len(t, m.Subs, 2)
}
