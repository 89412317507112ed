package cjmod

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

// writeModule lays out a CMOD module directory under dir.
func writeModule(t *testing.T, dir, name string, sources map[string]string, meta string) string {
	t.Helper()
	root := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "info"), 0o755))
	for file, content := range sources {
		require.NoError(t, os.WriteFile(filepath.Join(root, "src", file), []byte(content), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "info", name+".chtl"), []byte(meta), 0o644))
	return root
}

const spaceMeta = `[Info] { name = "Space"; version = "1.0.0"; }
[Export] { @Style Rose; }`

const spaceSource = `[Template] @Style Rose { color: #e91e63; }
[Template] @Var Palette { pink: #ffc0cb; }`

func TestLoadCMODModule(t *testing.T) {
	dir := t.TempDir()
	root := writeModule(t, dir, "Space", map[string]string{"Space.chtl": spaceSource}, spaceMeta)

	m, err := Load(root)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "Space", m.Name)
	assert.Equal(t, KindCMOD, m.Kind)
	require.NotNil(t, m.Meta)
	assert.Equal(t, "1.0.0", m.Meta.Info.Version)

	global := syntax.NewGlobalMap()
	sink := diag.NewSink("")
	require.NoError(t, LoadCMOD(m, global, sink, nil))

	// Symbols publish under the module namespace.
	obj := global.Find(syntax.ObjTemplateStyle, "Space.Rose", nil)
	require.NotNil(t, obj)
	// And resolve unqualified from inside the module namespace.
	assert.NotNil(t, global.Find(syntax.ObjTemplateVar, "Palette", []string{"Space"}))
}

func TestLoadCMODMissingExport(t *testing.T) {
	dir := t.TempDir()
	meta := `[Info] { name = "Bad"; version = "1.0.0"; }
[Export] { @Style Missing; }`
	root := writeModule(t, dir, "Bad", map[string]string{"Bad.chtl": `div { }`}, meta)

	m, err := Load(root)
	require.NoError(t, err)
	defer m.Close()

	err = LoadCMOD(m, syntax.NewGlobalMap(), diag.NewSink(""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing")
}

func TestLoadInvalidStructure(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "Broken")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	// No info/ directory.
	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid structure")
}

func TestLocatorSearchOrder(t *testing.T) {
	official := t.TempDir()
	srcDir := t.TempDir()

	writeModule(t, official, "Both", map[string]string{"Both.chtl": "div { }"},
		`[Info] { name = "Both"; version = "1.0.0"; }`)
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "module"), 0o755))
	writeModule(t, filepath.Join(srcDir, "module"), "Both", map[string]string{"Both.chtl": "div { }"},
		`[Info] { name = "Both"; version = "2.0.0"; }`)

	loc := NewLocator(official, srcDir, nil)
	path, err := loc.Locate("Both")
	require.NoError(t, err)
	// The official directory wins.
	assert.Equal(t, filepath.Join(official, "Both"), path)

	loc2 := NewLocator("", srcDir, nil)
	path2, err := loc2.Locate("Both")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(srcDir, "module", "Both"), path2)

	_, err = loc2.Locate("Nowhere")
	require.Error(t, err)
}

func TestSubmodules(t *testing.T) {
	dir := t.TempDir()
	root := writeModule(t, dir, "Outer", map[string]string{"Outer.chtl": "div { }"},
		`[Info] { name = "Outer"; version = "1.0.0"; }`)

	subRoot := filepath.Join(root, "src", "Inner")
	require.NoError(t, os.MkdirAll(filepath.Join(subRoot, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(subRoot, "info"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(subRoot, "src", "Inner.chtl"),
		[]byte("[Template] @Style S { color: red; }"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(subRoot, "info", "Inner.chtl"),
		[]byte(`[Info] { name = "Inner"; version = "1.0.0"; }`), 0o644))

	m, err := Load(root)
	require.NoError(t, err)
	defer m.Close()
	require.Len(t, m.Subs, 1)
	assert.Equal(t, "Inner", m.Subs[0].Name)
}
