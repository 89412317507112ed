package cjmod

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ModuleKind distinguishes the module flavors.
type ModuleKind int

const (
	KindCMOD ModuleKind = iota
	KindCJMOD
	KindMixed
)

func (k ModuleKind) String() string {
	switch k {
	case KindCMOD:
		return "cmod"
	case KindCJMOD:
		return "cjmod"
	case KindMixed:
		return "mixed"
	}
	return "unknown"
}

// Module is a loaded module directory with its metadata and nested
// submodules.
type Module struct {
	Name    string
	Kind    ModuleKind
	Root    string // filesystem path of the module directory
	Meta    *Metadata
	Subs    []*Module
	packed  string // original archive path when unpacked from .cmod/.cjmod
	tempDir string // unpack directory to remove on Close
}

// Close removes any temporary unpack directory.
func (m *Module) Close() {
	if m.tempDir != "" {
		_ = os.RemoveAll(m.tempDir)
		m.tempDir = ""
	}
	for _, sub := range m.Subs {
		sub.Close()
	}
}

// Locator finds modules by name. Search order: the official modules directory
// (resolved from the compiler executable's path), then ./module/ relative to
// the current source file, then ./ itself. First match wins.
type Locator struct {
	OfficialDir string
	SourceDir   string // directory of the current source file
	log         *zap.Logger
}

// NewLocator builds a locator. officialDir may be empty when the executable
// path cannot be resolved.
func NewLocator(officialDir, sourceDir string, log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{OfficialDir: officialDir, SourceDir: sourceDir, log: log.Named("modules")}
}

// OfficialDirFromExecutable resolves the official modules directory next to
// the running compiler binary.
func OfficialDirFromExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "module")
}

// Locate returns the path of the named module: either a directory or a
// packed .cmod/.cjmod archive.
func (l *Locator) Locate(name string) (string, error) {
	// Dotted names address submodules; only the head participates in search.
	head := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		head = name[:i]
	}
	dirs := []string{}
	if l.OfficialDir != "" {
		dirs = append(dirs, l.OfficialDir)
	}
	dirs = append(dirs, filepath.Join(l.SourceDir, "module"), l.SourceDir)

	for _, dir := range dirs {
		candidates := []string{
			filepath.Join(dir, head),
			filepath.Join(dir, head+".cmod"),
			filepath.Join(dir, head+".cjmod"),
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				l.log.Debug("module located", zap.String("name", name), zap.String("path", c))
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("module %q not found (searched %s)", name, strings.Join(dirs, ", "))
}

// Load opens a module from a directory or packed archive, validates its
// structure and parses its metadata.
func Load(path string) (*Module, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", path, err)
	}

	m := &Module{Root: path}
	if !st.IsDir() {
		tmp, err := os.MkdirTemp("", "chtl-module-*")
		if err != nil {
			return nil, err
		}
		if err := Unpack(path, tmp); err != nil {
			_ = os.RemoveAll(tmp)
			return nil, fmt.Errorf("unpack %s: %w", path, err)
		}
		m.packed = path
		m.tempDir = tmp
		// The archive preserves the <Name>/ top-level directory.
		entries, err := os.ReadDir(tmp)
		if err != nil || len(entries) == 0 {
			_ = os.RemoveAll(tmp)
			return nil, fmt.Errorf("archive %s has no module directory", path)
		}
		m.Root = filepath.Join(tmp, entries[0].Name())
	}

	m.Name = filepath.Base(m.Root)
	if err := m.validate(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// validate checks the canonical layout and parses the metadata file. Mixed
// modules validate both halves.
func (m *Module) validate() error {
	cmodDir := filepath.Join(m.Root, "CMOD")
	cjmodDir := filepath.Join(m.Root, "CJMOD")
	hasCMOD := isDir(cmodDir)
	hasCJMOD := isDir(cjmodDir)

	if hasCMOD || hasCJMOD {
		m.Kind = KindMixed
		if hasCMOD {
			if err := m.loadSubTree(cmodDir, KindCMOD); err != nil {
				return err
			}
		}
		if hasCJMOD {
			if err := m.loadSubTree(cjmodDir, KindCJMOD); err != nil {
				return err
			}
		}
		return nil
	}

	srcDir := filepath.Join(m.Root, "src")
	infoFile := filepath.Join(m.Root, "info", m.Name+".chtl")
	if !isDir(srcDir) {
		return fmt.Errorf("module %s: invalid structure: missing src/", m.Name)
	}
	data, err := os.ReadFile(infoFile)
	if err != nil {
		return fmt.Errorf("module %s: invalid structure: missing info/%s.chtl", m.Name, m.Name)
	}
	meta, err := ParseMetadata(string(data), infoFile)
	if err != nil {
		return fmt.Errorf("module %s: %w", m.Name, err)
	}
	m.Meta = meta

	m.Kind = KindCMOD
	if hasGoSources(srcDir) {
		m.Kind = KindCJMOD
	}

	// Nested submodules live under src/<Sub>/ with their own src/ and info/.
	entries, _ := os.ReadDir(srcDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		subRoot := filepath.Join(srcDir, e.Name())
		if isDir(filepath.Join(subRoot, "src")) && isDir(filepath.Join(subRoot, "info")) {
			sub := &Module{Root: subRoot}
			sub.Name = e.Name()
			if err := sub.validate(); err != nil {
				return fmt.Errorf("submodule %s: %w", e.Name(), err)
			}
			m.Subs = append(m.Subs, sub)
		}
	}
	return nil
}

// loadSubTree loads the CMOD/ or CJMOD/ half of a mixed module. Each half
// holds one or more complete module trees.
func (m *Module) loadSubTree(dir string, kind ModuleKind) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if sub.Kind != kind && sub.Kind != KindMixed {
			// The directory name fixes the flavor; trust the structure only
			// when it agrees.
			sub.Kind = kind
		}
		m.Subs = append(m.Subs, sub)
	}
	return nil
}

// SourceFiles lists the module's source files with the given extension,
// sorted by name, main file first.
func (m *Module) SourceFiles(ext string) ([]string, error) {
	srcDir := filepath.Join(m.Root, "src")
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}
	var out []string
	main := ""
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		p := filepath.Join(srcDir, e.Name())
		if strings.TrimSuffix(e.Name(), ext) == m.Name {
			main = p
			continue
		}
		out = append(out, p)
	}
	if main != "" {
		out = append([]string{main}, out...)
	}
	return out, nil
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func hasGoSources(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".go") {
			return true
		}
	}
	return false
}
