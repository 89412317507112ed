// Package cjmod implements the module system: discovery, metadata, CMOD
// symbol loading, CJMOD extension loading and the packed archive format.
package cjmod

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dpotapov/chtl/diag"
	"github.com/dpotapov/chtl/syntax"
)

// Info is the [Info] block of a module metadata file.
type Info struct {
	Name           string
	Version        string
	Description    string
	Author         string
	License        string
	Dependencies   string
	Category       string
	MinCHTLVersion string
	MaxCHTLVersion string

	// CJMOD-only fields.
	EntryPoint    string
	HeaderFiles   string
	LinkLibraries string
	CompilerFlags string
}

// Export is one [Export] block entry.
type Export struct {
	Tag  syntax.TypeTag
	Name string
}

// Metadata is the parsed form of info/<Name>.chtl.
type Metadata struct {
	Info    Info
	Exports []Export
}

// requiredInfoFields must be present in every module.
var requiredInfoFields = []string{"name", "version"}

// ParseMetadata parses a module metadata file. It shares the lexical grammar
// of the source language but uses this dedicated parser.
func ParseMetadata(src, file string) (*Metadata, error) {
	sink := diag.NewSink(file)
	lx := syntax.NewLexer(src, file, sink)
	toks := lx.Tokenize()

	meta := &Metadata{}
	seen := map[string]bool{}
	i := 0

	peek := func() syntax.Token { return toks[i] }
	next := func() syntax.Token { t := toks[i]; i++; return t }

	for peek().Kind != syntax.EOF {
		switch t := next(); t.Kind {
		case syntax.KwInfo:
			if err := parseInfoBlock(toks, &i, &meta.Info, seen); err != nil {
				return nil, err
			}
		case syntax.KwExport:
			if err := parseExportBlock(toks, &i, meta); err != nil {
				return nil, err
			}
		case syntax.LineComment, syntax.BlockComment, syntax.GeneratorComment:
			// skip
		default:
			return nil, fmt.Errorf("%s:%d:%d: unexpected %s in metadata", file, t.Pos.Line, t.Pos.Column, t.Kind)
		}
	}

	for _, f := range requiredInfoFields {
		if !seen[f] {
			return nil, fmt.Errorf("%s: metadata missing required field %q", file, f)
		}
	}
	return meta, nil
}

func parseInfoBlock(toks []syntax.Token, i *int, info *Info, seen map[string]bool) error {
	if toks[*i].Kind != syntax.LBrace {
		return errors.New("expected '{' after [Info]")
	}
	*i++
	for toks[*i].Kind != syntax.RBrace && toks[*i].Kind != syntax.EOF {
		key := toks[*i]
		if key.Kind != syntax.Ident {
			return fmt.Errorf("expected info key, got %s", key.Kind)
		}
		*i++
		if toks[*i].Kind != syntax.Equals && toks[*i].Kind != syntax.Colon {
			return fmt.Errorf("expected '=' after %q", key.Lexeme)
		}
		*i++
		val := toks[*i]
		if val.Kind != syntax.String && val.Kind != syntax.Ident && val.Kind != syntax.Number {
			return fmt.Errorf("expected value for %q, got %s", key.Lexeme, val.Kind)
		}
		*i++
		if toks[*i].Kind == syntax.Semicolon {
			*i++
		}
		seen[strings.ToLower(key.Lexeme)] = true
		setInfoField(info, key.Lexeme, val.Lexeme)
	}
	if toks[*i].Kind == syntax.RBrace {
		*i++
	}
	return nil
}

func setInfoField(info *Info, key, val string) {
	switch strings.ToLower(key) {
	case "name":
		info.Name = val
	case "version":
		info.Version = val
	case "description":
		info.Description = val
	case "author":
		info.Author = val
	case "license":
		info.License = val
	case "dependencies":
		info.Dependencies = val
	case "category":
		info.Category = val
	case "minchtlversion":
		info.MinCHTLVersion = val
	case "maxchtlversion":
		info.MaxCHTLVersion = val
	case "entrypoint":
		info.EntryPoint = val
	case "headerfiles":
		info.HeaderFiles = val
	case "linklibraries":
		info.LinkLibraries = val
	case "compilerflags":
		info.CompilerFlags = val
	}
}

func parseExportBlock(toks []syntax.Token, i *int, meta *Metadata) error {
	if toks[*i].Kind != syntax.LBrace {
		return errors.New("expected '{' after [Export]")
	}
	*i++
	for toks[*i].Kind != syntax.RBrace && toks[*i].Kind != syntax.EOF {
		var tag syntax.TypeTag
		switch toks[*i].Kind {
		case syntax.AtStyle:
			tag = syntax.TagStyle
		case syntax.AtElement:
			tag = syntax.TagElement
		case syntax.AtVar:
			tag = syntax.TagVar
		default:
			return fmt.Errorf("expected export type marker, got %s", toks[*i].Kind)
		}
		*i++
		name := toks[*i]
		if name.Kind != syntax.Ident {
			return fmt.Errorf("expected export name, got %s", name.Kind)
		}
		*i++
		if toks[*i].Kind == syntax.Semicolon {
			*i++
		}
		meta.Exports = append(meta.Exports, Export{Tag: tag, Name: name.Lexeme})
	}
	if toks[*i].Kind == syntax.RBrace {
		*i++
	}
	return nil
}

// CheckVersion verifies the compiler version against the module's min/max
// constraints. Versions compare numerically component by component.
func (m *Metadata) CheckVersion(compilerVersion string) error {
	if m.Info.MinCHTLVersion != "" && compareVersions(compilerVersion, m.Info.MinCHTLVersion) < 0 {
		return fmt.Errorf("module %s requires CHTL >= %s (have %s)",
			m.Info.Name, m.Info.MinCHTLVersion, compilerVersion)
	}
	if m.Info.MaxCHTLVersion != "" && compareVersions(compilerVersion, m.Info.MaxCHTLVersion) > 0 {
		return fmt.Errorf("module %s requires CHTL <= %s (have %s)",
			m.Info.Name, m.Info.MaxCHTLVersion, compilerVersion)
	}
	return nil
}

func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av = atoiSafe(as[i])
		}
		if i < len(bs) {
			bv = atoiSafe(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
