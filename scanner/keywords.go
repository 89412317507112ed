package scanner

import "fmt"

// RegionKind identifies the lexical region a keyword is active in.
type RegionKind int

const (
	RegionTopLevel RegionKind = iota
	RegionElementBody
	RegionStyleBlock
	RegionScriptBlock
	RegionGlobalStyle
	RegionGlobalScript
	RegionBraceExpr
	RegionOriginRaw
	RegionCommentBlock
	RegionStringLiteral
)

func (r RegionKind) String() string {
	switch r {
	case RegionTopLevel:
		return "top_level_chtl"
	case RegionElementBody:
		return "element_body"
	case RegionStyleBlock:
		return "style_block"
	case RegionScriptBlock:
		return "script_block"
	case RegionGlobalStyle:
		return "global_style"
	case RegionGlobalScript:
		return "global_script"
	case RegionBraceExpr:
		return "brace_expression"
	case RegionOriginRaw:
		return "origin_raw"
	case RegionCommentBlock:
		return "comment_block"
	case RegionStringLiteral:
		return "string_literal"
	}
	return "unknown"
}

// keywordEntry records one registered keyword and its owner. Base keywords
// have an empty owner; CJMOD keywords carry the contributing module name.
type keywordEntry struct {
	active RegionKind
	owner  string
}

// Registry maps keyword names to the region kind they are active in.
// Registration happens during the pre-scan phase, before scanning begins;
// the registry is read-only while scanning. Each compilation unit owns its
// own registry because CJMOD registration mutates it.
type Registry struct {
	entries map[string]keywordEntry
}

// baseKeywords are the CHTL-JS forms the scanner always recognises inside
// script regions.
var baseKeywords = []string{"{{", "->", "=>", "listen", "delegate", "animate", "vir"}

// NewRegistry returns a registry pre-seeded with the base CHTL-JS keywords.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]keywordEntry)}
	for _, kw := range baseKeywords {
		r.entries[kw] = keywordEntry{active: RegionScriptBlock}
	}
	return r
}

// Register adds a CJMOD-contributed keyword, active inside script regions.
// Registering a keyword that already exists — from the base set or another
// module — is a duplicate-registration error.
func (r *Registry) Register(keyword, owner string) error {
	if e, ok := r.entries[keyword]; ok {
		if e.owner == "" {
			return fmt.Errorf("keyword %q is reserved by the base language", keyword)
		}
		return fmt.Errorf("keyword %q already registered by module %s", keyword, e.owner)
	}
	r.entries[keyword] = keywordEntry{active: RegionScriptBlock, owner: owner}
	return nil
}

// Owner returns the module that registered keyword, or "" for base keywords.
func (r *Registry) Owner(keyword string) (string, bool) {
	e, ok := r.entries[keyword]
	return e.owner, ok
}

// ModuleKeywords returns the CJMOD-contributed keywords (base set excluded).
func (r *Registry) ModuleKeywords() []string {
	var out []string
	for kw, e := range r.entries {
		if e.owner != "" {
			out = append(out, kw)
		}
	}
	return out
}

// ActiveIn reports whether keyword is recognised in the given region.
func (r *Registry) ActiveIn(keyword string, region RegionKind) bool {
	e, ok := r.entries[keyword]
	if !ok {
		return false
	}
	if e.active == RegionScriptBlock {
		return region == RegionScriptBlock || region == RegionGlobalScript
	}
	return e.active == region
}

// Snapshot returns an independent copy, so parallel compilation units never
// share a mutable table.
func (r *Registry) Snapshot() *Registry {
	c := &Registry{entries: make(map[string]keywordEntry, len(r.entries))}
	for k, v := range r.entries {
		c.entries[k] = v
	}
	return c
}
