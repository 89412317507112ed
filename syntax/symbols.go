package syntax

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ObjectKind classifies entries in the global map.
type ObjectKind int

const (
	ObjTemplateStyle ObjectKind = iota
	ObjTemplateElement
	ObjTemplateVar
	ObjCustomStyle
	ObjCustomElement
	ObjCustomVar
	ObjOrigin
	ObjConfiguration
)

func (k ObjectKind) String() string {
	switch k {
	case ObjTemplateStyle:
		return "[Template] @Style"
	case ObjTemplateElement:
		return "[Template] @Element"
	case ObjTemplateVar:
		return "[Template] @Var"
	case ObjCustomStyle:
		return "[Custom] @Style"
	case ObjCustomElement:
		return "[Custom] @Element"
	case ObjCustomVar:
		return "[Custom] @Var"
	case ObjOrigin:
		return "[Origin]"
	case ObjConfiguration:
		return "[Configuration]"
	}
	return fmt.Sprintf("ObjectKind(%d)", int(k))
}

// NamespaceSep separates components of a qualified name.
const NamespaceSep = "."

// GlobalObject is one registered declaration. The body is referenced
// non-owningly; the AST outlives the map only within one compilation.
type GlobalObject struct {
	Kind          ObjectKind
	QualifiedName string   // full dotted path, e.g. "ui.buttons.Primary"
	Namespace     []string // namespace path, e.g. ["ui", "buttons"]
	File          string
	Pos           Span
	Body          *Node
}

// LocalName returns the last path component of the qualified name.
func (o *GlobalObject) LocalName() string {
	if i := strings.LastIndex(o.QualifiedName, NamespaceSep); i >= 0 {
		return o.QualifiedName[i+len(NamespaceSep):]
	}
	return o.QualifiedName
}

// DuplicateError is returned by Register when (kind, qualified name) collides
// within the same namespace scope.
type DuplicateError struct {
	Kind     ObjectKind
	Name     string
	Existing Source
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already defined at %s:%d:%d",
		e.Kind, e.Name, e.Existing.File, e.Existing.Span.Line, e.Existing.Span.Column)
}

func (e *DuplicateError) Is(target error) bool {
	var de *DuplicateError
	if errors.As(target, &de) {
		return e.Kind == de.Kind && e.Name == de.Name
	}
	return false
}

// GlobalMap is the namespaced registry of templates, customs, origins and
// configurations for a single compilation unit. Declarations self-register
// during parsing; the map is read-only thereafter. Not safe for concurrent
// writers; concurrent compilations each own their own map.
type GlobalMap struct {
	objects map[string]*GlobalObject // key: kind + "\x00" + qualified name
}

func NewGlobalMap() *GlobalMap {
	return &GlobalMap{objects: make(map[string]*GlobalObject)}
}

func mapKey(kind ObjectKind, qualified string) string {
	return fmt.Sprintf("%d\x00%s", kind, qualified)
}

// Register adds obj to the map. A collision on (kind, qualified name) returns
// a *DuplicateError carrying the position of the existing entry.
func (m *GlobalMap) Register(obj *GlobalObject) error {
	key := mapKey(obj.Kind, obj.QualifiedName)
	if existing, ok := m.objects[key]; ok {
		return &DuplicateError{
			Kind:     obj.Kind,
			Name:     obj.QualifiedName,
			Existing: Source{File: existing.File, Span: existing.Pos},
		}
	}
	m.objects[key] = obj
	return nil
}

// Find resolves name from the given namespace. A name containing the
// namespace separator is looked up exactly; otherwise the search walks from
// fromNS upward through its ancestors and finally the root namespace.
func (m *GlobalMap) Find(kind ObjectKind, name string, fromNS []string) *GlobalObject {
	if strings.Contains(name, NamespaceSep) {
		return m.objects[mapKey(kind, name)]
	}
	for i := len(fromNS); i >= 0; i-- {
		qualified := joinName(fromNS[:i], name)
		if obj, ok := m.objects[mapKey(kind, qualified)]; ok {
			return obj
		}
	}
	return nil
}

// Enumerate returns all objects of the given kind directly inside namespace
// ns, sorted by qualified name. Used for batch imports and exports.
func (m *GlobalMap) Enumerate(kind ObjectKind, ns []string) []*GlobalObject {
	var out []*GlobalObject
	for _, obj := range m.objects {
		if obj.Kind != kind {
			continue
		}
		if !sameNamespace(obj.Namespace, ns) {
			continue
		}
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName < out[j].QualifiedName
	})
	return out
}

// Len returns the number of registered objects.
func (m *GlobalMap) Len() int { return len(m.objects) }

func joinName(ns []string, name string) string {
	if len(ns) == 0 {
		return name
	}
	return strings.Join(ns, NamespaceSep) + NamespaceSep + name
}

func sameNamespace(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// objectKindFor maps a declaration node to its registry kind. The second
// result is false for nodes that do not register.
func objectKindFor(n *Node) (ObjectKind, bool) {
	switch n.Kind {
	case KindTemplate:
		switch n.Tag {
		case TagStyle:
			return ObjTemplateStyle, true
		case TagElement:
			return ObjTemplateElement, true
		case TagVar:
			return ObjTemplateVar, true
		}
	case KindCustom:
		switch n.Tag {
		case TagStyle:
			return ObjCustomStyle, true
		case TagElement:
			return ObjCustomElement, true
		case TagVar:
			return ObjCustomVar, true
		}
	case KindOrigin:
		if n.Name != "" {
			return ObjOrigin, true
		}
	case KindConfiguration:
		return ObjConfiguration, true
	}
	return 0, false
}
