package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dpotapov/chtl/diag"
)

// Importer resolves [Import] nodes. It acts as a factory for imported AST
// fragments, the way component importers do for templates: the implementation
// parses the referenced file with the unit's global map so its declarations
// register alongside local ones. Module imports (@Chtl / @CJmod whole-module
// forms) may return no nodes; their effect is symbol or keyword registration.
type Importer interface {
	Import(n *Node, global *GlobalMap, sink *diag.Sink) ([]*Node, error)
}

// ImporterFunc allows ordinary functions to act as Importer instances.
type ImporterFunc func(n *Node, global *GlobalMap, sink *diag.Sink) ([]*Node, error)

func (f ImporterFunc) Import(n *Node, global *GlobalMap, sink *diag.Sink) ([]*Node, error) {
	return f(n, global, sink)
}

// Resolver runs between parse and generation. It performs, in order: import
// expansion, namespace qualification, inheritance resolution, specialization
// application, reference expansion and constraint checking.
//
// Resolution never mutates parsed nodes: it produces a resolved view
// (a rewritten clone). Resolving an already-resolved tree is a no-op.
type Resolver struct {
	global   *GlobalMap
	sink     *diag.Sink
	importer Importer

	resolved  map[*GlobalObject]*Node
	resolving map[*GlobalObject]bool
	importing map[string]bool
	imported  map[string]bool
}

func NewResolver(global *GlobalMap, sink *diag.Sink, importer Importer) *Resolver {
	if global == nil {
		global = NewGlobalMap()
	}
	if sink == nil {
		sink = diag.NewSink("")
	}
	return &Resolver{
		global:    global,
		sink:      sink,
		importer:  importer,
		resolved:  make(map[*GlobalObject]*Node),
		resolving: make(map[*GlobalObject]bool),
		importing: make(map[string]bool),
		imported:  make(map[string]bool),
	}
}

// Resolve returns the resolved view of root. The original tree is unchanged.
func (r *Resolver) Resolve(root *Node) *Node {
	out := NewNode(KindRoot, root.Source)
	r.resolveInto(out, root.Children, nil)
	r.checkConstraints(root, nil)
	return out
}

// resolveInto appends the resolved forms of nodes to dst's children.
func (r *Resolver) resolveInto(dst *Node, nodes []*Node, ns []string) {
	for _, n := range nodes {
		for _, rn := range r.resolveNode(n, ns) {
			dst.AppendChild(rn)
		}
	}
}

// resolveNode resolves one node, possibly into several (import splice,
// element template expansion).
func (r *Resolver) resolveNode(n *Node, ns []string) []*Node {
	switch n.Kind {
	case KindImport:
		return r.expandImport(n)

	case KindNamespace:
		out := n.Clone()
		out.Children = nil
		r.resolveInto(out, n.Children, append(ns, n.Name))
		return []*Node{out}

	case KindTemplate, KindCustom, KindOrigin, KindConfiguration, KindUse, KindComment:
		// Declarations pass through untouched; generators know which to skip.
		return []*Node{n.Clone()}

	case KindElement:
		out := n.Clone()
		out.Children = nil
		out.Attrs = cloneNodes(n.Attrs)
		r.resolveInto(out, n.Children, ns)
		return []*Node{out}

	case KindStyleBlock, KindSelector:
		out := n.Clone()
		out.Children = nil
		r.resolveInto(out, n.Children, ns)
		return []*Node{out}

	case KindProperty:
		out := n.Clone()
		out.Value = r.expandVars(out.Value, ns, out.Source)
		return []*Node{out}

	case KindTemplateRef, KindCustomRef:
		return r.expandReference(n, ns)

	default:
		return []*Node{n.Clone()}
	}
}

// ---- pass 1: import expansion ----

func (r *Resolver) expandImport(n *Node) []*Node {
	key := n.Tag.String() + " " + n.Value
	if r.importing[key] {
		r.report(n, "cyclic import of %q", n.Value)
		return nil // break the cycle at the first re-entry
	}
	if r.imported[key] {
		return nil
	}
	if r.importer == nil {
		r.report(n, "imports are not allowed")
		return nil
	}
	r.importing[key] = true
	defer func() {
		delete(r.importing, key)
		r.imported[key] = true
	}()

	nodes, err := r.importer.Import(n, r.global, r.sink)
	if err != nil {
		r.report(n, "import %q: %v", n.Value, err)
		return nil
	}
	out := NewNode(KindRoot, n.Source)
	r.resolveInto(out, nodes, nil)
	return out.Children
}

// ---- pass 3: inheritance resolution ----

// resolvedBody returns the body of obj with all inheritance merged and
// declaration-level specializations applied. Results are memoized; cycles are
// reported once and broken.
func (r *Resolver) resolvedBody(obj *GlobalObject) *Node {
	if body, ok := r.resolved[obj]; ok {
		return body
	}
	if r.resolving[obj] {
		r.reportAt(obj.Body.Source, "inheritance cycle through %s %s", obj.Kind, obj.QualifiedName)
		return obj.Body.Clone()
	}
	r.resolving[obj] = true
	defer delete(r.resolving, obj)

	merged := obj.Body.Clone()
	if len(obj.Body.Inherits) > 0 {
		base := NewNode(obj.Body.Kind, obj.Body.Source)
		base.Tag = obj.Body.Tag
		base.Name = obj.Body.Name
		for _, inh := range obj.Body.Inherits {
			parent := r.lookupRef(inh.Tag, inh.Name, obj.Namespace, inh.Source)
			if parent == nil {
				continue
			}
			if tagOfObject(parent.Kind) != obj.Body.Tag {
				r.reportAt(inh.Source, "cannot inherit %s into %s body", parent.Kind, obj.Body.Tag)
				continue
			}
			mergeBody(base, r.resolvedBody(parent))
		}
		mergeBody(base, merged)
		merged = base
	}

	// Declaration-level specializations (customs may delete inherited parts).
	merged = r.applySpecializations(merged, extractSpecOps(merged), obj.QualifiedName)
	r.resolved[obj] = merged
	return merged
}

// mergeBody merges src into dst: properties key-merge (last wins), everything
// else concatenates in order.
func mergeBody(dst, src *Node) {
	for _, c := range src.Children {
		if c.Kind == KindProperty {
			if existing := findProperty(dst, c.Name); existing != nil {
				existing.Value = c.Value
				existing.AssignedWith = c.AssignedWith
				continue
			}
		}
		dst.AppendChild(c.Clone())
	}
}

func findProperty(n *Node, name string) *Node {
	for _, c := range n.Children {
		if c.Kind == KindProperty && c.Name == name {
			return c
		}
	}
	return nil
}

// extractSpecOps removes deletion/insertion operator nodes from a body and
// returns them in document order.
func extractSpecOps(body *Node) []*Node {
	var ops []*Node
	var rest []*Node
	for _, c := range body.Children {
		if c.Kind == KindDeletion || c.Kind == KindInsertion {
			ops = append(ops, c)
		} else {
			rest = append(rest, c)
		}
	}
	body.Children = rest
	return ops
}

// ---- pass 4: specialization application ----

// applySpecializations applies overrides, deletions and insertions to an
// already-merged body, in document order.
func (r *Resolver) applySpecializations(body *Node, ops []*Node, what string) *Node {
	replaced := map[string]bool{}
	for _, op := range ops {
		switch op.Kind {
		case KindDeletion:
			r.applyDeletion(body, op)
		case KindInsertion:
			r.applyInsertion(body, op, replaced, what)
		case KindProperty:
			if existing := findProperty(body, op.Name); existing != nil {
				existing.Value = op.Value
			} else {
				body.AppendChild(op.Clone())
			}
		case KindIndexAccess:
			r.applyIndexedOverride(body, op)
		case KindElement:
			body.AppendChild(op.Clone())
		case KindTemplateRef, KindCustomRef:
			body.AppendChild(op.Clone())
		}
	}
	return body
}

func (r *Resolver) applyDeletion(body *Node, op *Node) {
	for _, target := range op.Targets {
		switch {
		case strings.HasPrefix(target, "@"):
			// Inheritance deletion removed the merged-in parts; the closest
			// faithful behavior post-merge is removing children whose origin
			// template matches. With positions rebased we fall back to a
			// name-scoped removal of style properties from that parent.
			r.deleteInherited(body, target, op.Source)
		case strings.Contains(target, "["):
			name, idx := splitIndexTarget(target)
			if !removeIndexedChild(body, name, idx) {
				r.reportAt(op.Source, "delete target %s not found", target)
			}
		default:
			if !removeNamed(body, target) {
				r.reportAt(op.Source, "delete target %q not found", target)
			}
		}
	}
}

func (r *Resolver) deleteInherited(body *Node, target string, src Source) {
	fields := strings.Fields(target)
	if len(fields) != 2 {
		r.reportAt(src, "bad delete target %q", target)
		return
	}
	marker, name := fields[0], fields[1]
	var kind ObjectKind
	switch marker {
	case "@Style":
		kind = ObjTemplateStyle
	case "@Element":
		kind = ObjTemplateElement
	case "@Var":
		kind = ObjTemplateVar
	default:
		r.reportAt(src, "bad delete target %q", target)
		return
	}
	parent := r.global.Find(kind, name, nil)
	if parent == nil {
		// Customs may also be deletion targets.
		switch kind {
		case ObjTemplateStyle:
			parent = r.global.Find(ObjCustomStyle, name, nil)
		case ObjTemplateElement:
			parent = r.global.Find(ObjCustomElement, name, nil)
		case ObjTemplateVar:
			parent = r.global.Find(ObjCustomVar, name, nil)
		}
	}
	if parent == nil {
		r.reportAt(src, "delete target %s %s not found", marker, name)
		return
	}
	for _, pc := range parent.Body.Children {
		if pc.Kind == KindProperty {
			removeProperty(body, pc.Name)
		} else if pc.Kind == KindElement {
			removeNamed(body, pc.Name)
		}
	}
}

// applyInsertion inserts op's body at the specified position relative to a
// named child; ties break at the first match. Two replace insertions against
// the same target conflict.
func (r *Resolver) applyInsertion(body *Node, op *Node, replaced map[string]bool, what string) {
	switch op.Insert {
	case InsAtTop:
		body.Children = append(cloneNodes(op.Children), body.Children...)
		return
	case InsAtBottom:
		body.Children = append(body.Children, cloneNodes(op.Children)...)
		return
	}

	name, idx := splitIndexTarget(op.Name)
	pos := indexOfChild(body, name, idx)
	if pos < 0 {
		r.reportAt(op.Source, "insertion target %q not found in %s", op.Name, what)
		return
	}
	switch op.Insert {
	case InsAfter:
		body.Children = insertAll(body.Children, pos+1, cloneNodes(op.Children))
	case InsBefore:
		body.Children = insertAll(body.Children, pos, cloneNodes(op.Children))
	case InsReplace:
		if replaced[op.Name] {
			r.reportAt(op.Source, "conflicting specialization: %q already replaced", op.Name)
			return
		}
		replaced[op.Name] = true
		rest := append([]*Node(nil), body.Children[pos+1:]...)
		body.Children = append(body.Children[:pos], cloneNodes(op.Children)...)
		body.Children = append(body.Children, rest...)
	}
}

func (r *Resolver) applyIndexedOverride(body *Node, op *Node) {
	pos := indexOfChild(body, op.Name, op.Index)
	if pos < 0 {
		r.reportAt(op.Source, "override target %s[%d] not found", op.Name, op.Index)
		return
	}
	child := body.Children[pos]
	for _, c := range op.Children {
		switch c.Kind {
		case KindAttribute:
			if existing := child.Attr(c.Name); existing != nil {
				existing.Value = c.Value
			} else {
				child.AddAttr(c.Clone())
			}
		default:
			child.AppendChild(c.Clone())
		}
	}
}

// ---- pass 5: reference expansion ----

// expandReference replaces a template or custom reference with a deep clone
// of the resolved body, positions rebased to the reference site.
func (r *Resolver) expandReference(n *Node, ns []string) []*Node {
	if n.Value == "origin" {
		return r.expandOriginRef(n, ns)
	}

	searchNS := ns
	if n.Namespace != "" {
		searchNS = strings.Split(n.Namespace, NamespaceSep)
	}
	obj := r.lookupRef(n.Tag, n.Name, searchNS, n.Source)
	if obj == nil {
		return nil
	}
	body := r.resolvedBody(obj).CloneForUse(n.Source)

	// Use-site specializations on custom references.
	if n.Kind == KindCustomRef {
		body = r.applySpecializations(body, cloneNodes(n.Children), obj.QualifiedName)
	}

	// The reference site splices the body children in place; nested
	// references inside the body expand recursively.
	out := NewNode(KindRoot, n.Source)
	r.resolveInto(out, body.Children, ns)
	return out.Children
}

func (r *Resolver) expandOriginRef(n *Node, ns []string) []*Node {
	obj := r.global.Find(ObjOrigin, n.Name, ns)
	if obj == nil {
		r.reportAt(n.Source, "unknown origin %q", n.Name)
		return nil
	}
	return []*Node{obj.Body.CloneForUse(n.Source)}
}

// lookupRef finds a template or custom object for a reference, preferring
// templates and falling back to customs of the same type tag.
func (r *Resolver) lookupRef(tag TypeTag, name string, ns []string, src Source) *GlobalObject {
	var tmplKind, customKind ObjectKind
	switch tag {
	case TagStyle:
		tmplKind, customKind = ObjTemplateStyle, ObjCustomStyle
	case TagElement:
		tmplKind, customKind = ObjTemplateElement, ObjCustomElement
	case TagVar:
		tmplKind, customKind = ObjTemplateVar, ObjCustomVar
	default:
		r.reportAt(src, "cannot resolve reference of type %s", tag)
		return nil
	}
	if obj := r.global.Find(tmplKind, name, ns); obj != nil {
		return obj
	}
	if obj := r.global.Find(customKind, name, ns); obj != nil {
		return obj
	}
	r.reportAt(src, "unknown symbol %s %s", tag, name)
	return nil
}

// ---- variable expansion ----

// expandVars rewrites GroupName(key) and GroupName(key=default) occurrences
// in a property value. The shape is treated as a plain CSS function call
// unless GroupName resolves to a @Var object.
func (r *Resolver) expandVars(value string, ns []string, src Source) string {
	var b strings.Builder
	i := 0
	for i < len(value) {
		c := value[i]
		if !isIdentByteStart(c) {
			b.WriteByte(c)
			i++
			continue
		}
		j := i
		for j < len(value) && isIdentByte(value[j]) {
			j++
		}
		name := value[i:j]
		if j < len(value) && value[j] == '(' {
			end := strings.IndexByte(value[j:], ')')
			if end >= 0 {
				arg := value[j+1 : j+end]
				if group := r.findVarGroup(name, ns); group != nil {
					b.WriteString(r.lookupVar(group, arg, src))
					i = j + end + 1
					continue
				}
			}
		}
		b.WriteString(name)
		i = j
	}
	return b.String()
}

func (r *Resolver) findVarGroup(name string, ns []string) *GlobalObject {
	if obj := r.global.Find(ObjTemplateVar, name, ns); obj != nil {
		return obj
	}
	return r.global.Find(ObjCustomVar, name, ns)
}

// lookupVar resolves "key" or "key=default" against a variable group. Color
// values normalize to canonical hex on the way out.
func (r *Resolver) lookupVar(group *GlobalObject, arg string, src Source) string {
	key := strings.TrimSpace(arg)
	def := ""
	hasDef := false
	if eq := strings.IndexByte(arg, '='); eq >= 0 {
		key = strings.TrimSpace(arg[:eq])
		def = strings.TrimSpace(arg[eq+1:])
		hasDef = true
	}
	body := r.resolvedBody(group)
	if prop := findProperty(body, key); prop != nil {
		return prop.Value
	}
	if hasDef {
		return def
	}
	r.reportAt(src, "variable %q not set in group %s", key, group.QualifiedName)
	return ""
}

// ---- pass 6: constraint checking ----

// checkConstraints enforces except/inherit constraints declared in
// namespaces: except prunes (its targets must not be declared inside),
// inherit requires at least one declaration of each target kind.
func (r *Resolver) checkConstraints(root *Node, ns []string) {
	Inspect(root, func(n *Node) bool {
		if n.Kind != KindNamespace {
			return true
		}
		for _, c := range n.Children {
			if c.Kind != KindConstraint {
				continue
			}
			for _, target := range c.Targets {
				present := namespaceDeclares(n, target)
				if c.Constraint == ConsExcept && present {
					r.reportAt(c.Source, "namespace %s excludes %s but declares one", n.Name, target)
				}
				if c.Constraint == ConsInherit && !present {
					r.reportAt(c.Source, "namespace %s requires %s but declares none", n.Name, target)
				}
			}
		}
		return true
	})
}

func namespaceDeclares(nsNode *Node, target string) bool {
	found := false
	for _, c := range nsNode.Children {
		switch target {
		case "[Template]":
			found = found || c.Kind == KindTemplate
		case "[Custom]":
			found = found || c.Kind == KindCustom
		case "[Origin]":
			found = found || c.Kind == KindOrigin
		case "@Style":
			found = found || ((c.Kind == KindTemplate || c.Kind == KindCustom) && c.Tag == TagStyle)
		case "@Element":
			found = found || ((c.Kind == KindTemplate || c.Kind == KindCustom) && c.Tag == TagElement)
		case "@Var":
			found = found || ((c.Kind == KindTemplate || c.Kind == KindCustom) && c.Tag == TagVar)
		default:
			found = found || c.Name == target
		}
		if found {
			return true
		}
	}
	return false
}

// ---- helpers ----

func tagOfObject(kind ObjectKind) TypeTag {
	switch kind {
	case ObjTemplateStyle, ObjCustomStyle:
		return TagStyle
	case ObjTemplateElement, ObjCustomElement:
		return TagElement
	case ObjTemplateVar, ObjCustomVar:
		return TagVar
	}
	return TagNone
}

func splitIndexTarget(target string) (string, int) {
	if i := strings.IndexByte(target, '['); i >= 0 {
		name := target[:i]
		idxText := strings.TrimSuffix(target[i+1:], "]")
		idx, err := strconv.Atoi(idxText)
		if err != nil {
			return name, 0
		}
		return name, idx
	}
	return target, -1 // -1: first match
}

// indexOfChild finds the idx'th child element named name; idx < 0 means the
// first match.
func indexOfChild(body *Node, name string, idx int) int {
	seen := 0
	for i, c := range body.Children {
		if c.Kind == KindElement && c.Name == name {
			if idx < 0 || seen == idx {
				return i
			}
			seen++
		}
	}
	return -1
}

func removeIndexedChild(body *Node, name string, idx int) bool {
	pos := indexOfChild(body, name, idx)
	if pos < 0 {
		return false
	}
	body.Children = append(body.Children[:pos], body.Children[pos+1:]...)
	return true
}

func removeNamed(body *Node, name string) bool {
	removed := false
	var out []*Node
	for _, c := range body.Children {
		if (c.Kind == KindElement || c.Kind == KindProperty) && c.Name == name {
			removed = true
			continue
		}
		out = append(out, c)
	}
	body.Children = out
	return removed
}

func removeProperty(body *Node, name string) {
	var out []*Node
	for _, c := range body.Children {
		if c.Kind == KindProperty && c.Name == name {
			continue
		}
		out = append(out, c)
	}
	body.Children = out
}

func insertAll(s []*Node, at int, items []*Node) []*Node {
	out := make([]*Node, 0, len(s)+len(items))
	out = append(out, s[:at]...)
	out = append(out, items...)
	out = append(out, s[at:]...)
	return out
}

func isIdentByteStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentByteStart(c) || (c >= '0' && c <= '9')
}

func (r *Resolver) report(n *Node, format string, args ...any) {
	r.reportAt(n.Source, format, args...)
}

func (r *Resolver) reportAt(src Source, format string, args ...any) {
	r.sink.Report(diag.Diagnostic{
		Kind:      diag.Resolution,
		File:      src.File,
		Line:      src.Span.Line,
		Column:    src.Span.Column,
		Message:   fmt.Sprintf(format, args...),
		Component: "resolver",
	})
}
