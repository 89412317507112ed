package chtl

import (
	"strings"

	"github.com/beevik/etree"
)

// merge assembles the final document from the per-language outputs. SPA mode
// emits <style>, the HTML fragment and <script> with no enclosing shell; full
// pages get a document skeleton with CSS in <head> and JS at the end of
// <body>.
func (u *unitState) merge() *Result {
	res := &Result{
		HTML:        u.htmlOut,
		CSS:         u.cssOut,
		JS:          u.jsOut,
		Diagnostics: u.sink.All(),
	}

	spa := !u.sawHTML && !u.useHTML5
	if u.compiler.opts.Fragment {
		spa = true
	}
	res.SPA = spa

	if spa {
		res.Document = u.mergeSPA()
		return res
	}
	res.Document = u.mergeFullPage()
	return res
}

func (u *unitState) mergeSPA() string {
	var b strings.Builder
	nl := ""
	if u.pretty {
		nl = "\n"
	}
	if strings.TrimSpace(u.cssOut) != "" {
		b.WriteString("<style>" + nl)
		b.WriteString(u.cssOut)
		if nl != "" && !strings.HasSuffix(u.cssOut, "\n") {
			b.WriteString(nl)
		}
		b.WriteString("</style>" + nl)
	}
	b.WriteString(u.htmlOut)
	if nl != "" && u.htmlOut != "" && !strings.HasSuffix(u.htmlOut, "\n") {
		b.WriteString(nl)
	}
	if strings.TrimSpace(u.jsOut) != "" {
		b.WriteString("<script>" + nl)
		b.WriteString(u.jsOut)
		if nl != "" && !strings.HasSuffix(u.jsOut, "\n") {
			b.WriteString(nl)
		}
		b.WriteString("</script>" + nl)
	}
	return b.String()
}

// mergeFullPage builds the html/head/body skeleton with an element tree and
// serializes it around the generated HTML. When the source already provides
// its own <html> element the generated HTML passes through with only the
// doctype, style and script woven in.
func (u *unitState) mergeFullPage() string {
	pretty := u.pretty

	if u.sawHTML {
		// The author wrote the shell; only prepend the doctype.
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>")
		if pretty {
			b.WriteString("\n")
		}
		b.WriteString(u.htmlOut)
		return b.String()
	}

	doc := etree.NewDocument()
	htmlEl := doc.CreateElement("html")
	head := htmlEl.CreateElement("head")
	meta := head.CreateElement("meta")
	meta.CreateAttr("charset", "UTF-8")
	if strings.TrimSpace(u.cssOut) != "" {
		style := head.CreateElement("style")
		style.SetText(stylePlaceholder)
	}
	body := htmlEl.CreateElement("body")
	body.SetText(bodyPlaceholder)
	if strings.TrimSpace(u.jsOut) != "" {
		script := body.CreateElement("script")
		script.SetText(scriptPlaceholder)
	}

	if pretty {
		doc.Indent(2)
	}
	rendered, err := doc.WriteToString()
	if err != nil {
		// The tree is built locally; serialization cannot realistically fail,
		// but degrade to the SPA concatenation if it does.
		return u.mergeSPA()
	}

	// Splice the generated text in place of the placeholders: the element
	// tree gives the skeleton, but CSS, JS and the generated HTML must land
	// verbatim, not entity-escaped by the XML serializer.
	rendered = strings.Replace(rendered, stylePlaceholder, wrap(u.cssOut, pretty), 1)
	rendered = strings.Replace(rendered, scriptPlaceholder, wrap(u.jsOut, pretty), 1)
	rendered = strings.Replace(rendered, bodyPlaceholder, wrap(u.htmlOut, pretty), 1)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>")
	if pretty {
		b.WriteString("\n")
	}
	b.WriteString(rendered)
	return b.String()
}

// Placeholders mark where generated text splices into the skeleton after
// serialization.
const (
	bodyPlaceholder   = "__chtl_body_placeholder__"
	stylePlaceholder  = "__chtl_style_placeholder__"
	scriptPlaceholder = "__chtl_script_placeholder__"
)

func wrap(s string, pretty bool) string {
	s = strings.TrimRight(s, "\n")
	if !pretty {
		return s
	}
	return "\n" + s + "\n"
}
