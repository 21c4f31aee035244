// internal/snapshot/style.go
package snapshot

import (
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/linkrunner/internal/executor"
)

// A snapshot has no layout engine. Geometry and visibility come from inline
// styles only, which is what saved DOM dumps and hand-written fixtures carry.
const (
	defaultWidth  = 100
	defaultHeight = 20
)

var neverRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true, "noscript": true, "meta": true, "link": true, "title": true,
}

func inlineStyle(n *html.Node) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(htmlquery.SelectAttr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func pixels(v string) (float64, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func rectOf(n *html.Node) executor.Rect {
	st := inlineStyle(n)
	r := executor.Rect{Width: defaultWidth, Height: defaultHeight}
	if v, ok := pixels(st["left"]); ok {
		r.X = v
	}
	if v, ok := pixels(st["top"]); ok {
		r.Y = v
	}
	if v, ok := pixels(st["width"]); ok {
		r.Width = v
	}
	if v, ok := pixels(st["height"]); ok {
		r.Height = v
	}
	return r
}

func isVisible(n *html.Node) bool {
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		tag := strings.ToLower(cur.Data)
		if neverRendered[tag] {
			return false
		}
		if hasAttr(cur, "hidden") {
			return false
		}
		if tag == "input" && strings.EqualFold(htmlquery.SelectAttr(cur, "type"), "hidden") {
			return false
		}
		st := inlineStyle(cur)
		if st["display"] == "none" || st["visibility"] == "hidden" || st["opacity"] == "0" {
			return false
		}
	}
	r := rectOf(n)
	return r.Width > 0 && r.Height > 0
}

func isEnabled(n *html.Node) bool {
	if strings.EqualFold(htmlquery.SelectAttr(n, "aria-disabled"), "true") {
		return false
	}
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if !hasAttr(cur, "disabled") {
			continue
		}
		switch strings.ToLower(cur.Data) {
		case "button", "input", "select", "textarea", "option", "fieldset":
			return false
		}
	}
	return true
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if strings.EqualFold(n.Attr[i].Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
