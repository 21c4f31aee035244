// internal/snapshot/match.go
package snapshot

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// match returns the nodes c selects in doc, in document order.
func match(doc *html.Node, c locator.Candidate) ([]*html.Node, error) {
	switch c.Strategy {
	case locator.StrategyCSS:
		return goquery.NewDocumentFromNode(doc).Find(c.Pattern).Nodes, nil
	case locator.StrategyXPath:
		nodes, err := htmlquery.QueryAll(doc, c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", c.Pattern, err)
		}
		var elems []*html.Node
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				elems = append(elems, n)
			}
		}
		return elems, nil
	case locator.StrategyExactText, locator.StrategyContainsText:
		return innermost(collect(doc, func(n *html.Node) bool {
			return tagMatches(n, c.Tag) && c.MatchText(elementText(n))
		})), nil
	case locator.StrategyPlaceholder:
		return collect(doc, func(n *html.Node) bool {
			return tagMatches(n, c.Tag) && hasAttr(n, "placeholder") && c.MatchText(htmlquery.SelectAttr(n, "placeholder"))
		}), nil
	case locator.StrategyRole:
		return collect(doc, func(n *html.Node) bool {
			return roleOf(n) == c.Role && c.MatchText(accessibleName(n))
		}), nil
	}
	return nil, fmt.Errorf("unsupported strategy %q", c.Strategy)
}

func collect(doc *html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && !neverRendered[strings.ToLower(n.Data)] && keep(n) {
			out = append(out, n)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return out
}

// innermost drops every node that has another matched node below it, so a
// container never competes with the element that actually carries the text.
func innermost(nodes []*html.Node) []*html.Node {
	set := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
	}
	shadowed := make(map[*html.Node]bool)
	for _, n := range nodes {
		for p := n.Parent; p != nil; p = p.Parent {
			if set[p] {
				shadowed[p] = true
			}
		}
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		if !shadowed[n] {
			out = append(out, n)
		}
	}
	return out
}

func tagMatches(n *html.Node, tag string) bool {
	return tag == "" || tag == "*" || strings.EqualFold(n.Data, tag)
}

// elementText is the node's text content; button-like inputs contribute their value.
func elementText(n *html.Node) string {
	if strings.EqualFold(n.Data, "input") {
		switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
		case "button", "submit", "reset":
			return htmlquery.SelectAttr(n, "value")
		}
	}
	return locator.NormalizeText(htmlquery.InnerText(n))
}

func roleOf(n *html.Node) string {
	if r := strings.TrimSpace(htmlquery.SelectAttr(n, "role")); r != "" {
		return strings.ToLower(strings.Fields(r)[0])
	}
	switch strings.ToLower(n.Data) {
	case "button":
		return "button"
	case "a":
		if hasAttr(n, "href") {
			return "link"
		}
	case "textarea":
		return "textbox"
	case "select":
		return "combobox"
	case "dialog":
		return "dialog"
	case "input":
		switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
		case "button", "submit", "reset", "image":
			return "button"
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "", "text", "email", "password", "search", "tel", "url":
			return "textbox"
		}
	}
	return ""
}

func accessibleName(n *html.Node) string {
	for _, attr := range []string{"aria-label", "title", "placeholder"} {
		if v := strings.TrimSpace(htmlquery.SelectAttr(n, attr)); v != "" {
			return v
		}
	}
	return elementText(n)
}
