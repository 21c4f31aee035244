// internal/snapshot/page.go
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// ErrStaleElement is returned when an element handle no longer resolves in
// the current document, usually because the page navigated.
var ErrStaleElement = errors.New("element is no longer attached to the document")

// ClickHandler reacts to a click on an element. It runs without the page lock
// held, so it may call back into the page (SetHTML, Navigate and so on).
type ClickHandler func(p *Page, el executor.Element) error

// KeyHandler reacts to a key press.
type KeyHandler func(p *Page) error

type clickBinding struct {
	selector string
	fn       ClickHandler
}

const maxRedirects = 10

// Page is an in-memory page driver backed by a parsed HTML document. It has
// no script engine or layout: behaviour is attached from Go through OnClick
// and OnKey, and geometry comes from inline styles.
type Page struct {
	mu     sync.Mutex
	logger *zap.Logger

	routes    map[string]string
	redirects map[string]string
	url       string
	doc       *html.Node
	clicks    map[string]int
	keys      map[string]KeyHandler
	bindings  []clickBinding
	clipboard string
}

// New returns an empty page at about:blank.
func New(logger *zap.Logger) *Page {
	p := &Page{
		logger:    logger.Named("snapshot"),
		routes:    make(map[string]string),
		redirects: make(map[string]string),
		clicks:    make(map[string]int),
		keys:      make(map[string]KeyHandler),
		url:       "about:blank",
	}
	p.doc, _ = html.Parse(strings.NewReader(""))
	return p
}

// FromHTML returns a page showing markup at url.
func FromHTML(logger *zap.Logger, url, markup string) (*Page, error) {
	p := New(logger)
	p.AddRoute(url, markup)
	if err := p.Navigate(context.Background(), url); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads a saved DOM dump from disk.
func Load(logger *zap.Logger, path string) (*Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return FromHTML(logger, "file://"+filepath.ToSlash(abs), string(data))
}

// AddRoute registers the document served for url.
func (p *Page) AddRoute(url, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[url] = markup
}

// AddRedirect makes navigation to from land on to.
func (p *Page) AddRedirect(from, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirects[from] = to
}

// Navigate replaces the current document with the route registered for url,
// following redirects.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for hops := 0; ; hops++ {
		to, ok := p.redirects[url]
		if !ok {
			break
		}
		if hops == maxRedirects {
			return fmt.Errorf("too many redirects from %s", url)
		}
		url = to
	}
	markup, ok := p.routes[url]
	if !ok {
		return fmt.Errorf("no route registered for %s", url)
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document for %s: %w", url, err)
	}
	p.url = url
	p.doc = doc
	p.logger.Debug("Navigated.", zap.String("url", url))
	return nil
}

// SetHTML swaps the current document in place, keeping the URL.
func (p *Page) SetHTML(markup string) error {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
	return nil
}

// OnClick runs fn after every successful click on an element matching selector.
func (p *Page) OnClick(selector string, fn ClickHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings = append(p.bindings, clickBinding{selector: selector, fn: fn})
}

// OnKey runs fn whenever key is pressed.
func (p *Page) OnKey(key string, fn KeyHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[key] = fn
}

// Clicks counts landed clicks on elements currently matching selector.
func (p *Page) Clicks(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, node := range goquery.NewDocumentFromNode(p.doc).Find(selector).Nodes {
		n += p.clicks[nodeRef(node)]
	}
	return n
}

// URL returns the address of the current document.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// PressKey dispatches key to its handler, if any.
func (p *Page) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	fn := p.keys[key]
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(p)
}

// Screenshot is not available without a renderer.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, errors.ErrUnsupported
}

// HTML serializes the current document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	if err := html.Render(&b, p.doc); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Query implements executor.Page.
func (p *Page) Query(ctx context.Context, c locator.Candidate) ([]executor.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	nodes, err := match(p.doc, c)
	if err != nil {
		return nil, err
	}
	els := make([]executor.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, describe(n))
	}
	return els, nil
}

// Click implements executor.Page. A data-intercept attribute on the target
// listing click modes ("native forced") makes those modes fail as if an
// overlay covered the element.
func (p *Page) Click(ctx context.Context, el executor.Element, mode executor.ClickMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	node, err := p.lookup(el)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	for _, m := range strings.Fields(htmlquery.SelectAttr(node, "data-intercept")) {
		if strings.EqualFold(m, mode.String()) {
			p.mu.Unlock()
			return executor.ErrClickIntercepted
		}
	}
	if mode != executor.ClickScript && !isEnabled(node) {
		p.mu.Unlock()
		return fmt.Errorf("element %s is disabled", el.Ref)
	}

	p.clicks[el.Ref]++
	p.copyOnClick(node)

	var handlers []ClickHandler
	sel := goquery.NewDocumentFromNode(p.doc)
	for _, b := range p.bindings {
		for _, m := range sel.Find(b.selector).Nodes {
			if m == node {
				handlers = append(handlers, b.fn)
				break
			}
		}
	}
	href := ""
	if a := closest(node, "a"); a != nil {
		if target := htmlquery.SelectAttr(a, "href"); target != "" {
			if _, ok := p.routes[target]; ok {
				href = target
			}
		}
	}
	p.mu.Unlock()

	p.logger.Debug("Click landed.", zap.String("ref", el.Ref), zap.Stringer("mode", mode))
	for _, fn := range handlers {
		if err := fn(p, el); err != nil {
			return err
		}
	}
	if href != "" {
		return p.Navigate(ctx, href)
	}
	return nil
}

// Clear implements executor.Page.
func (p *Page) Clear(ctx context.Context, el executor.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.lookup(el)
	if err != nil {
		return err
	}
	setAttr(node, "value", "")
	return nil
}

// Type implements executor.Page by appending text to the control's value.
func (p *Page) Type(ctx context.Context, el executor.Element, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.lookup(el)
	if err != nil {
		return err
	}
	if !isEnabled(node) {
		return fmt.Errorf("element %s is disabled", el.Ref)
	}
	setAttr(node, "value", htmlquery.SelectAttr(node, "value")+text)
	return nil
}

// Value implements executor.Page.
func (p *Page) Value(ctx context.Context, el executor.Element) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.lookup(el)
	if err != nil {
		return "", err
	}
	return valueOf(node), nil
}

// ClearClipboard implements executor.Page.
func (p *Page) ClearClipboard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clipboard = ""
	return nil
}

// ReadClipboard implements executor.Page.
func (p *Page) ReadClipboard(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clipboard, nil
}

// Text implements executor.Page.
func (p *Page) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return visibleText(p.doc), nil
}

func (p *Page) lookup(el executor.Element) (*html.Node, error) {
	node, err := htmlquery.Query(p.doc, el.Ref)
	if err != nil {
		return nil, fmt.Errorf("invalid element handle %q: %w", el.Ref, err)
	}
	if node == nil {
		return nil, fmt.Errorf("%s: %w", el.Ref, ErrStaleElement)
	}
	return node, nil
}

// copyOnClick emulates copy buttons: data-clipboard-text carries the payload
// directly, data-clipboard-target names the element holding it.
func (p *Page) copyOnClick(node *html.Node) {
	if hasAttr(node, "data-clipboard-text") {
		p.clipboard = htmlquery.SelectAttr(node, "data-clipboard-text")
		return
	}
	target := htmlquery.SelectAttr(node, "data-clipboard-target")
	if target == "" {
		return
	}
	if src := goquery.NewDocumentFromNode(p.doc).Find(target).First(); len(src.Nodes) > 0 {
		p.clipboard = valueOf(src.Nodes[0])
	}
}

func describe(n *html.Node) executor.Element {
	return executor.Element{
		Ref:     nodeRef(n),
		Tag:     strings.ToLower(n.Data),
		Text:    elementText(n),
		Rect:    rectOf(n),
		Visible: isVisible(n),
		Enabled: isEnabled(n),
	}
}

func valueOf(n *html.Node) string {
	switch strings.ToLower(n.Data) {
	case "input":
		return htmlquery.SelectAttr(n, "value")
	case "textarea":
		if hasAttr(n, "value") {
			return htmlquery.SelectAttr(n, "value")
		}
		return htmlquery.InnerText(n)
	case "select":
		var first string
		for _, opt := range htmlquery.Find(n, ".//option") {
			v := htmlquery.SelectAttr(opt, "value")
			if !hasAttr(opt, "value") {
				v = locator.NormalizeText(htmlquery.InnerText(opt))
			}
			if hasAttr(opt, "selected") {
				return v
			}
			if first == "" {
				first = v
			}
		}
		return first
	}
	return strings.TrimSpace(locator.NormalizeText(htmlquery.InnerText(n)))
}

func closest(n *html.Node, tag string) *html.Node {
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if strings.EqualFold(cur.Data, tag) {
			return cur
		}
	}
	return nil
}

// visibleText concatenates the text of every rendered text node.
func visibleText(doc *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && !isRendered(n) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return locator.NormalizeText(strings.Join(parts, " "))
}

// isRendered is the style half of isVisible for a single node, without the
// size check, so zero-size wrappers still contribute their children's text.
func isRendered(n *html.Node) bool {
	if neverRendered[strings.ToLower(n.Data)] || hasAttr(n, "hidden") {
		return false
	}
	st := inlineStyle(n)
	return st["display"] != "none" && st["visibility"] != "hidden"
}
