// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// ErrElementGone is returned when a previously resolved element is no longer
// in the document.
var ErrElementGone = errors.New("element is no longer attached to the document")

// Page drives one browser tab. It implements executor.Page plus the
// navigation and capture calls the pipeline needs.
type Page struct {
	ctx        context.Context // tab context; carries the CDP target
	logger     *zap.Logger
	navTimeout time.Duration

	// Test seams. runActions executes chromedp actions bound to the tab;
	// eval evaluates an expression and decodes its JSON result into res.
	runActions func(ctx context.Context, actions ...chromedp.Action) error
	eval       func(ctx context.Context, expression string, res any, awaitPromise bool) error
}

var _ executor.Page = (*Page)(nil)

func newPage(ctx context.Context, logger *zap.Logger, navTimeout time.Duration) *Page {
	p := &Page{
		ctx:        ctx,
		logger:     logger.Named("page"),
		navTimeout: navTimeout,
	}
	p.runActions = p.run
	p.eval = p.evaluate
	return p
}

// run executes actions against the tab, bounded by both the tab lifetime and ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) evaluate(ctx context.Context, expression string, res any, awaitPromise bool) error {
	var opts []chromedp.EvaluateOption
	if awaitPromise {
		opts = append(opts, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithAwaitPromise(true)
		})
	}
	return p.runActions(ctx, chromedp.Evaluate(expression, res, opts...))
}

type queryArgs struct {
	Strategy string `json:"strategy"`
	Tag      string `json:"tag"`
	Role     string `json:"role"`
	Pattern  string `json:"pattern"`
}

// Query implements executor.Page.
func (p *Page) Query(ctx context.Context, c locator.Candidate) ([]executor.Element, error) {
	args := queryArgs{Strategy: string(c.Strategy), Tag: c.Tag, Role: c.Role, Pattern: c.Pattern}
	var els []executor.Element
	if err := p.eval(ctx, fmt.Sprintf(queryScript, jsArg(args)), &els, false); err != nil {
		return nil, fmt.Errorf("query %s: %w", c, err)
	}
	return els, nil
}

type point struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Hit   bool    `json:"hit"`
}

// Click implements executor.Page.
func (p *Page) Click(ctx context.Context, el executor.Element, mode executor.ClickMode) error {
	sel := jsArg(refSelector(el.Ref))

	if mode == executor.ClickScript {
		var ok bool
		if err := p.eval(ctx, fmt.Sprintf(scriptClickScript, sel), &ok, false); err != nil {
			return err
		}
		if !ok {
			return ErrElementGone
		}
		return nil
	}

	var pt point
	if err := p.eval(ctx, fmt.Sprintf(pointScript, sel, mode == executor.ClickNative), &pt, false); err != nil {
		return err
	}
	if !pt.Found {
		return ErrElementGone
	}
	if !pt.Hit {
		return executor.ErrClickIntercepted
	}
	return p.runActions(ctx, chromedp.MouseClickXY(pt.X, pt.Y))
}

// Clear implements executor.Page.
func (p *Page) Clear(ctx context.Context, el executor.Element) error {
	var ok bool
	if err := p.eval(ctx, fmt.Sprintf(clearScript, jsArg(refSelector(el.Ref))), &ok, false); err != nil {
		return err
	}
	if !ok {
		return ErrElementGone
	}
	return nil
}

// Type implements executor.Page with real key events.
func (p *Page) Type(ctx context.Context, el executor.Element, text string) error {
	return p.runActions(ctx, chromedp.SendKeys(refSelector(el.Ref), text, chromedp.ByQuery))
}

// Value implements executor.Page.
func (p *Page) Value(ctx context.Context, el executor.Element) (string, error) {
	var v *string
	if err := p.eval(ctx, fmt.Sprintf(valueScript, jsArg(refSelector(el.Ref))), &v, false); err != nil {
		return "", err
	}
	if v == nil {
		return "", ErrElementGone
	}
	return *v, nil
}

// ClearClipboard resets the capture hook and, where permitted, the system
// clipboard, so a copy that never lands reads back empty.
func (p *Page) ClearClipboard(ctx context.Context) error {
	var ok bool
	if err := p.eval(ctx, clearClipboardScript, &ok, true); err != nil {
		return fmt.Errorf("clipboard reset failed: %w", err)
	}
	return nil
}

// ReadClipboard prefers the in-page capture hook and falls back to the async
// clipboard API, which needs the permission granted at launch.
func (p *Page) ReadClipboard(ctx context.Context) (string, error) {
	var captured string
	if err := p.eval(ctx, capturedClipboardScript, &captured, false); err == nil && captured != "" {
		return captured, nil
	}
	var text string
	if err := p.eval(ctx, readClipboardScript, &text, true); err != nil {
		return "", fmt.Errorf("clipboard read failed: %w", err)
	}
	return text, nil
}

// Text implements executor.Page.
func (p *Page) Text(ctx context.Context) (string, error) {
	var text string
	err := p.eval(ctx, textScript, &text, false)
	return text, err
}

// Navigate loads url and waits for the document body, within the navigation budget.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if p.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, p.navTimeout)
		defer cancel()
	}
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.runActions(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// URL returns the tab's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.runActions(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

var namedKeys = map[string]string{
	"escape":    kb.Escape,
	"esc":       kb.Escape,
	"enter":     kb.Enter,
	"tab":       kb.Tab,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
}

// PressKey sends a named key ("Escape", "Enter", ...) or literal text to the
// focused element.
func (p *Page) PressKey(ctx context.Context, key string) error {
	keys, ok := namedKeys[strings.ToLower(key)]
	if !ok {
		keys = key
	}
	return p.runActions(ctx, chromedp.KeyEvent(keys))
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.runActions(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var out string
	if err := p.runActions(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}
