// internal/browser/instance.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/session"
)

const closeStepTimeout = 10 * time.Second

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Instance owns one browser process with a single isolated browsing context
// and tab. Close tears them down page first, driver last.
type Instance struct {
	logger *zap.Logger
	opts   Options
	page   *Page
	tabCtx context.Context

	mu      sync.Mutex
	closers []closer
	closed  bool
}

// Launch starts a browser, opens a fresh browsing context and tab, installs
// the clipboard hook and replays state when it is non-empty.
func Launch(ctx context.Context, logger *zap.Logger, opts Options, state *session.State) (*Instance, error) {
	logger = logger.Named("browser")

	// The browser must outlive a cancelled run long enough for the ordered
	// shutdown, so only ctx's values are inherited.
	allocCtx, allocCancel := newAllocator(context.WithoutCancel(ctx), opts)
	sugar := logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	inst := &Instance{logger: logger, opts: opts}
	inst.closers = []closer{
		{name: "browser", fn: func(context.Context) error {
			err := chromedp.Cancel(browserCtx)
			browserCancel()
			return err
		}},
		{name: "driver", fn: func(context.Context) error {
			allocCancel()
			if c := chromedp.FromContext(allocCtx); c != nil && c.Allocator != nil {
				c.Allocator.Wait()
			}
			return nil
		}},
	}

	if err := inst.startup(ctx, browserCtx); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to start browser: %w", err), inst.Close(context.Background()))
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	inst.tabCtx = tabCtx
	inst.closers = append([]closer{
		{name: "page", fn: func(ctx context.Context) error {
			runCtx, cancel := combineContext(tabCtx, ctx)
			defer cancel()
			return chromedp.Run(runCtx, page.Close())
		}},
		{name: "context", fn: func(context.Context) error {
			tabCancel()
			return nil
		}},
	}, inst.closers...)

	if err := inst.startup(ctx, tabCtx); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to open tab: %w", err), inst.Close(context.Background()))
	}
	if err := inst.prepare(ctx, state); err != nil {
		return nil, multierr.Append(err, inst.Close(context.Background()))
	}

	inst.page = newPage(tabCtx, logger, opts.NavigationTimeout)
	logger.Info("Browser launched.",
		zap.Bool("headless", opts.Headless),
		zap.Bool("remote", opts.RemoteURL != ""),
		zap.Bool("restored_session", !state.Empty()))
	return inst, nil
}

// startup runs an empty action list, which makes chromedp allocate the
// browser or target behind c. The first Run binds the process and the target
// loop to the context it is given, so it must run on c itself; ctx only bounds
// how long Launch waits. On early return the caller's Close unblocks the Run.
func (i *Instance) startup(ctx, c context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(c) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newAllocator connects to opts.RemoteURL when set, otherwise it starts a
// local browser process.
func newAllocator(parent context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(parent, opts.RemoteURL)
	}
	return chromedp.NewExecAllocator(parent, allocatorOptions(opts)...)
}

func (i *Instance) prepare(ctx context.Context, state *session.State) error {
	runCtx, cancel := combineContext(i.tabCtx, ctx)
	defer cancel()

	scripts := []string{clipboardHook}
	for _, o := range originsOf(state) {
		scripts = append(scripts, fmt.Sprintf(restoreStorageScript, jsArg(o.Origin), jsArg(o.LocalStorage)))
	}

	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		browserExec := cdp.WithExecutor(ctx, c.Browser)

		perms := []cdpbrowser.PermissionType{cdpbrowser.PermissionTypeClipboardReadWrite, cdpbrowser.PermissionTypeClipboardSanitizedWrite}
		if err := cdpbrowser.GrantPermissions(perms).WithBrowserContextID(c.BrowserContextID).Do(browserExec); err != nil {
			// Not fatal: the in-page hook still captures writes.
			i.logger.Warn("Could not grant clipboard permissions.", zap.Error(err))
		}

		for _, src := range scripts {
			if _, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx); err != nil {
				return fmt.Errorf("failed to install init script: %w", err)
			}
		}

		if params := cookieParams(state); len(params) > 0 {
			if err := setCookies(browserExec, c.BrowserContextID, params); err != nil {
				return fmt.Errorf("failed to restore cookies: %w", err)
			}
			i.logger.Debug("Restored cookies.", zap.Int("count", len(params)))
		}
		return nil
	}))
}

// Page returns the instance's tab.
func (i *Instance) Page() *Page { return i.page }

// Headless reports how the instance was launched.
func (i *Instance) Headless() bool { return i.opts.Headless }

// Close releases page, browsing context, browser process and driver in that
// order. Each step runs at most once; failures are logged and returned
// together. Calling Close again is a no-op.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	closers := i.closers
	i.closers = nil
	i.mu.Unlock()

	var errs error
	for _, c := range closers {
		stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeStepTimeout)
		if err := c.fn(stepCtx); err != nil {
			i.logger.Warn("Cleanup step failed.", zap.String("step", c.name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		} else {
			i.logger.Debug("Cleanup step done.", zap.String("step", c.name))
		}
		cancel()
	}
	return errs
}
