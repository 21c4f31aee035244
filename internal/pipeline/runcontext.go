// internal/pipeline/runcontext.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/config"
	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/session"
)

// Page is the driver surface the stages use: the executor's element
// operations plus navigation and capture.
type Page interface {
	executor.Page
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	PressKey(ctx context.Context, key string) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Browser is a launched browser with a single tab.
type Browser interface {
	Page() Page
	StorageState(ctx context.Context) (*session.State, error)
	Headless() bool
	// Close releases the browser. It must be safe to call more than once.
	Close(ctx context.Context) error
}

// Launcher starts browsers, replaying state when it is non-empty.
type Launcher interface {
	Launch(ctx context.Context, headless bool, state *session.State) (Browser, error)
}

// Prompter tells the operator to act in the visible browser.
type Prompter interface {
	Prompt(ctx context.Context, message string) error
}

// RunContext is the state threaded through every stage of one run. Stages
// run one at a time, so it needs no locking.
type RunContext struct {
	Config   *config.Config
	Logger   *zap.Logger
	Executor *executor.Executor
	Catalog  *Catalog
	Outcome  *StepOutcome
	Sessions *session.Store
	Launcher Launcher
	Prompter Prompter
	// Interactive allows falling back to a manual login.
	Interactive bool

	browser       Browser
	now           func() time.Time
	progressEvery time.Duration
}

func (rc *RunContext) validate() error {
	switch {
	case rc == nil:
		return errors.New("nil run context")
	case rc.Config == nil, rc.Logger == nil, rc.Executor == nil, rc.Launcher == nil, rc.Sessions == nil:
		return errors.New("run context is missing a dependency")
	}
	if rc.Catalog == nil {
		rc.Catalog = DefaultCatalog()
	}
	if rc.Outcome == nil {
		rc.Outcome = &StepOutcome{}
	}
	if rc.now == nil {
		rc.now = time.Now
	}
	if rc.progressEvery <= 0 {
		rc.progressEvery = time.Minute
	}
	return nil
}

// Browser returns the current browser, or nil before one was launched.
func (rc *RunContext) Browser() Browser { return rc.browser }

// Page returns the current tab, or nil before a browser was launched.
func (rc *RunContext) Page() Page {
	if rc.browser == nil {
		return nil
	}
	return rc.browser.Page()
}

// launch replaces the current browser with a new one.
func (rc *RunContext) launch(ctx context.Context, headless bool, state *session.State) error {
	if err := rc.closeBrowser(ctx); err != nil {
		rc.Logger.Warn("Previous browser did not close cleanly.", zap.Error(err))
	}
	b, err := rc.Launcher.Launch(ctx, headless, state)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	rc.browser = b
	return nil
}

func (rc *RunContext) closeBrowser(ctx context.Context) error {
	if rc.browser == nil {
		return nil
	}
	b := rc.browser
	rc.browser = nil
	return b.Close(ctx)
}

func (rc *RunContext) page() (Page, error) {
	p := rc.Page()
	if p == nil {
		return nil, errors.New("no browser is running")
	}
	return p, nil
}

func (rc *RunContext) navigate(ctx context.Context, url string) error {
	p, err := rc.page()
	if err != nil {
		return err
	}
	if err := p.Navigate(ctx, url); err != nil {
		return err
	}
	if sig, blocked := rc.Executor.CheckBlocked(ctx, p); blocked {
		return &executor.ActionError{
			Result: executor.Result{Status: executor.StatusBlocked, Intent: "navigate " + url, Index: -1, Signature: sig},
			Err:    executor.ErrBlocked,
		}
	}
	return nil
}

func (rc *RunContext) currentURL(ctx context.Context) (string, error) {
	p, err := rc.page()
	if err != nil {
		return "", err
	}
	return p.URL(ctx)
}

// act runs one catalog action. timeout zero uses the executor default.
func (rc *RunContext) act(ctx context.Context, key string, action executor.Action, timeout time.Duration) (executor.Result, error) {
	p, err := rc.page()
	if err != nil {
		return executor.Result{Intent: key, Index: -1}, err
	}
	cands := rc.Catalog.Candidates(key)
	if len(cands) == 0 {
		return executor.Result{Intent: key, Index: -1}, fmt.Errorf("no locators registered for %q", key)
	}
	return rc.Executor.Execute(ctx, p, executor.Request{
		Intent:     key,
		Candidates: cands,
		Action:     action,
		Timeout:    timeout,
	})
}

func (rc *RunContext) click(ctx context.Context, key string, timeout time.Duration) error {
	_, err := rc.act(ctx, key, executor.Click(), timeout)
	return err
}

func (rc *RunContext) fill(ctx context.Context, key, text string, timeout time.Duration) error {
	_, err := rc.act(ctx, key, executor.Fill(text), timeout)
	return err
}

func (rc *RunContext) read(ctx context.Context, key string, timeout time.Duration) (string, error) {
	res, err := rc.act(ctx, key, executor.ReadValue(), timeout)
	return strings.TrimSpace(res.Value), err
}

// tolerate turns the failure of a best-effort action into a log line.
// Rejections and cancellation still propagate.
func (rc *RunContext) tolerate(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, executor.ErrBlocked) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	rc.Logger.Info(msg, zap.Error(err))
	return nil
}

// present waits up to timeout for key to resolve without touching it.
func (rc *RunContext) present(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	_, err := rc.act(ctx, key, executor.ReadValue(), timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, executor.ErrNotFound):
		return false, nil
	}
	return false, err
}

// gone polls until no candidate of key matches a single element any more.
func (rc *RunContext) gone(ctx context.Context, key string, timeout time.Duration) error {
	p, err := rc.page()
	if err != nil {
		return err
	}
	cands := rc.Catalog.Candidates(key)
	return rc.Executor.WaitUntil(ctx, key+" to disappear", timeout, func(ctx context.Context) (bool, error) {
		for _, c := range cands {
			els, err := p.Query(ctx, c)
			if err != nil {
				return false, err
			}
			for _, el := range els {
				if el.Visible {
					return false, nil
				}
			}
		}
		return true, nil
	})
}

// urlMatches reports whether rawURL contains any of markers, ignoring case.
func urlMatches(rawURL string, markers []string) bool {
	u := strings.ToLower(rawURL)
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" && strings.Contains(u, m) {
			return true
		}
	}
	return false
}
