// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// DefaultBlockSignatures are page texts that identify a provider-side
// rejection of an automated browser.
var DefaultBlockSignatures = []string{
	`this browser or app may not be secure`,
	`couldn.t sign you in`,
	`browser may not be secure`,
}

// Options tunes the executor's time budgets.
type Options struct {
	// Timeout is the default overall budget for a request.
	Timeout time.Duration
	// CandidateTimeout bounds a single Query of a single candidate.
	CandidateTimeout time.Duration
	// PollInterval paces resolution rounds and condition polling.
	PollInterval time.Duration
	// ActionTimeout bounds the interaction once an element resolved.
	ActionTimeout time.Duration
	// TypeDelay, when positive, types one character at a time with this pause.
	TypeDelay time.Duration
	// BlockSignatures are case-insensitive regular expressions matched against page text.
	BlockSignatures []string
}

// DefaultOptions returns the budgets used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:          10 * time.Second,
		CandidateTimeout: 2 * time.Second,
		PollInterval:     250 * time.Millisecond,
		ActionTimeout:    15 * time.Second,
		BlockSignatures:  DefaultBlockSignatures,
	}
}

// Executor resolves ordered locator candidates against a page and performs
// one interaction on the first candidate that yields exactly one visible,
// enabled element.
type Executor struct {
	logger     *zap.Logger
	opts       Options
	signatures []*regexp.Regexp
}

// New validates opts and compiles the rejection signatures.
func New(logger *zap.Logger, opts Options) (*Executor, error) {
	if opts.Timeout <= 0 || opts.CandidateTimeout <= 0 || opts.PollInterval <= 0 || opts.ActionTimeout <= 0 {
		return nil, fmt.Errorf("executor timeouts and poll interval must be positive")
	}
	if opts.TypeDelay < 0 {
		return nil, fmt.Errorf("executor type delay must not be negative")
	}
	sigs := make([]*regexp.Regexp, 0, len(opts.BlockSignatures))
	for _, s := range opts.BlockSignatures {
		re, err := regexp.Compile("(?i)" + s)
		if err != nil {
			return nil, fmt.Errorf("invalid block signature %q: %w", s, err)
		}
		sigs = append(sigs, re)
	}
	return &Executor{
		logger:     logger.Named("executor"),
		opts:       opts,
		signatures: sigs,
	}, nil
}

// Options returns the executor's effective options.
func (e *Executor) Options() Options { return e.opts }

// Execute runs req against page. The returned Result is always populated; the
// error is nil only for StatusSuccess. NotFound and Blocked outcomes are
// reported as *ActionError wrapping ErrNotFound or ErrBlocked.
func (e *Executor) Execute(ctx context.Context, page Page, req Request) (Result, error) {
	start := time.Now()
	res := Result{Intent: req.Intent, Index: -1}
	log := e.logger.With(zap.String("intent", req.Intent), zap.Stringer("action", req.Action.Kind))

	if len(req.Candidates) == 0 {
		return res, fmt.Errorf("%s: no candidate locators given", req.Intent)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.opts.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(e.opts.PollInterval), 1)
	for {
		if err := limiter.Wait(runCtx); err != nil {
			// The limiter refuses a wait that would overrun the deadline; the
			// budget is still spent in full before giving up.
			<-runCtx.Done()
			break
		}
		res.Attempts++

		if sig, ok := e.CheckBlocked(runCtx, page); ok {
			res.Status = StatusBlocked
			res.Signature = sig
			res.Elapsed = time.Since(start)
			log.Error("Destination rejected the automated browser.", zap.String("signature", sig))
			return res, &ActionError{Result: res, Err: ErrBlocked}
		}

		for i, c := range req.Candidates {
			el, ok := e.resolve(runCtx, page, c, log)
			if !ok {
				continue
			}
			res.Locator = c
			res.Index = i
			return e.perform(ctx, page, req.Action, el, res, start, log)
		}

		if runCtx.Err() != nil {
			break
		}
	}

	res.Elapsed = time.Since(start)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	res.Status = StatusNotFound
	log.Warn("No candidate resolved.",
		zap.Strings("candidates", locator.Strings(req.Candidates)),
		zap.Int("attempts", res.Attempts),
		zap.Duration("timeout", timeout))
	return res, &ActionError{Result: res, Err: ErrNotFound}
}

// CheckBlocked matches the page text against the rejection signatures and
// returns the first pattern that matched.
func (e *Executor) CheckBlocked(ctx context.Context, page Page) (string, bool) {
	if len(e.signatures) == 0 {
		return "", false
	}
	text, err := page.Text(ctx)
	if err != nil {
		e.logger.Debug("Could not read page text for block detection.", zap.Error(err))
		return "", false
	}
	for _, re := range e.signatures {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}

// resolve queries one candidate under its own short budget and accepts it
// only when exactly one match is visible, enabled and inside the vertical bound.
func (e *Executor) resolve(ctx context.Context, page Page, c locator.Candidate, log *zap.Logger) (Element, bool) {
	qctx, cancel := context.WithTimeout(ctx, e.opts.CandidateTimeout)
	defer cancel()

	els, err := page.Query(qctx, c)
	if err != nil {
		log.Debug("Candidate query failed.", zap.Stringer("locator", c), zap.Error(err))
		return Element{}, false
	}

	var hits []Element
	for _, el := range els {
		if !el.Visible || !el.Enabled {
			continue
		}
		if c.MinY > 0 && el.Rect.Y <= c.MinY {
			continue
		}
		hits = append(hits, el)
	}

	switch len(hits) {
	case 1:
		return hits[0], true
	case 0:
		return Element{}, false
	default:
		log.Debug("Candidate is ambiguous, skipping.", zap.Stringer("locator", c), zap.Int("matches", len(hits)))
		return Element{}, false
	}
}

func (e *Executor) perform(ctx context.Context, page Page, action Action, el Element, res Result, start time.Time, log *zap.Logger) (Result, error) {
	budget := e.opts.ActionTimeout
	if action.Kind == ActionFill && e.opts.TypeDelay > 0 {
		budget += time.Duration(len([]rune(action.Text))) * e.opts.TypeDelay
	}
	actCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	log = log.With(zap.Stringer("locator", res.Locator), zap.Int("index", res.Index))

	var err error
	switch action.Kind {
	case ActionClick:
		err = e.click(actCtx, page, el, log)
		if err == nil {
			if sig, ok := e.CheckBlocked(actCtx, page); ok {
				res.Status = StatusBlocked
				res.Signature = sig
				res.Elapsed = time.Since(start)
				log.Error("Destination rejected the automated browser after click.", zap.String("signature", sig))
				return res, &ActionError{Result: res, Err: ErrBlocked}
			}
		}
	case ActionFill:
		err = e.fill(actCtx, page, el, action.Text)
	case ActionReadValue:
		res.Value, err = page.Value(actCtx, el)
	case ActionCopyToClipboard:
		if err = page.ClearClipboard(actCtx); err != nil {
			err = fmt.Errorf("clear clipboard: %w", err)
			break
		}
		if err = e.click(actCtx, page, el, log); err == nil {
			res.Value, err = page.ReadClipboard(actCtx)
		}
	default:
		err = fmt.Errorf("unsupported action %v", action.Kind)
	}

	res.Elapsed = time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Status = StatusFailed
		log.Warn("Resolved element but the action failed.", zap.Error(err))
		return res, &ActionError{Result: res, Err: err}
	}

	res.Status = StatusSuccess
	log.Info("Action succeeded.", zap.Int("attempts", res.Attempts), zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// click walks the fallback ladder: native, forced, script.
func (e *Executor) click(ctx context.Context, page Page, el Element, log *zap.Logger) error {
	var errs error
	for _, mode := range []ClickMode{ClickNative, ClickForced, ClickScript} {
		err := page.Click(ctx, el, mode)
		if err == nil {
			if mode != ClickNative {
				log.Info("Click landed through fallback.", zap.Stringer("mode", mode))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrClickIntercepted) {
			log.Debug("Click intercepted, escalating.", zap.Stringer("mode", mode))
		} else {
			log.Debug("Click failed, escalating.", zap.Stringer("mode", mode), zap.Error(err))
		}
		errs = multierr.Append(errs, fmt.Errorf("%s click: %w", mode, err))
	}
	return errs
}

func (e *Executor) fill(ctx context.Context, page Page, el Element, text string) error {
	if err := page.Clear(ctx, el); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if text == "" {
		return nil
	}
	if e.opts.TypeDelay <= 0 {
		return page.Type(ctx, el, text)
	}
	for i, r := range []rune(text) {
		if i > 0 {
			if err := sleep(ctx, e.opts.TypeDelay); err != nil {
				return err
			}
		}
		if err := page.Type(ctx, el, string(r)); err != nil {
			return fmt.Errorf("type: %w", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
