// internal/pipeline/auth.go
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/session"
)

type loginStatus int

const (
	loginUnknown loginStatus = iota
	loggedIn
	loggedOut
)

func (s loginStatus) String() string {
	switch s {
	case loggedIn:
		return "logged_in"
	case loggedOut:
		return "logged_out"
	}
	return "unknown"
}

// Authenticate reuses the persisted session when it still lands on a
// logged-in page, and otherwise falls back to a manual login in a visible
// browser. Non-interactive runs fail with ErrLoginRequired instead.
func Authenticate(ctx context.Context, rc *RunContext) error {
	headless := rc.Config.Browser.Headless

	st, err := rc.Sessions.Load()
	switch {
	case err == nil:
		if st.Expired(rc.now()) {
			rc.Logger.Warn("Persisted session cookies have expired; trying them anyway.",
				zap.Time("saved_at", st.SavedAt))
		}
		if err := rc.launch(ctx, headless, st); err != nil {
			return err
		}
		ok, err := checkLoggedIn(ctx, rc)
		if err != nil {
			return err
		}
		if ok {
			rc.Logger.Info("Reusing persisted session.", zap.String("path", rc.Sessions.Path()))
			return nil
		}
		rc.Logger.Warn("Persisted session is no longer logged in.", zap.String("path", rc.Sessions.Path()))
	case errors.Is(err, session.ErrNoSession):
		rc.Logger.Info("No persisted session found.", zap.String("path", rc.Sessions.Path()))
	default:
		rc.Logger.Warn("Ignoring unreadable session file.", zap.Error(err))
	}

	if !rc.Interactive {
		return fmt.Errorf("%w: no valid session at %s; run `linkrunner login` first", ErrLoginRequired, rc.Sessions.Path())
	}
	return ManualLogin(ctx, rc)
}

// ManualLogin opens a visible browser on the agent app, waits for the
// operator to sign in, persists the resulting state and, for headless runs,
// relaunches headless with it.
func ManualLogin(ctx context.Context, rc *RunContext) error {
	if err := rc.launch(ctx, false, nil); err != nil {
		return err
	}
	if err := rc.navigate(ctx, rc.Config.Targets.AgentURL); err != nil {
		return fmt.Errorf("failed to open the agent app: %w", err)
	}

	timeout := rc.Config.Session.ManualLoginTimeout
	if rc.Prompter != nil {
		msg := fmt.Sprintf("Sign in to %s in the browser window. Waiting up to %s.", rc.Config.Targets.AgentURL, timeout)
		if err := rc.Prompter.Prompt(ctx, msg); err != nil {
			return fmt.Errorf("failed to prompt for login: %w", err)
		}
	}

	var blockedErr error
	err := rc.Executor.Poll(ctx, "manual login", timeout, rc.Config.Session.ManualLoginPoll, func(ctx context.Context) (bool, error) {
		status, err := loginState(ctx, rc)
		if errors.Is(err, executor.ErrBlocked) {
			blockedErr = err
			return true, nil
		}
		return status == loggedIn, err
	})
	if blockedErr != nil {
		return blockedErr
	}
	if err != nil {
		return fmt.Errorf("manual login did not complete: %w", err)
	}
	rc.Logger.Info("Manual login detected.")

	st, err := rc.browser.StorageState(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture session state: %w", err)
	}
	if rc.Sessions.Exists() {
		rc.Logger.Info("Replacing persisted session.", zap.String("path", rc.Sessions.Path()))
	}
	if err := rc.Sessions.Save(st); err != nil {
		return err
	}

	if !rc.Config.Browser.Headless {
		return nil
	}
	if err := rc.launch(ctx, true, st); err != nil {
		return err
	}
	ok, err := checkLoggedIn(ctx, rc)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: the saved session did not carry over to the headless browser", ErrLoginRequired)
	}
	return nil
}

// checkLoggedIn loads the agent app and waits for a login verdict.
func checkLoggedIn(ctx context.Context, rc *RunContext) (bool, error) {
	if err := rc.navigate(ctx, rc.Config.Targets.AgentURL); err != nil {
		return false, err
	}

	status := loginUnknown
	var stateErr error
	err := rc.Executor.WaitUntil(ctx, "login verdict", rc.Config.Waits.Medium, func(ctx context.Context) (bool, error) {
		s, err := loginState(ctx, rc)
		if errors.Is(err, executor.ErrBlocked) {
			stateErr = err
			return true, nil
		}
		status = s
		return s != loginUnknown, err
	})
	if stateErr != nil {
		return false, stateErr
	}
	if err != nil && !errors.Is(err, executor.ErrTimeout) {
		return false, err
	}
	url, _ := rc.currentURL(ctx)
	rc.Logger.Debug("Login check finished.", zap.Stringer("status", status), zap.String("url", url))
	return status == loggedIn, nil
}

// loginState classifies the current page. A logged-out URL wins over a
// logged-in one; without either, the login.marker locators decide.
func loginState(ctx context.Context, rc *RunContext) (loginStatus, error) {
	p, err := rc.page()
	if err != nil {
		return loginUnknown, err
	}
	if sig, blocked := rc.Executor.CheckBlocked(ctx, p); blocked {
		return loginUnknown, &executor.ActionError{
			Result: executor.Result{Status: executor.StatusBlocked, Intent: "login check", Index: -1, Signature: sig},
			Err:    executor.ErrBlocked,
		}
	}
	url, err := p.URL(ctx)
	if err != nil {
		return loginUnknown, err
	}
	switch {
	case urlMatches(url, rc.Config.Session.LoggedOutMarkers):
		return loggedOut, nil
	case urlMatches(url, rc.Config.Session.LoggedInMarkers):
		return loggedIn, nil
	}
	ok, err := rc.present(ctx, KeyLoginMarker, rc.Executor.Options().CandidateTimeout)
	if err != nil {
		return loginUnknown, err
	}
	if ok {
		return loggedIn, nil
	}
	return loginUnknown, nil
}

// Login runs only the manual login path, leaving a persisted session for
// later runs, and closes the browser afterwards.
func Login(ctx context.Context, rc *RunContext) (err error) {
	if err := rc.validate(); err != nil {
		return err
	}
	defer func() {
		if cerr := rc.closeBrowser(context.WithoutCancel(ctx)); cerr != nil {
			rc.Logger.Warn("Browser did not close cleanly.", zap.Error(cerr))
		}
	}()
	return ManualLogin(ctx, rc)
}
