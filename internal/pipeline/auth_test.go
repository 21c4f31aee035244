// internal/pipeline/auth_test.go
package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/session"
	"github.com/xkilldash9x/linkrunner/internal/snapshot"
)

func TestAuthenticate_ReusesPersistedSession(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Save(loggedInState()))
	prompted := false
	f.rc.Prompter = promptFunc(func(context.Context, string) error {
		prompted = true
		return nil
	})
	f.rc.Interactive = true

	require.NoError(t, Authenticate(context.Background(), f.rc))

	assert.False(t, prompted, "manual login must not run")
	require.Len(t, f.launcher.calls, 1)
	assert.True(t, f.launcher.calls[0].headless)
	assert.True(t, hasSession(f.launcher.calls[0].state))
	url, _ := f.rc.Page().URL(context.Background())
	assert.Equal(t, homeURL, url)
}

func TestAuthenticate_NonInteractiveWithoutSession(t *testing.T) {
	f := newFixture(t, nil)
	err := Authenticate(context.Background(), f.rc)
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.Empty(t, f.launcher.calls, "nothing to check without a session")
}

func TestAuthenticate_StaleSession(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Save(loggedInState()))
	f.launcher.build = func(bool, *session.State) *snapshot.Page { return f.app.page(false) }

	err := Authenticate(context.Background(), f.rc)
	assert.ErrorIs(t, err, ErrLoginRequired)
	require.Len(t, f.launcher.calls, 1)
}

func TestAuthenticate_ManualLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.rc.Interactive = true
	var messages []string
	f.rc.Prompter = promptFunc(func(ctx context.Context, msg string) error {
		messages = append(messages, msg)
		// The operator signs in: the visible tab lands on the workspace.
		return f.launcher.last().page.Navigate(ctx, homeURL)
	})

	require.NoError(t, Authenticate(context.Background(), f.rc))

	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], agentURL)

	require.Len(t, f.launcher.calls, 2)
	assert.False(t, f.launcher.calls[0].headless, "login happens in a visible browser")
	assert.True(t, f.launcher.calls[1].headless, "the run continues headless")
	assert.True(t, hasSession(f.launcher.calls[1].state))
	assert.Equal(t, 1, f.launcher.browsers[0].closeCount(), "the visible browser is closed before relaunch")

	st, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, hasSession(st))
}

func TestAuthenticate_ManualLoginTimesOut(t *testing.T) {
	f := newFixture(t, nil)
	f.rc.Interactive = true
	f.rc.Config.Session.ManualLoginTimeout = 80 * time.Millisecond

	err := Authenticate(context.Background(), f.rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrTimeout)
	assert.False(t, f.store.Exists(), "no session is written for a failed login")
}

func TestAuthenticate_HeadedRunKeepsLoginBrowser(t *testing.T) {
	f := newFixture(t, nil)
	f.rc.Interactive = true
	f.rc.Config.Browser.Headless = false
	f.rc.Prompter = promptFunc(func(ctx context.Context, _ string) error {
		return f.launcher.last().page.Navigate(ctx, homeURL)
	})

	require.NoError(t, Authenticate(context.Background(), f.rc))
	assert.Len(t, f.launcher.calls, 1)
	assert.Equal(t, 0, f.launcher.last().closeCount())
}

func TestAuthenticate_LaunchFailure(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Save(loggedInState()))
	f.launcher.err = errors.New("no chrome")
	err := Authenticate(context.Background(), f.rc)
	assert.ErrorContains(t, err, "no chrome")
}

func TestLoginState(t *testing.T) {
	ctx := context.Background()

	t.Run("logged-out URL wins", func(t *testing.T) {
		f := newFixture(t, nil)
		f.open(t, false, agentURL)
		s, err := loginState(ctx, f.rc)
		require.NoError(t, err)
		assert.Equal(t, loggedOut, s)
	})

	t.Run("DOM marker without URL marker", func(t *testing.T) {
		f := newFixture(t, nil)
		p := f.open(t, false, "")
		p.AddRoute("https://app.test/app", `<html><body><button>New Agent</button></body></html>`)
		require.NoError(t, p.Navigate(ctx, "https://app.test/app"))
		s, err := loginState(ctx, f.rc)
		require.NoError(t, err)
		assert.Equal(t, loggedIn, s)
	})

	t.Run("undecided", func(t *testing.T) {
		f := newFixture(t, nil)
		p := f.open(t, false, "")
		p.AddRoute("https://app.test/app", `<html><body><p>Loading</p></body></html>`)
		require.NoError(t, p.Navigate(ctx, "https://app.test/app"))
		s, err := loginState(ctx, f.rc)
		require.NoError(t, err)
		assert.Equal(t, loginUnknown, s)
	})

	t.Run("rejection page", func(t *testing.T) {
		f := newFixture(t, nil)
		p := f.open(t, false, "")
		p.AddRoute("https://accounts.test/", `<html><body><h1>Couldn't sign you in</h1><p>This browser or app may not be secure.</p></body></html>`)
		require.NoError(t, p.Navigate(ctx, "https://accounts.test/"))
		_, err := loginState(ctx, f.rc)
		assert.ErrorIs(t, err, executor.ErrBlocked)
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.rc.Prompter = promptFunc(func(ctx context.Context, _ string) error {
		return f.launcher.last().page.Navigate(ctx, homeURL)
	})

	require.NoError(t, Login(context.Background(), f.rc))
	assert.True(t, f.store.Exists())
	for i, b := range f.launcher.browsers {
		assert.Equal(t, 1, b.closeCount(), "browser %d closed", i)
	}
	assert.Nil(t, f.rc.Browser())
}
