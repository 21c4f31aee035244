// internal/pipeline/helpers_test.go
package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/linkrunner/internal/config"
	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/locator"
	"github.com/xkilldash9x/linkrunner/internal/session"
	"github.com/xkilldash9x/linkrunner/internal/snapshot"
)

const (
	agentURL    = "https://app.test/"
	homeURL     = "https://app.test/home"
	loginURL    = "https://app.test/login"
	templateURL = "https://app.test/templates/t1"
	tasksURL    = "https://app.test/agents/a1/tasks"
	editorPage  = "https://app.test/agents/a1/editor"
	workflowURL = "https://tool.test/"

	createdHookURL = "https://hooks.app.test/w/created"
	secretToken    = "whk_secret_0123456789"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Targets = config.TargetsConfig{AgentURL: agentURL, TemplateURL: templateURL, WorkflowURL: workflowURL}
	cfg.Waits = config.WaitsConfig{
		Short:  60 * time.Millisecond,
		Medium: 120 * time.Millisecond,
		Long:   250 * time.Millisecond,
		Total:  30 * time.Millisecond,
	}
	cfg.Session.ManualLoginTimeout = 2 * time.Second
	cfg.Session.ManualLoginPoll = 20 * time.Millisecond
	cfg.Account = config.AccountConfig{Email: "ops@example.test", FullName: "Ops Bot"}
	cfg.Integration = config.IntegrationConfig{WebhookName: "Lead Webhook"}
	return cfg
}

func testExecutor(t *testing.T, logger *zap.Logger) *executor.Executor {
	t.Helper()
	exec, err := executor.New(logger, executor.Options{
		Timeout:          300 * time.Millisecond,
		CandidateTimeout: 50 * time.Millisecond,
		PollInterval:     10 * time.Millisecond,
		ActionTimeout:    time.Second,
		BlockSignatures:  executor.DefaultBlockSignatures,
	})
	require.NoError(t, err)
	return exec
}

// -- Fake browser --

type fakeBrowser struct {
	page     *snapshot.Page
	headless bool
	state    *session.State

	mu     sync.Mutex
	closes int
	err    error
}

func (b *fakeBrowser) Page() Page { return b.page }

func (b *fakeBrowser) StorageState(ctx context.Context) (*session.State, error) {
	return b.state, nil
}

func (b *fakeBrowser) Headless() bool { return b.headless }

func (b *fakeBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return b.err
}

func (b *fakeBrowser) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

type launchCall struct {
	headless bool
	state    *session.State
}

type fakeLauncher struct {
	build    func(headless bool, st *session.State) *snapshot.Page
	calls    []launchCall
	browsers []*fakeBrowser
	err      error
}

func (l *fakeLauncher) Launch(ctx context.Context, headless bool, st *session.State) (Browser, error) {
	l.calls = append(l.calls, launchCall{headless: headless, state: st})
	if l.err != nil {
		return nil, l.err
	}
	b := &fakeBrowser{page: l.build(headless, st), headless: headless, state: loggedInState()}
	l.browsers = append(l.browsers, b)
	return b, nil
}

func (l *fakeLauncher) last() *fakeBrowser {
	if len(l.browsers) == 0 {
		return nil
	}
	return l.browsers[len(l.browsers)-1]
}

type promptFunc func(ctx context.Context, msg string) error

func (f promptFunc) Prompt(ctx context.Context, msg string) error { return f(ctx, msg) }

func loggedInState() *session.State {
	return &session.State{Cookies: []session.Cookie{{Name: "sid", Value: "s3cret", Domain: "app.test", Path: "/", Expires: -1}}}
}

func hasSession(st *session.State) bool {
	if st == nil {
		return false
	}
	for _, c := range st.Cookies {
		if c.Name == "sid" {
			return true
		}
	}
	return false
}

// -- Fake agent app and external tool --

const (
	homeMarkup = `<html><body>
<nav><button style="top:10px">New Agent</button><button aria-label="Open menu" style="top:10px">=</button></nav>
<main><h1>Workspace</h1></main></body></html>`

	menuMarkup = `<html><body>
<nav><button aria-label="Open menu" style="top:10px">=</button></nav>
<div role="menu"><div role="menuitem">Settings</div><div role="menuitem">Log out</div></div></body></html>`

	settingsMarkup = `<html><body><h1>Account</h1><button style="top:400px">Delete Account</button></body></html>`

	confirmMarkup = `<html><body><div role="dialog"><p>This cannot be undone.</p><button>Delete</button><button>Cancel</button></div></body></html>`

	loginMarkup = `<html><body><button>Continue with Google</button></body></html>`

	templateMarkup = `<html><body>
<nav><button style="top:20px">Add</button></nav>
<main><h1>Lead processor</h1><a href="` + tasksURL + `"><button style="top:300px">Add</button></a></main></body></html>`

	tasksMarkup = `<html><body><h1>Tasks</h1></body></html>`

	editorMarkup = `<html><body><main><div class="step" style="top:200px">Webhook Received</div></main></body></html>`

	panelMarkup = `<html><body><main><div class="step" style="top:200px">Webhook Received</div>
<div class="panel"><button id="select">Select an option</button></div></main></body></html>`

	optionsMarkup = `<html><body><main><div class="step" style="top:200px">Webhook Received</div>
<div role="listbox"><div role="option" id="create">Create Webhook</div></div></main></body></html>`

	nameMarkup = `<html><body><main><div class="step" style="top:200px">Webhook Received</div>
<input id="hook-name" type="text" placeholder="Webhook name"></main></body></html>`

	createdMarkup = `<html><body><main><div class="step" style="top:200px">Webhook Received</div>
<input id="hook-url" readonly value="` + createdHookURL + `">
<button id="secret">Create secret key</button>
<button id="deploy" style="top:20px">Deploy</button></main></body></html>`

	secretMarkup = `<html><body><main>
<input id="hook-url" readonly value="` + createdHookURL + `">
<div role="dialog"><input readonly value="` + secretToken + `"><button aria-label="Copy secret">c</button></div></main></body></html>`

	deployedMarkup = `<html><body><main><p>Deployed</p></main></body></html>`

	workflowMarkup = `<html><body>
<input id="lindy-url" placeholder="Lindy URL">
<input id="auth" placeholder="Authorization token">
<input id="gh" placeholder="GitHub token">
<button id="save">Save Configuration</button>
<button id="start">Start Processing</button></body></html>`
)

// fakeApp records what the pipeline did to the fake sites.
type fakeApp struct {
	t *testing.T

	mu         sync.Mutex
	hookName   string
	savedURL   string
	savedToken string
	savedAPI   string
	started    bool
	deleted    bool
}

func newFakeApp(t *testing.T) *fakeApp { return &fakeApp{t: t} }

func (a *fakeApp) value(p *snapshot.Page, css string) string {
	ctx := context.Background()
	els, err := p.Query(ctx, locator.CSS(css))
	require.NoError(a.t, err)
	require.Len(a.t, els, 1, css)
	v, err := p.Value(ctx, els[0])
	require.NoError(a.t, err)
	return v
}

func swap(markup string) snapshot.ClickHandler {
	return func(p *snapshot.Page, _ executor.Element) error { return p.SetHTML(markup) }
}

// page builds a browser tab for the fake sites. loggedIn decides where the
// agent app and the template page redirect.
func (a *fakeApp) page(loggedIn bool) *snapshot.Page {
	p := snapshot.New(zaptest.NewLogger(a.t))
	p.AddRoute(homeURL, homeMarkup)
	p.AddRoute(loginURL, loginMarkup)
	p.AddRoute(templateURL, templateMarkup)
	p.AddRoute(tasksURL, tasksMarkup)
	p.AddRoute(editorPage, editorMarkup)
	p.AddRoute(workflowURL, workflowMarkup)
	if loggedIn {
		p.AddRedirect(agentURL, homeURL)
	} else {
		p.AddRedirect(agentURL, loginURL)
		p.AddRedirect(templateURL, loginURL)
	}

	p.OnClick("div.step", swap(panelMarkup))
	p.OnClick("#select", swap(optionsMarkup))
	p.OnClick("#create", swap(nameMarkup))
	p.OnKey("Enter", func(p *snapshot.Page) error {
		a.mu.Lock()
		a.hookName = a.value(p, "#hook-name")
		a.mu.Unlock()
		return p.SetHTML(createdMarkup)
	})
	p.OnClick("#secret", swap(secretMarkup))
	p.OnKey("Escape", func(p *snapshot.Page) error { return p.SetHTML(createdMarkup) })
	p.OnClick("#deploy", swap(deployedMarkup))

	p.OnClick("#save", func(p *snapshot.Page, _ executor.Element) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.savedURL = a.value(p, "#lindy-url")
		a.savedToken = a.value(p, "#auth")
		a.savedAPI = a.value(p, "#gh")
		return nil
	})
	p.OnClick("#start", func(*snapshot.Page, executor.Element) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.started = true
		return nil
	})

	p.OnClick("button[aria-label='Open menu']", swap(menuMarkup))
	p.OnClick("div[role='menuitem']", swap(settingsMarkup))
	p.OnClick("button", func(p *snapshot.Page, el executor.Element) error {
		switch el.Text {
		case "Delete Account":
			return p.SetHTML(confirmMarkup)
		case "Delete":
			a.mu.Lock()
			a.deleted = true
			a.mu.Unlock()
		}
		return nil
	})
	return p
}

// launcher launches tabs that are logged in whenever a session is replayed.
func (a *fakeApp) launcher() *fakeLauncher {
	return &fakeLauncher{build: func(headless bool, st *session.State) *snapshot.Page {
		return a.page(hasSession(st))
	}}
}

type fixture struct {
	rc       *RunContext
	app      *fakeApp
	launcher *fakeLauncher
	store    *session.Store
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	store, err := session.NewStore(logger, filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	app := newFakeApp(t)
	l := app.launcher()
	rc := &RunContext{
		Config:   testConfig(),
		Logger:   logger,
		Executor: testExecutor(t, logger),
		Sessions: store,
		Launcher: l,
	}
	require.NoError(t, rc.validate())
	rc.progressEvery = 10 * time.Millisecond
	return &fixture{rc: rc, app: app, launcher: l, store: store}
}

// open launches a browser directly, bypassing Authenticate.
func (f *fixture) open(t *testing.T, loggedIn bool, url string) *snapshot.Page {
	t.Helper()
	var st *session.State
	if loggedIn {
		st = loggedInState()
	}
	require.NoError(t, f.rc.launch(context.Background(), true, st))
	if url != "" {
		require.NoError(t, f.rc.navigate(context.Background(), url))
	}
	return f.launcher.last().page
}
