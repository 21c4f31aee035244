// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/linkrunner/internal/config"
	"github.com/xkilldash9x/linkrunner/internal/observability"
	"github.com/xkilldash9x/linkrunner/internal/pipeline"
	"github.com/xkilldash9x/linkrunner/internal/session"
	"github.com/xkilldash9x/linkrunner/internal/snapshot"
)

const testAgentURL = "https://app.test/home"

// resetForTest restores package state and installs a launcher that never
// starts a real browser.
func resetForTest(t *testing.T) *fakeLauncher {
	t.Helper()
	observability.ResetForTest()
	l := &fakeLauncher{t: t}
	orig := newLauncher
	newLauncher = func(*zap.Logger, *config.Config) pipeline.Launcher { return l }
	t.Cleanup(func() {
		newLauncher = orig
		observability.ResetForTest()
	})
	return l
}

// useLauncher replaces the launcher installed by resetForTest.
func useLauncher(l pipeline.Launcher) {
	newLauncher = func(*zap.Logger, *config.Config) pipeline.Launcher { return l }
}

// executeCommand runs a fresh command tree and captures its output streams.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

type testEnv struct {
	dir         string
	config      string
	sessionPath string
	artifacts   string
}

// writeConfig writes a config with fast timings and every path inside a temp
// directory. extra is appended verbatim.
func writeConfig(t *testing.T, extra string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:         dir,
		config:      filepath.Join(dir, "linkrunner.yaml"),
		sessionPath: filepath.Join(dir, "session.json"),
		artifacts:   filepath.Join(dir, "artifacts"),
	}
	content := `
logger:
  level: error
  log_file: ""
targets:
  agent_url: ` + testAgentURL + `
  template_url: https://app.test/templates/t1
  workflow_url: https://tool.test/
waits:
  short: 30ms
  medium: 30ms
  long: 30ms
  total: 10ms
session:
  path: ` + env.sessionPath + `
  manual_login_timeout: 2s
  manual_login_poll: 20ms
executor:
  timeout: 200ms
  candidate_timeout: 50ms
  poll_interval: 10ms
artifacts:
  dir: ` + env.artifacts + `
  screenshots: false
` + extra
	require.NoError(t, os.WriteFile(env.config, []byte(strings.TrimLeft(content, "\n")), 0o600))
	return env
}

// -- Fake browser --

type launchCall struct {
	headless bool
	state    *session.State
}

type fakeLauncher struct {
	t *testing.T

	mu    sync.Mutex
	calls []launchCall
}

func (l *fakeLauncher) Launch(ctx context.Context, headless bool, st *session.State) (pipeline.Browser, error) {
	l.mu.Lock()
	l.calls = append(l.calls, launchCall{headless: headless, state: st})
	l.mu.Unlock()
	p := snapshot.New(zaptest.NewLogger(l.t))
	p.AddRoute(testAgentURL, `<html><body><button>New Agent</button><h1>Workspace</h1></body></html>`)
	return &fakeBrowser{page: p, headless: headless}, nil
}

func (l *fakeLauncher) launches() []launchCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]launchCall(nil), l.calls...)
}

type fakeBrowser struct {
	page     *snapshot.Page
	headless bool
}

func (b *fakeBrowser) Page() pipeline.Page { return b.page }

func (b *fakeBrowser) StorageState(context.Context) (*session.State, error) {
	return &session.State{Cookies: []session.Cookie{{Name: "sid", Value: "1", Domain: "app.test", Path: "/", Expires: -1}}}, nil
}

func (b *fakeBrowser) Headless() bool { return b.headless }

func (b *fakeBrowser) Close(context.Context) error { return nil }
