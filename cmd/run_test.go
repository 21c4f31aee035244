// File: cmd/run_test.go
package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/linkrunner/internal/mocks"
	"github.com/xkilldash9x/linkrunner/internal/pipeline"
	"github.com/xkilldash9x/linkrunner/internal/session"
)

func TestRunCmd_NoSessionNonInteractive(t *testing.T) {
	l := resetForTest(t)
	env := writeConfig(t, "")

	out, _, err := executeCommand(t, "run", "--config", env.config, "--interactive=false")
	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.StageAuthenticate, se.Stage)
	assert.ErrorIs(t, err, pipeline.ErrLoginRequired)
	assert.Empty(t, l.launches(), "no browser without a session")

	assert.Contains(t, out, "failed")
	assert.Contains(t, out, pipeline.StageAuthenticate)
	assert.Contains(t, out, "skipped")

	reports, err := filepath.Glob(filepath.Join(env.artifacts, "*", "report.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRunCmd_HeadlessFlagOverridesConfig(t *testing.T) {
	resetForTest(t)
	l := &mocks.MockLauncher{}
	l.On("Launch", mock.Anything, false, mock.MatchedBy(func(st *session.State) bool {
		return st != nil && len(st.Cookies) == 1 && st.Cookies[0].Name == "sid"
	})).Return(nil, errors.New("no browser in tests")).Once()
	useLauncher(l)
	env := writeConfig(t, "browser:\n  headless: true\n")

	store, err := session.NewStore(zaptest.NewLogger(t), env.sessionPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(&session.State{Cookies: []session.Cookie{{Name: "sid", Value: "1"}}}))

	_, _, err = executeCommand(t, "run", "--config", env.config, "--headless=false", "--interactive=false")
	assert.ErrorContains(t, err, "no browser in tests")
	l.AssertExpectations(t)
}

func TestRunCmd_RejectsArgs(t *testing.T) {
	resetForTest(t)
	_, _, err := executeCommand(t, "run", "extra")
	assert.Error(t, err)
}
