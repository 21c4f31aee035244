// File: cmd/root_test.go
package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	out, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)
	out, _, err := executeCommand(t, "version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "version never loads configuration")
	assert.Equal(t, "linkrunner "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	resetForTest(t)
	out, _, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Linkrunner provisions an agent")
	for _, sub := range []string{"run", "login", "probe", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_ConfigErrors(t *testing.T) {
	t.Run("missing explicit config file", func(t *testing.T) {
		resetForTest(t)
		_, _, err := executeCommand(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "failed to initialize configuration")
	})

	t.Run("invalid values", func(t *testing.T) {
		resetForTest(t)
		env := writeConfig(t, "browser:\n  navigation_timeout: 0s\n")
		_, _, err := executeCommand(t, "run", "--config", env.config)
		assert.ErrorContains(t, err, "failed to load or validate config")
		assert.ErrorContains(t, err, "navigation_timeout")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		resetForTest(t)
		env := writeConfig(t, "")
		t.Setenv("LINKRUNNER_TARGETS_WORKFLOW_URL", "ftp://tool.test/")
		_, _, err := executeCommand(t, "run", "--config", env.config)
		assert.ErrorContains(t, err, "targets.workflow_url")
	})
}
