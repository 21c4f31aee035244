// File: internal/config/convert.go
package config

import (
	"github.com/xkilldash9x/linkrunner/internal/artifacts"
	"github.com/xkilldash9x/linkrunner/internal/browser"
	"github.com/xkilldash9x/linkrunner/internal/executor"
)

// ExecutorOptions maps the executor section onto executor.Options. An empty
// signature list falls back to the built-in rejection texts.
func (c *Config) ExecutorOptions() executor.Options {
	sigs := c.Executor.BlockSignatures
	if len(sigs) == 0 {
		sigs = executor.DefaultBlockSignatures
	}
	return executor.Options{
		Timeout:          c.Executor.Timeout,
		CandidateTimeout: c.Executor.CandidateTimeout,
		PollInterval:     c.Executor.PollInterval,
		ActionTimeout:    c.Executor.ActionTimeout,
		TypeDelay:        c.Executor.TypeDelay,
		BlockSignatures:  sigs,
	}
}

// BrowserOptions maps the browser section onto browser.Options. headless
// overrides the configured mode.
func (c *Config) BrowserOptions(headless bool) browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = headless
	opts.ExecPath = c.Browser.ExecPath
	opts.Args = c.Browser.Args
	opts.RemoteURL = c.Browser.RemoteURL
	if c.Browser.ViewportWidth > 0 {
		opts.ViewportWidth = c.Browser.ViewportWidth
	}
	if c.Browser.ViewportHeight > 0 {
		opts.ViewportHeight = c.Browser.ViewportHeight
	}
	if c.Browser.NavigationTimeout > 0 {
		opts.NavigationTimeout = c.Browser.NavigationTimeout
	}
	return opts
}

// ArtifactOptions maps the artifacts section onto artifacts.Options.
func (c *Config) ArtifactOptions() artifacts.Options {
	return artifacts.Options{
		Dir:          c.Artifacts.Dir,
		Screenshots:  c.Artifacts.Screenshots,
		DOMSnapshots: c.Artifacts.DOMSnapshots,
	}
}
