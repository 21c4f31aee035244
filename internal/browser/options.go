// internal/browser/options.go
package browser

import (
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Options controls how the browser process is started.
type Options struct {
	Headless          bool
	ExecPath          string
	Args              []string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// RemoteURL attaches to an already running browser's DevTools endpoint
	// instead of starting one. Launch flags do not apply to it.
	RemoteURL string
}

// DefaultOptions returns a headless 1366x900 window with a 60s navigation budget.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		ViewportWidth:     1366,
		ViewportHeight:    900,
		NavigationTimeout: 60 * time.Second,
	}
}

// launchFlags returns the Chrome command line flags for opts, keyed without
// the leading dashes. Kept separate from the chromedp options so it can be
// inspected in tests.
func launchFlags(opts Options) map[string]any {
	flags := map[string]any{
		"no-first-run":                  true,
		"no-default-browser-check":      true,
		"disable-background-networking": true,
		"disable-popup-blocking":        true,
		"disable-dev-shm-usage":         true,
		"headless":                      opts.Headless,
	}
	if opts.Headless {
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	}
	for _, arg := range opts.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		// key=value arguments keep their value; bare ones are boolean switches.
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
		} else {
			flags[arg] = true
		}
	}
	return flags
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	var out []chromedp.ExecAllocatorOption
	for name, value := range launchFlags(opts) {
		out = append(out, chromedp.Flag(name, value))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
	}
	return out
}
