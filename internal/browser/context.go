// internal/browser/context.go
package browser

import "context"

// combineContext derives from master, which carries the chromedp target, and
// is additionally cancelled when op is done. Values always come from master.
func combineContext(master, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(master)
	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
