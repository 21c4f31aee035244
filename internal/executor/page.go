// internal/executor/page.go
package executor

import (
	"context"
	"errors"

	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// ErrClickIntercepted is returned by a native click when another element
// (typically an overlay) sits on top of the target's centre point.
var ErrClickIntercepted = errors.New("click intercepted by another element")

// Rect is an element's bounding box in CSS pixels, relative to the document.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is a driver-neutral description of a matched node.
type Element struct {
	// Ref is an opaque driver handle that identifies the node for follow-up calls.
	Ref     string `json:"ref"`
	Tag     string `json:"tag"`
	Text    string `json:"text"`
	Rect    Rect   `json:"rect"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
}

// ClickMode selects a rung of the click fallback ladder.
type ClickMode int

const (
	// ClickNative performs a trusted pointer click after hit-testing the element centre.
	ClickNative ClickMode = iota
	// ClickForced dispatches the pointer click at the element centre without hit-testing.
	ClickForced
	// ClickScript calls element.click() in the page.
	ClickScript
)

func (m ClickMode) String() string {
	switch m {
	case ClickNative:
		return "native"
	case ClickForced:
		return "forced"
	case ClickScript:
		return "script"
	}
	return "unknown"
}

// Page is the minimal driver surface the executor needs. Implementations
// exist for a live chromedp tab and for an offline DOM snapshot.
type Page interface {
	// Query returns every element matching c, unfiltered. Visibility,
	// enablement and the candidate's vertical bound are applied by the executor.
	Query(ctx context.Context, c locator.Candidate) ([]Element, error)
	Click(ctx context.Context, el Element, mode ClickMode) error
	// Clear empties a form control.
	Clear(ctx context.Context, el Element) error
	// Type sends text to a form control as key input.
	Type(ctx context.Context, el Element, text string) error
	// Value returns a form control's value, or the element's trimmed text.
	Value(ctx context.Context, el Element) (string, error)
	// ClearClipboard forgets earlier clipboard writes, so a copy that never
	// lands reads back empty instead of stale.
	ClearClipboard(ctx context.Context) error
	// ReadClipboard returns the most recent clipboard write observed by the page.
	ReadClipboard(ctx context.Context) (string, error)
	// Text returns the visible text of the current document.
	Text(ctx context.Context) (string, error)
}
