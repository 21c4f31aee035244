// internal/executor/result.go
package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// ActionKind enumerates the interactions the executor can perform.
type ActionKind int

const (
	ActionClick ActionKind = iota
	ActionFill
	ActionReadValue
	ActionCopyToClipboard
)

func (k ActionKind) String() string {
	switch k {
	case ActionClick:
		return "click"
	case ActionFill:
		return "fill"
	case ActionReadValue:
		return "read_value"
	case ActionCopyToClipboard:
		return "copy_to_clipboard"
	}
	return "unknown"
}

// Action is an interaction plus its argument.
type Action struct {
	Kind ActionKind
	Text string
}

// Click presses the resolved element, walking the click fallback ladder.
func Click() Action { return Action{Kind: ActionClick} }

// Fill clears the resolved form control and types text into it.
func Fill(text string) Action { return Action{Kind: ActionFill, Text: text} }

// ReadValue returns a form control's value, or the element's trimmed text.
func ReadValue() Action { return Action{Kind: ActionReadValue} }

// CopyToClipboard clicks a copy affordance and returns what it wrote to the
// clipboard.
func CopyToClipboard() Action { return Action{Kind: ActionCopyToClipboard} }

// Request describes one logical UI action.
type Request struct {
	// Intent is a human readable label, used in logs and errors.
	Intent     string
	Candidates []locator.Candidate
	Action     Action
	// Timeout is the overall budget; zero uses the executor default.
	Timeout time.Duration
}

// Status is the outcome tag of a Result.
type Status int

const (
	StatusNotFound Status = iota
	StatusSuccess
	StatusBlocked
	// StatusFailed means a candidate resolved but the interaction itself failed at the driver.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusBlocked:
		return "blocked"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result reports how a Request ended.
type Result struct {
	Status Status
	Intent string
	// Locator and Index identify the candidate that resolved (Index is -1 when none did).
	Locator locator.Candidate
	Index   int
	// Value holds the text produced by ReadValue and CopyToClipboard.
	Value string
	// Signature is the rejection pattern that matched when Status is StatusBlocked.
	Signature string
	Attempts  int
	Elapsed   time.Duration
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

var (
	// ErrNotFound means no candidate resolved within the overall timeout.
	ErrNotFound = errors.New("no candidate locator resolved")
	// ErrBlocked means the page shows a known automation-rejection message. Retrying will not help.
	ErrBlocked = errors.New("automation rejected by destination page")
	// ErrTimeout means an awaited page transition never completed.
	ErrTimeout = errors.New("timed out waiting for page transition")
)

// ActionError carries the Result of a request that did not succeed.
type ActionError struct {
	Result Result
	Err    error
}

func (e *ActionError) Error() string {
	switch e.Result.Status {
	case StatusBlocked:
		return fmt.Sprintf("%s: %v (matched %q)", e.Result.Intent, e.Err, e.Result.Signature)
	case StatusNotFound:
		return fmt.Sprintf("%s: %v after %d attempts in %s", e.Result.Intent, e.Err, e.Result.Attempts, e.Result.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s via %s: %v", e.Result.Intent, e.Result.Locator, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
