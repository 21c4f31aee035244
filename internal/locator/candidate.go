// internal/locator/candidate.go
package locator

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy names how a Candidate pattern is interpreted by a page driver.
type Strategy string

const (
	StrategyCSS          Strategy = "css"
	StrategyXPath        Strategy = "xpath"
	StrategyExactText    Strategy = "exact-text"
	StrategyContainsText Strategy = "contains-text"
	StrategyPlaceholder  Strategy = "placeholder"
	StrategyRole         Strategy = "role"
)

// Candidate is one way of finding the element behind a logical UI action.
// Candidates are always handled as ordered lists: the first one that resolves wins.
type Candidate struct {
	Strategy Strategy `json:"strategy"`
	// Tag restricts text and placeholder strategies to an element name ("*" for any).
	Tag string `json:"tag,omitempty"`
	// Role is the ARIA role for StrategyRole.
	Role string `json:"role,omitempty"`
	// Pattern is the selector, expression, text or accessible name, depending on Strategy.
	Pattern string `json:"pattern"`
	// MinY, when positive, only admits elements whose top edge is strictly below it (CSS pixels).
	MinY float64 `json:"min_y,omitempty"`
}

// CSS builds a css candidate.
func CSS(selector string) Candidate {
	return Candidate{Strategy: StrategyCSS, Pattern: selector}
}

// XPath builds an xpath candidate.
func XPath(expr string) Candidate {
	return Candidate{Strategy: StrategyXPath, Pattern: expr}
}

// ExactText matches elements of tag whose normalized text equals text.
func ExactText(tag, text string) Candidate {
	return Candidate{Strategy: StrategyExactText, Tag: normalizeTag(tag), Pattern: text}
}

// ContainsText matches elements of tag whose text contains text, ignoring case.
func ContainsText(tag, text string) Candidate {
	return Candidate{Strategy: StrategyContainsText, Tag: normalizeTag(tag), Pattern: text}
}

// Placeholder matches form controls of tag whose placeholder contains text, ignoring case.
func Placeholder(tag, text string) Candidate {
	return Candidate{Strategy: StrategyPlaceholder, Tag: normalizeTag(tag), Pattern: text}
}

// Role matches elements with the given ARIA role whose accessible name contains name.
// An empty name matches any element with the role.
func Role(role, name string) Candidate {
	return Candidate{Strategy: StrategyRole, Role: strings.ToLower(role), Pattern: name}
}

// Below returns a copy of c restricted to elements whose top edge is below y.
func (c Candidate) Below(y float64) Candidate {
	c.MinY = y
	return c
}

// Validate reports whether the candidate is well formed.
func (c Candidate) Validate() error {
	switch c.Strategy {
	case StrategyCSS, StrategyXPath:
		if strings.TrimSpace(c.Pattern) == "" {
			return fmt.Errorf("%s candidate has an empty pattern", c.Strategy)
		}
	case StrategyExactText, StrategyContainsText, StrategyPlaceholder:
		if c.Tag == "" {
			return fmt.Errorf("%s candidate has no tag", c.Strategy)
		}
		if c.Pattern == "" {
			return fmt.Errorf("%s candidate has an empty pattern", c.Strategy)
		}
	case StrategyRole:
		if c.Role == "" {
			return fmt.Errorf("role candidate has no role")
		}
	default:
		return fmt.Errorf("unknown locator strategy %q", c.Strategy)
	}
	if c.MinY < 0 {
		return fmt.Errorf("min_y must not be negative, got %v", c.MinY)
	}
	return nil
}

// String renders the canonical textual form accepted by Parse.
func (c Candidate) String() string {
	var b strings.Builder
	switch c.Strategy {
	case StrategyCSS, StrategyXPath:
		b.WriteString(string(c.Strategy))
		b.WriteByte('=')
		b.WriteString(c.Pattern)
	case StrategyRole:
		b.WriteString("role=")
		b.WriteString(c.Role)
		if c.Pattern != "" {
			b.WriteString("[name=")
			b.WriteString(quote(c.Pattern))
			b.WriteByte(']')
		}
	default:
		b.WriteString(c.Tag)
		b.WriteByte(':')
		b.WriteString(string(c.Strategy))
		b.WriteByte('=')
		b.WriteString(quote(c.Pattern))
	}
	if c.MinY > 0 {
		b.WriteString(minYMarker)
		b.WriteString(strconv.FormatFloat(c.MinY, 'f', -1, 64))
	}
	return b.String()
}

// NormalizeText collapses runs of whitespace and trims the result, the way
// text strategies compare element text on every driver.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// MatchText applies a text strategy to already extracted element text.
func (c Candidate) MatchText(text string) bool {
	text = NormalizeText(text)
	switch c.Strategy {
	case StrategyExactText:
		return text == NormalizeText(c.Pattern)
	case StrategyContainsText, StrategyPlaceholder, StrategyRole:
		return strings.Contains(strings.ToLower(text), strings.ToLower(NormalizeText(c.Pattern)))
	}
	return false
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return "*"
	}
	return tag
}
