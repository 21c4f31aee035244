// internal/locator/parse.go
package locator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const minYMarker = " @y>"

// tagStrategyRe matches the "<tag>:<strategy>=<quoted>" form.
var tagStrategyRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*|\*):(exact-text|contains-text|placeholder)=(.+)$`)

// Parse reads the textual candidate form, e.g.
//
//	button:exact-text='Add' @y>150
//	css=input[value*='https://']
//	role=button[name='Deploy']
//	//button[contains(., 'Copy')]
func Parse(s string) (Candidate, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Candidate{}, fmt.Errorf("empty locator")
	}

	var minY float64
	if i := strings.LastIndex(s, minYMarker); i >= 0 {
		if y, err := strconv.ParseFloat(strings.TrimSpace(s[i+len(minYMarker):]), 64); err == nil {
			if math.IsNaN(y) || math.IsInf(y, 0) || y <= 0 {
				return Candidate{}, fmt.Errorf("locator %q: @y> bound must be a positive number", raw)
			}
			minY = y
			s = strings.TrimSpace(s[:i])
		}
	}

	var (
		c   Candidate
		err error
	)
	switch {
	case strings.HasPrefix(s, "css="):
		c = CSS(strings.TrimSpace(strings.TrimPrefix(s, "css=")))
	case strings.HasPrefix(s, "xpath="):
		c = XPath(strings.TrimSpace(strings.TrimPrefix(s, "xpath=")))
	case strings.HasPrefix(s, "role="):
		c, err = parseRole(strings.TrimPrefix(s, "role="))
	default:
		if m := tagStrategyRe.FindStringSubmatch(s); m != nil {
			var text string
			text, err = unquote(m[3])
			c = Candidate{Strategy: Strategy(m[2]), Tag: normalizeTag(m[1]), Pattern: text}
		} else if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
			c = XPath(s)
		} else {
			c = CSS(s)
		}
	}
	if err != nil {
		return Candidate{}, fmt.Errorf("locator %q: %w", raw, err)
	}

	c.MinY = minY
	if err := c.Validate(); err != nil {
		return Candidate{}, fmt.Errorf("locator %q: %w", raw, err)
	}
	return c, nil
}

// MustParse is Parse for package-level literals; it panics on malformed input.
func MustParse(s string) Candidate {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseAll parses an ordered list, keeping the order.
func ParseAll(list []string) ([]Candidate, error) {
	out := make([]Candidate, 0, len(list))
	for i, s := range list {
		c, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// MustParseAll is ParseAll for package-level literals.
func MustParseAll(list ...string) []Candidate {
	out, err := ParseAll(list)
	if err != nil {
		panic(err)
	}
	return out
}

// Strings renders candidates back to their textual form.
func Strings(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.String()
	}
	return out
}

func parseRole(s string) (Candidate, error) {
	idx := strings.IndexByte(s, '[')
	if idx < 0 {
		return Role(strings.TrimSpace(s), ""), nil
	}
	role := strings.TrimSpace(s[:idx])
	attr := s[idx:]
	if !strings.HasPrefix(attr, "[name=") || !strings.HasSuffix(attr, "]") {
		return Candidate{}, fmt.Errorf("role filter must look like [name='...']")
	}
	name, err := unquote(attr[len("[name=") : len(attr)-1])
	if err != nil {
		return Candidate{}, err
	}
	return Role(role, name), nil
}

// unquote strips matching single or double quotes; the quote character is
// escaped inside the value by doubling it.
func unquote(s string) (string, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("value %q is not quoted", s)
	}
	q := s[0]
	if (q != '\'' && q != '"') || s[len(s)-1] != q {
		return "", fmt.Errorf("value %q is not quoted", s)
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] != q {
			b.WriteByte(inner[i])
			continue
		}
		if i+1 < len(inner) && inner[i+1] == q {
			b.WriteByte(q)
			i++
			continue
		}
		return "", fmt.Errorf("unescaped quote in %q", s)
	}
	return b.String(), nil
}
