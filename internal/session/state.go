// internal/session/state.go
package session

import "time"

// Cookie is a browser cookie in a driver-neutral shape.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Item is one localStorage entry.
type Item struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin holds the localStorage of a single origin.
type Origin struct {
	Origin       string `json:"origin"`
	LocalStorage []Item `json:"localStorage"`
}

// State is an authenticated browser state that can be replayed into a fresh
// browsing context so later runs skip the interactive login.
type State struct {
	Cookies []Cookie  `json:"cookies"`
	Origins []Origin  `json:"origins"`
	SavedAt time.Time `json:"savedAt"`
}

// Empty reports whether the state carries nothing worth restoring.
func (s *State) Empty() bool {
	if s == nil {
		return true
	}
	if len(s.Cookies) > 0 {
		return false
	}
	for _, o := range s.Origins {
		if len(o.LocalStorage) > 0 {
			return false
		}
	}
	return true
}

// Expired reports whether every persistent cookie expired before now.
// Session cookies (Expires <= 0) never count as expired.
func (s *State) Expired(now time.Time) bool {
	if s == nil || len(s.Cookies) == 0 {
		return false
	}
	for _, c := range s.Cookies {
		if c.Expires <= 0 || time.Unix(int64(c.Expires), 0).After(now) {
			return false
		}
	}
	return true
}
