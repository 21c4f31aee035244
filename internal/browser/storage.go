// internal/browser/storage.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/session"
)

// StorageState captures the cookies of the instance's browsing context and the
// localStorage of the page's current origin.
func (i *Instance) StorageState(ctx context.Context) (*session.State, error) {
	runCtx, cancel := combineContext(i.tabCtx, ctx)
	defer cancel()

	var cookies []*network.Cookie
	var origin session.Origin
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			c := chromedp.FromContext(ctx)
			var err error
			cookies, err = storage.GetCookies().WithBrowserContextID(c.BrowserContextID).Do(cdp.WithExecutor(ctx, c.Browser))
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	if err := chromedp.Run(runCtx, chromedp.Evaluate(captureOriginScript, &origin)); err != nil {
		// Cookies alone usually carry the login; localStorage is a bonus.
		i.logger.Warn("Could not capture localStorage.", zap.Error(err))
	}

	st := stateFrom(cookies, origin)
	i.logger.Info("Captured browser storage state.",
		zap.Int("cookies", len(st.Cookies)),
		zap.Int("origins", len(st.Origins)))
	return st, nil
}

func setCookies(ctx context.Context, id cdp.BrowserContextID, params []*network.CookieParam) error {
	return storage.SetCookies(params).WithBrowserContextID(id).Do(ctx)
}

func stateFrom(cookies []*network.Cookie, origin session.Origin) *session.State {
	st := &session.State{SavedAt: time.Now().UTC()}
	for _, c := range cookies {
		if c == nil {
			continue
		}
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		st.Cookies = append(st.Cookies, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	if origin.Origin != "" && origin.Origin != "null" && len(origin.LocalStorage) > 0 {
		st.Origins = append(st.Origins, origin)
	}
	return st
}

func cookieParams(st *session.State) []*network.CookieParam {
	if st == nil {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			t := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &t
		}
		params = append(params, p)
	}
	return params
}

func originsOf(st *session.State) []session.Origin {
	if st == nil {
		return nil
	}
	var out []session.Origin
	for _, o := range st.Origins {
		if o.Origin != "" && len(o.LocalStorage) > 0 {
			out = append(out, o)
		}
	}
	return out
}
