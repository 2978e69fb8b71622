package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// StorageState is the serialized authentication state of a browsing
// context: cookies plus per-origin localStorage. The layout matches the
// storage-state JSON emitted by other automation tooling so an existing
// session file keeps working.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins,omitempty"`
}

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

type OriginState struct {
	Origin       string         `json:"origin"`
	LocalStorage []StorageEntry `json:"localStorage"`
}

type StorageEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *StorageState) cookieParams() []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}

// originSeedScript returns a script injected on every new document that
// restores localStorage for whichever stored origin the page lands on.
func (s *StorageState) originSeedScript() string {
	if len(s.Origins) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("(() => {\n\ttry {\n")
	for _, o := range s.Origins {
		fmt.Fprintf(&b, "\t\tif (location.origin === %s) {\n", jsString(o.Origin))
		for _, e := range o.LocalStorage {
			fmt.Fprintf(&b, "\t\t\tlocalStorage.setItem(%s, %s);\n", jsString(e.Name), jsString(e.Value))
		}
		b.WriteString("\t\t}\n")
	}
	b.WriteString("\t} catch (e) {}\n})()")
	return b.String()
}

// StorageState captures the context's current cookies and, when the tab is
// on a real origin, that origin's localStorage.
func (c *Context) StorageState(ctx context.Context) (*StorageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cookies []*network.Cookie
	var origin string
	var entries [][2]string

	err := c.run(c.cfg.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(`location.origin`, &origin),
		chromedp.Evaluate(
			`Object.entries(localStorage || {}).map(([k, v]) => [k, String(v)])`,
			&entries,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("capture storage state: %w", err)
	}

	state := &StorageState{}
	for _, ck := range cookies {
		state.Cookies = append(state.Cookies, Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: string(ck.SameSite),
		})
	}
	if strings.HasPrefix(origin, "http") && len(entries) > 0 {
		o := OriginState{Origin: origin}
		for _, e := range entries {
			o.LocalStorage = append(o.LocalStorage, StorageEntry{Name: e[0], Value: e[1]})
		}
		state.Origins = []OriginState{o}
	}
	return state, nil
}
