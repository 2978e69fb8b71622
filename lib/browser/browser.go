// Package browser wraps chromedp with the small protocol surface the
// scraping flows need: short-lived isolated contexts seeded from a saved
// storage state, visibility probes with per-operation budgets, and the
// first-row polling used to detect asynchronous table re-renders.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

type Config struct {
	Headless bool
	// The three independent budgets. A timeout fails only the one
	// operation it bounds, the enclosing retry loop deals with it.
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	VisibilityTimeout time.Duration
	// SettleDelay is the fixed pause between triggering a table action
	// and starting to poll for the re-render.
	SettleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout == 0 {
		c.NavigationTimeout = 90 * time.Second
	}
	if c.ActionTimeout == 0 {
		c.ActionTimeout = 45 * time.Second
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 45 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = time.Second
	}
	return c
}

type Browser struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	cfg      Config
}

// Launch starts a chromium instance. The returned Browser owns the process,
// contexts created from it are tabs that share it.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	cfg = cfg.withDefaults()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Browser{
		allocCtx: allocCtx,
		cancel:   cancel,
		cfg:      cfg,
	}, nil
}

func (b *Browser) Close() {
	b.cancel()
}

// Context is one tab with a known cookie state. Callers must Close it on
// every exit path, contexts are never reused across retry attempts.
type Context struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
}

// NewContext opens a fresh tab, clears every cookie the browser holds and
// installs the candidate session's cookies and origin storage (if any).
func (b *Browser) NewContext(ctx context.Context, state *StorageState) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(b.allocCtx)
	c := &Context{ctx: tabCtx, cancel: cancel, cfg: b.cfg}

	actions := []chromedp.Action{
		storage.ClearCookies(),
	}
	if state != nil {
		if len(state.Cookies) > 0 {
			actions = append(actions, network.SetCookies(state.cookieParams()))
		}
		if script := state.originSeedScript(); script != "" {
			actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
				return err
			}))
		}
	}

	tctx, tcancel := context.WithTimeout(tabCtx, b.cfg.ActionTimeout)
	defer tcancel()
	if err := chromedp.Run(tctx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("seed browsing context: %w", err)
	}
	return c, nil
}

// Close is safe to call multiple times and in defer on every exit path.
func (c *Context) Close() {
	c.cancel()
}

func (c *Context) run(budget time.Duration, actions ...chromedp.Action) error {
	tctx, tcancel := context.WithTimeout(c.ctx, budget)
	defer tcancel()
	return chromedp.Run(tctx, actions...)
}

// Navigate loads a URL within the navigation budget. It returns once the
// document load event fires; client-side rendering readiness is the
// caller's problem (wait for a marker element).
func (c *Context) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.run(c.cfg.NavigationTimeout, chromedp.Navigate(url))
}

func (c *Context) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var loc string
	err := c.run(c.cfg.ActionTimeout, chromedp.Location(&loc))
	return loc, err
}

// WaitVisible blocks until the probe matches a visible element, bounded by
// the given budget (the configured visibility budget when zero).
func (c *Context) WaitVisible(ctx context.Context, probe Probe, budget time.Duration) error {
	_, err := c.RaceVisible(ctx, budget, probe)
	return err
}

// RaceVisible polls until one of the probes matches a visible element and
// returns that probe's name. This is how "first of several async conditions
// to become true" is expressed: one bounded wait over the whole set instead
// of sequential per-probe polling.
func (c *Context) RaceVisible(ctx context.Context, budget time.Duration, probes ...Probe) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if budget == 0 {
		budget = c.cfg.VisibilityTimeout
	}

	var winner string
	err := c.run(budget, chromedp.Poll(
		raceScript(probes),
		&winner,
		chromedp.WithPollingInterval(100*time.Millisecond),
		chromedp.WithPollingTimeout(budget),
	))
	if err != nil {
		return "", fmt.Errorf("waiting for %s: %w", probeNames(probes), err)
	}
	return winner, nil
}

// IsVisible reports whether the probe currently matches a visible element,
// without waiting.
func (c *Context) IsVisible(ctx context.Context, probe Probe) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var visible bool
	err := c.run(c.cfg.ActionTimeout, chromedp.Evaluate(visibleScript(probe), &visible))
	return visible, err
}

// Click clicks the first visible element the probe matches.
func (c *Context) Click(ctx context.Context, probe Probe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var clicked bool
	err := c.run(c.cfg.ActionTimeout, chromedp.Evaluate(clickScript(probe), &clicked))
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("click %q: no visible element", probe.Name)
	}
	return nil
}

// Fill clears the input matched by sel and types value into it.
func (c *Context) Fill(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.run(c.cfg.ActionTimeout,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

// SelectOption sets a <select> to the given value and fires the events a
// client-side table listens for.
func (c *Context) SelectOption(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ok bool
	err := c.run(c.cfg.ActionTimeout, chromedp.Evaluate(selectScript(sel, value), &ok))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("select %q: element or option missing", sel)
	}
	return nil
}

// TextContent returns the trimmed text of the first element matching sel,
// or "" when nothing matches.
func (c *Context) TextContent(ctx context.Context, sel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var text string
	err := c.run(c.cfg.ActionTimeout, chromedp.Evaluate(textContentScript(sel), &text))
	return text, err
}

// TableRow is the raw DOM extraction of one <tr>: the first image's source
// plus per-cell display text. Interpretation of the cells is the caller's.
type TableRow struct {
	ImageSrc string   `json:"image"`
	Cells    []string `json:"cells"`
}

// TableRows extracts every row under tableSel in document order.
func (c *Context) TableRows(ctx context.Context, tableSel string) ([]TableRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []TableRow
	err := c.run(c.cfg.ActionTimeout, chromedp.Evaluate(tableRowsScript(tableSel), &rows))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PollFirstRowChange waits until the first row's text differs from the
// before snapshot, or until a row appears where none existed (before ""),
// bounded by the visibility budget. The table re-renders asynchronously
// with no navigation event, row-identity drift is the only completion
// signal available.
func (c *Context) PollFirstRowChange(ctx context.Context, tableSel, before string, budget time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if budget == 0 {
		budget = c.cfg.VisibilityTimeout
	}
	var changed bool
	return c.run(budget, chromedp.Poll(
		firstRowChangedScript(tableSel, before),
		&changed,
		chromedp.WithPollingInterval(100*time.Millisecond),
		chromedp.WithPollingTimeout(budget),
	))
}

// SettleDelay exposes the configured post-action pause.
func (c *Context) SettleDelay() time.Duration {
	return c.cfg.SettleDelay
}

// Screenshot captures the full page as PNG bytes.
func (c *Context) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf []byte
	err := c.run(15*time.Second, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}
